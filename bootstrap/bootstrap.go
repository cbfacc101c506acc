// Package bootstrap wires the storage backend, metrics and the lifecycle
// engine from configuration. The host process supplies its document types,
// role types and custom field types; bootstrap supplies everything else.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/docgate/adapters/bolt"
	"github.com/artpar/docgate/adapters/clock"
	"github.com/artpar/docgate/adapters/idgen"
	"github.com/artpar/docgate/adapters/memory"
	"github.com/artpar/docgate/adapters/metrics"
	"github.com/artpar/docgate/adapters/sqlite"
	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/engine"
	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/core/permission"
	"github.com/artpar/docgate/ports"
)

// Options carries the host process's registrations into the assembly.
type Options struct {
	// FieldTypes are custom field types merged over the builtins, in
	// addition to any loaded from cfg.FieldTypesDir.
	FieldTypes []fieldtype.FieldType

	DocTypes  []*doctype.DocType
	RoleTypes []permission.RoleType

	// Store overrides the configured backend. Used by tests and by hosts
	// bringing their own adapter.
	Store ports.DocStore
}

// App is the assembled application.
type App struct {
	Logger  zerolog.Logger
	Engine  *engine.Engine
	Metrics *metrics.Collector

	closers []func() error
}

// New assembles an App from configuration. Any field type, document type or
// role type failing its startup self-test aborts assembly; the process
// should not start.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().
		Str("backend", cfg.Store.Backend).
		Int("doc_types", len(opts.DocTypes)).
		Msg("initializing docgate")

	a := &App{Logger: logger}

	store := opts.Store
	if store == nil {
		var err error
		store, err = a.openStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	fieldTypes := opts.FieldTypes
	if cfg.FieldTypesDir != "" {
		loaded, err := fieldtype.ParseDir(cfg.FieldTypesDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load field types from %q: %w", cfg.FieldTypesDir, err)
		}
		fieldTypes = append(loaded, fieldTypes...)
	}

	var observer ports.Metrics
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		observer = a.Metrics
		logger.Info().Msg("prometheus metrics enabled")
	}

	eng, err := engine.New(engine.Options{
		FieldTypes: fieldTypes,
		DocTypes:   opts.DocTypes,
		RoleTypes:  opts.RoleTypes,
		Store:      store,
		Clock:      clock.Real{},
		IDGen:      idgen.UUID{},
		Metrics:    observer,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng

	logger.Info().Msg("docgate ready")
	return a, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *App) openStore(cfg config.StoreConfig) (ports.DocStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewDocStore(), nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendBolt:
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
