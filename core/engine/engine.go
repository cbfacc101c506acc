// Package engine implements the document lifecycle pipelines: create,
// replace, patch, operate, delete and query. An Engine is assembled once at
// startup from field types, document types and role types; every self-test
// runs during New, so a constructed engine serves requests without compiling
// schemas or re-checking configuration.
//
// Each request is an independent unit of work. The engine holds no mutable
// state beyond the read-only caches built at startup, so requests may run
// fully in parallel.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/core/permission"
	"github.com/artpar/docgate/core/safestore"
	"github.com/artpar/docgate/core/validation"
	"github.com/artpar/docgate/pkg/docerror"
	"github.com/artpar/docgate/ports"
)

// Options configures an Engine.
type Options struct {
	// FieldTypes are custom field types. They are merged over the builtin
	// library; a custom definition with a builtin's name replaces it.
	FieldTypes []fieldtype.FieldType

	// DocTypes are the document types the engine will serve.
	DocTypes []*doctype.DocType

	// RoleTypes define the permission model.
	RoleTypes []permission.RoleType

	// Store is the storage backend. It is wrapped in the safety decorator;
	// callers pass the raw adapter.
	Store ports.DocStore

	// Clock supplies the audit stamps.
	Clock ports.Clock

	// IDGen mints document ids when a create request does not supply one.
	IDGen ports.IDGenerator

	// Metrics observes pipeline outcomes. Optional.
	Metrics ports.Metrics

	// Logger for pipeline logging.
	Logger zerolog.Logger
}

// Engine runs the document lifecycle pipelines.
type Engine struct {
	docTypes   map[string]*doctype.DocType
	fieldTypes *fieldtype.Registry
	validators *validation.Cache
	perms      *permission.Checker
	store      *safestore.Store
	clock      ports.Clock
	idgen      ports.IDGenerator
	metrics    ports.Metrics
	logger     zerolog.Logger
}

// New assembles an engine, running every startup self-test: field type
// reference resolution and example self-tests, document type structural
// checks, validator compilation and role type checks. Any failure prevents
// construction; the process should not accept traffic.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("engine: clock is required")
	}
	if opts.IDGen == nil {
		return nil, fmt.Errorf("engine: id generator is required")
	}

	// Later entries override earlier ones, so customs replace builtins.
	merged := append(fieldtype.Builtin(), opts.FieldTypes...)
	reg, err := fieldtype.NewRegistry(merged)
	if err != nil {
		return nil, fmt.Errorf("engine: field types: %w", err)
	}
	if err := validation.SelfTestFieldTypes(reg); err != nil {
		return nil, fmt.Errorf("engine: field type self-test: %w", err)
	}

	docTypes := make(map[string]*doctype.DocType, len(opts.DocTypes))
	for _, dt := range opts.DocTypes {
		if err := dt.Check(reg); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if _, exists := docTypes[dt.Name]; exists {
			return nil, fmt.Errorf("engine: doc type %q registered twice", dt.Name)
		}
		docTypes[dt.Name] = dt
	}

	validators, err := validation.NewCache(reg, opts.DocTypes)
	if err != nil {
		return nil, fmt.Errorf("engine: compile validators: %w", err)
	}

	perms, err := permission.NewChecker(opts.RoleTypes)
	if err != nil {
		return nil, fmt.Errorf("engine: role types: %w", err)
	}

	store, err := safestore.New(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("engine: wrap store: %w", err)
	}

	return &Engine{
		docTypes:   docTypes,
		fieldTypes: reg,
		validators: validators,
		perms:      perms,
		store:      store,
		clock:      opts.Clock,
		idgen:      opts.IDGen,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}, nil
}

// DocType returns the registered document type, for metadata consumers such
// as codegen. The returned value must be treated as read-only.
func (e *Engine) DocType(name string) (*doctype.DocType, bool) {
	dt, ok := e.docTypes[name]
	return dt, ok
}

// DocTypeNames returns the registered document type names, sorted.
func (e *Engine) DocTypeNames() []string {
	names := make([]string, 0, len(e.docTypes))
	for name := range e.docTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldTypeNames returns the registered field type names, sorted.
func (e *Engine) FieldTypeNames() []string {
	return e.fieldTypes.Names()
}

func (e *Engine) docType(name string) (*doctype.DocType, error) {
	dt, ok := e.docTypes[name]
	if !ok {
		return nil, &docerror.UnknownDocTypeError{DocTypeName: name}
	}
	return dt, nil
}

// finish logs and observes one pipeline invocation. Request errors are the
// caller's problem and log at Warn; config and store errors are defects and
// log at Error.
func (e *Engine) finish(action, docTypeName string, start time.Time, err error) {
	duration := e.clock.Now().Sub(start)

	outcome := "ok"
	switch {
	case err == nil:
	case docerror.IsRequestError(err):
		outcome = "request_error"
	case docerror.IsStoreError(err):
		outcome = "store_error"
	default:
		outcome = "config_error"
	}

	if e.metrics != nil {
		e.metrics.ObserveRequest(docTypeName, action, outcome, duration)
	}

	switch outcome {
	case "ok":
		e.logger.Debug().
			Str("doc_type", docTypeName).
			Str("action", action).
			Dur("duration", duration).
			Msg("request served")
	case "request_error":
		e.logger.Warn().
			Str("doc_type", docTypeName).
			Str("action", action).
			Err(err).
			Msg("request rejected")
	default:
		e.logger.Error().
			Str("doc_type", docTypeName).
			Str("action", action).
			Err(err).
			Msg("request failed")
	}
}

// runHook invokes an author-supplied function, converting a panic into a
// HookError. A returned error that already carries a docerror family tag
// passes through unchanged; any other error is treated as a defect in the
// hook.
func runHook(docTypeName, hookName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &docerror.HookError{
				DocTypeName: docTypeName,
				Hook:        hookName,
				Cause:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	err = fn()
	if err == nil {
		return nil
	}
	if docerror.IsRequestError(err) || docerror.IsConfigError(err) || docerror.IsStoreError(err) {
		return err
	}
	return &docerror.HookError{DocTypeName: docTypeName, Hook: hookName, Cause: err}
}

// validateHook runs the document type's custom validate hook. A returned
// error rejects the request as a validation failure; a panic is a defect.
func (e *Engine) validateHook(dt *doctype.DocType, doc ports.Doc) error {
	if dt.Validate == nil {
		return nil
	}
	var hookErr error
	err := runHook(dt.Name, "validate", func() error {
		hookErr = dt.Validate(doc)
		return nil
	})
	if err != nil {
		return err
	}
	if hookErr != nil {
		return &docerror.ValidationError{
			DocTypeName: dt.Name,
			Purpose:     "custom validate",
			Violations:  []docerror.Violation{{Path: "/", Message: hookErr.Error()}},
		}
	}
	return nil
}

// preSaveHook runs the document type's preSave hook, if any.
func (e *Engine) preSaveHook(dt *doctype.DocType, doc ports.Doc) error {
	if dt.PreSave == nil {
		return nil
	}
	return runHook(dt.Name, "preSave", func() error {
		dt.PreSave(doc)
		return nil
	})
}

// stamp maintains the audit fields. Created is set once; updated on every
// write.
func (e *Engine) stamp(doc ports.Doc) {
	now := e.clock.Now().UnixMilli()
	if _, ok := doc[ports.FieldCreatedMillis]; !ok {
		doc[ports.FieldCreatedMillis] = now
	}
	doc[ports.FieldUpdatedMillis] = now
}
