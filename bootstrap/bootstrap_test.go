package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/engine"
	"github.com/artpar/docgate/core/permission"
)

func noteDocType() *doctype.DocType {
	return &doctype.DocType{
		Name:       "note",
		PluralName: "notes",
		Fields: map[string]doctype.Field{
			"text": {FieldType: "string", IsRequired: true, CanUpdate: true},
		},
		Ctor: doctype.Constructor{
			Parameters: map[string]doctype.Parameter{
				"text": {Lookup: "text", IsRequired: true},
			},
			Implementation: func(params map[string]any) (map[string]any, error) {
				return map[string]any{"text": params["text"]}, nil
			},
		},
		Policy: doctype.Policy{CanDeleteDocuments: true, CanFetchWholeCollection: true},
	}
}

var adminRole = []permission.RoleType{{Name: "admin", All: true}}

func TestNewWithMemoryBackend(t *testing.T) {
	app, err := New(config.Default(), Options{
		DocTypes:  []*doctype.DocType{noteDocType()},
		RoleTypes: adminRole,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	result, err := app.Engine.CreateDocument(context.Background(), engine.CreateDocumentRequest{
		RoleNames:         []string{"admin"},
		DocTypeName:       "note",
		ConstructorParams: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if !result.IsNew {
		t.Error("CreateDocument() IsNew = false")
	}
}

func TestNewWithSQLiteBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "docs.db")

	app, err := New(cfg, Options{
		DocTypes:  []*doctype.DocType{noteDocType()},
		RoleTypes: adminRole,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewWithBoltBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = config.BackendBolt
	cfg.Store.Path = filepath.Join(t.TempDir(), "docs.bolt")

	app, err := New(cfg, Options{
		DocTypes:  []*doctype.DocType{noteDocType()},
		RoleTypes: adminRole,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewRejectsBrokenDocType(t *testing.T) {
	dt := noteDocType()
	dt.Fields["text"] = doctype.Field{FieldType: "noSuchType"}

	_, err := New(config.Default(), Options{
		DocTypes:  []*doctype.DocType{dt},
		RoleTypes: adminRole,
	})
	if err == nil {
		t.Fatal("New() accepted a doc type with an unknown field type")
	}
}

func TestMetricsEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true

	app, err := New(cfg, Options{
		DocTypes:  []*doctype.DocType{noteDocType()},
		RoleTypes: adminRole,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Metrics == nil {
		t.Error("Metrics not constructed despite metrics.enabled")
	}
}
