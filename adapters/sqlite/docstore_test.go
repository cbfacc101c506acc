package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/artpar/docgate/ports"
)

func openTestStore(t *testing.T) *DocStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func carDoc(id string) ports.Doc {
	return ports.Doc{
		ports.FieldID:      id,
		ports.FieldDocType: "car",
		"model":            "HX",
		"mileage":          float64(1000),
	}
}

func TestUpsertCreatesThenReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	res, err := store.Upsert(ctx, "car", "cars", carDoc("c1"), "", nil)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if res.Code != ports.UpsertCreated {
		t.Fatalf("Upsert() code = %q, want %q", res.Code, ports.UpsertCreated)
	}

	res, err = store.Upsert(ctx, "car", "cars", carDoc("c1"), "", nil)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if res.Code != ports.UpsertReplaced {
		t.Fatalf("second Upsert() code = %q, want %q", res.Code, ports.UpsertReplaced)
	}
}

func TestUpsertConditionedOnVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "car", "cars", carDoc("c1"), "", nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	fetched, err := store.Fetch(ctx, "car", "cars", "c1", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	version := fetched.Doc.DocVersion()
	if version == "" {
		t.Fatal("stored document has no version")
	}

	res, err := store.Upsert(ctx, "car", "cars", carDoc("c1"), version, nil)
	if err != nil {
		t.Fatalf("conditioned Upsert() error = %v", err)
	}
	if res.Code != ports.UpsertReplaced {
		t.Fatalf("conditioned Upsert() code = %q, want %q", res.Code, ports.UpsertReplaced)
	}

	// The stale version no longer matches.
	res, err = store.Upsert(ctx, "car", "cars", carDoc("c1"), version, nil)
	if err != nil {
		t.Fatalf("stale Upsert() error = %v", err)
	}
	if res.Code != ports.UpsertVersionNotAvailable {
		t.Fatalf("stale Upsert() code = %q, want %q", res.Code, ports.UpsertVersionNotAvailable)
	}
}

func TestUpsertWithVersionOnMissingDoc(t *testing.T) {
	store := openTestStore(t)

	res, err := store.Upsert(context.Background(), "car", "cars", carDoc("ghost"), "v1", nil)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if res.Code != ports.UpsertVersionNotAvailable {
		t.Fatalf("Upsert() code = %q, want %q", res.Code, ports.UpsertVersionNotAvailable)
	}
}

func TestFetchMissingDoc(t *testing.T) {
	store := openTestStore(t)

	res, err := store.Fetch(context.Background(), "car", "cars", "nope", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Doc != nil {
		t.Fatalf("Fetch() doc = %v, want nil", res.Doc)
	}
}

func TestDeleteByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "car", "cars", carDoc("c1"), "", nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	res, err := store.DeleteByID(ctx, "car", "cars", "c1", nil)
	if err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if res.Code != ports.DeleteDeleted {
		t.Fatalf("DeleteByID() code = %q, want %q", res.Code, ports.DeleteDeleted)
	}

	res, err = store.DeleteByID(ctx, "car", "cars", "c1", nil)
	if err != nil {
		t.Fatalf("second DeleteByID() error = %v", err)
	}
	if res.Code != ports.DeleteNotFound {
		t.Fatalf("second DeleteByID() code = %q, want %q", res.Code, ports.DeleteNotFound)
	}
}

func TestExists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	res, err := store.Exists(ctx, "car", "cars", "c1", nil)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if res.Found {
		t.Fatal("Exists() = true before any upsert")
	}

	if _, err := store.Upsert(ctx, "car", "cars", carDoc("c1"), "", nil); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	res, err = store.Exists(ctx, "car", "cars", "c1", nil)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !res.Found {
		t.Fatal("Exists() = false after upsert")
	}
}

func TestSelectAllProjectsFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2"} {
		if _, err := store.Upsert(ctx, "car", "cars", carDoc(id), "", nil); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	res, err := store.SelectAll(ctx, "car", "cars", []string{"model"}, nil)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(res.Docs) != 2 {
		t.Fatalf("SelectAll() returned %d docs, want 2", len(res.Docs))
	}
	for _, doc := range res.Docs {
		if _, ok := doc["mileage"]; ok {
			t.Errorf("doc %s retains unrequested field mileage", doc.ID())
		}
		if doc["model"] != "HX" {
			t.Errorf("doc %s model = %v, want HX", doc.ID(), doc["model"])
		}
		if doc.ID() == "" || doc.DocType() == "" || doc.DocVersion() == "" {
			t.Errorf("doc %s lost a system field: %v", doc.ID(), doc)
		}
	}
}

func TestSelectByFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := carDoc("c1")
	b := carDoc("c2")
	b["model"] = "HG"
	for _, doc := range []ports.Doc{a, b} {
		if _, err := store.Upsert(ctx, "car", "cars", doc, "", nil); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	res, err := store.SelectByFilter(ctx, "car", "cars", nil, Filter{
		Where: "json_extract(body, '$.model') = ?",
		Args:  []any{"HG"},
	}, nil)
	if err != nil {
		t.Fatalf("SelectByFilter() error = %v", err)
	}
	if len(res.Docs) != 1 || res.Docs[0].ID() != "c2" {
		t.Fatalf("SelectByFilter() docs = %v, want just c2", res.Docs)
	}
}

func TestSelectByFilterRejectsWrongType(t *testing.T) {
	store := openTestStore(t)

	_, err := store.SelectByFilter(context.Background(), "car", "cars", nil, "model = 'HG'", nil)
	if err == nil {
		t.Fatal("SelectByFilter() accepted a non-Filter value")
	}
}

func TestSelectByIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		if _, err := store.Upsert(ctx, "car", "cars", carDoc(id), "", nil); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	res, err := store.SelectByIDs(ctx, "car", "cars", nil, []string{"c1", "c3", "missing"}, nil)
	if err != nil {
		t.Fatalf("SelectByIDs() error = %v", err)
	}
	if len(res.Docs) != 2 {
		t.Fatalf("SelectByIDs() returned %d docs, want 2", len(res.Docs))
	}

	res, err = store.SelectByIDs(ctx, "car", "cars", nil, nil, nil)
	if err != nil {
		t.Fatalf("SelectByIDs(nil) error = %v", err)
	}
	if len(res.Docs) != 0 {
		t.Fatalf("SelectByIDs(nil) returned %d docs, want 0", len(res.Docs))
	}
}
