package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/artpar/docgate/ports"
)

func testDoc(id string) ports.Doc {
	return ports.Doc{
		"id":      id,
		"docType": "car",
		"model":   "Kallista",
		"tags":    []any{"classic"},
	}
}

func mustUpsert(t *testing.T, s *DocStore, doc ports.Doc, requiredVersion string) ports.UpsertResult {
	t.Helper()
	result, err := s.Upsert(context.Background(), "car", "cars", doc, requiredVersion, nil)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return result
}

func TestUpsertCreateThenReplace(t *testing.T) {
	s := NewDocStore()

	if result := mustUpsert(t, s, testDoc("1"), ""); result.Code != ports.UpsertCreated {
		t.Errorf("first upsert = %s, want CREATED", result.Code)
	}
	if result := mustUpsert(t, s, testDoc("1"), ""); result.Code != ports.UpsertReplaced {
		t.Errorf("second upsert = %s, want REPLACED", result.Code)
	}
}

func TestUpsertAssignsFreshVersion(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")

	first, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	if first.Doc.DocVersion() == "" {
		t.Fatal("stored doc should carry a version")
	}

	mustUpsert(t, s, testDoc("1"), "")
	second, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	if second.Doc.DocVersion() == first.Doc.DocVersion() {
		t.Error("every successful write should assign a fresh version")
	}
}

func TestUpsertRequiredVersion(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")
	fetched, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	version := fetched.Doc.DocVersion()

	// matching version succeeds
	if result := mustUpsert(t, s, testDoc("1"), version); result.Code != ports.UpsertReplaced {
		t.Errorf("matching version upsert = %s, want REPLACED", result.Code)
	}

	// the old version no longer matches
	if result := mustUpsert(t, s, testDoc("1"), version); result.Code != ports.UpsertVersionNotAvailable {
		t.Errorf("stale version upsert = %s, want VERSION_NOT_AVAILABLE", result.Code)
	}

	// a missing document never matches a required version
	if result := mustUpsert(t, s, testDoc("2"), "anything"); result.Code != ports.UpsertVersionNotAvailable {
		t.Errorf("missing doc upsert = %s, want VERSION_NOT_AVAILABLE", result.Code)
	}
}

func TestConcurrentConditionedUpserts(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")
	fetched, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	version := fetched.Doc.DocVersion()

	const writers = 8
	results := make([]ports.UpsertCode, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := s.Upsert(context.Background(), "car", "cars", testDoc("1"), version, nil)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = result.Code
		}(i)
	}
	wg.Wait()

	replaced := 0
	for _, code := range results {
		if code == ports.UpsertReplaced {
			replaced++
		}
	}
	if replaced != 1 {
		t.Errorf("exactly one conditioned write should win, got %d", replaced)
	}
}

func TestDeleteByID(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")

	result, err := s.DeleteByID(context.Background(), "car", "cars", "1", nil)
	if err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	if result.Code != ports.DeleteDeleted {
		t.Errorf("Code = %s, want DELETED", result.Code)
	}

	result, _ = s.DeleteByID(context.Background(), "car", "cars", "1", nil)
	if result.Code != ports.DeleteNotFound {
		t.Errorf("Code = %s, want NOT_FOUND", result.Code)
	}
}

func TestExists(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")

	result, _ := s.Exists(context.Background(), "car", "cars", "1", nil)
	if !result.Found {
		t.Error("stored doc should exist")
	}
	result, _ = s.Exists(context.Background(), "car", "cars", "2", nil)
	if result.Found {
		t.Error("missing doc should not exist")
	}
}

func TestFetchReturnsClone(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")

	result, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	result.Doc["model"] = "mutated"

	again, _ := s.Fetch(context.Background(), "car", "cars", "1", nil)
	if again.Doc["model"] != "Kallista" {
		t.Error("mutating a fetched doc should not affect the store")
	}
}

func TestFetchMissing(t *testing.T) {
	s := NewDocStore()
	result, err := s.Fetch(context.Background(), "car", "cars", "nope", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Doc != nil {
		t.Error("missing doc should fetch as nil")
	}
}

func TestSelectAllProjectsFields(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")
	mustUpsert(t, s, testDoc("2"), "")

	result, err := s.SelectAll(context.Background(), "car", "cars", []string{"model"}, nil)
	if err != nil {
		t.Fatalf("SelectAll() error = %v", err)
	}
	if len(result.Docs) != 2 {
		t.Fatalf("Docs = %d, want 2", len(result.Docs))
	}
	for _, doc := range result.Docs {
		if _, ok := doc["model"]; !ok {
			t.Error("requested field missing")
		}
		if _, ok := doc["tags"]; ok {
			t.Error("unrequested field should be projected away")
		}
		if doc.ID() == "" || doc.DocType() == "" || doc.DocVersion() == "" {
			t.Error("system fields must always be returned")
		}
	}
}

func TestSelectByFilter(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")
	other := testDoc("2")
	other["model"] = "Solo"
	mustUpsert(t, s, other, "")

	filter := Filter(func(doc ports.Doc) bool { return doc["model"] == "Solo" })
	result, err := s.SelectByFilter(context.Background(), "car", "cars", nil, filter, nil)
	if err != nil {
		t.Fatalf("SelectByFilter() error = %v", err)
	}
	if len(result.Docs) != 1 || result.Docs[0].ID() != "2" {
		t.Errorf("Docs = %v", result.Docs)
	}

	// a bare func also works
	bare := func(doc ports.Doc) bool { return true }
	result, err = s.SelectByFilter(context.Background(), "car", "cars", nil, bare, nil)
	if err != nil {
		t.Fatalf("SelectByFilter(bare func) error = %v", err)
	}
	if len(result.Docs) != 2 {
		t.Errorf("Docs = %d, want 2", len(result.Docs))
	}

	// anything else is rejected
	if _, err := s.SelectByFilter(context.Background(), "car", "cars", nil, "WHERE 1=1", nil); err == nil {
		t.Error("non-predicate filter should be rejected")
	}
}

func TestSelectByIDs(t *testing.T) {
	s := NewDocStore()
	mustUpsert(t, s, testDoc("1"), "")
	mustUpsert(t, s, testDoc("2"), "")
	mustUpsert(t, s, testDoc("3"), "")

	result, err := s.SelectByIDs(context.Background(), "car", "cars", nil, []string{"1", "3", "missing"}, nil)
	if err != nil {
		t.Fatalf("SelectByIDs() error = %v", err)
	}
	if len(result.Docs) != 2 {
		t.Errorf("Docs = %d, want 2 (missing ids are skipped)", len(result.Docs))
	}
}
