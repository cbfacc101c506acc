package safestore

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/docgate/pkg/docerror"
	"github.com/artpar/docgate/ports"
)

// fakeStore lets each test script the backend's behavior.
type fakeStore struct {
	deleteResult ports.DeleteResult
	fetchResult  ports.FetchResult
	selectResult ports.SelectResult
	upsertResult ports.UpsertResult
	err          error
	panicWith    any
}

func (f *fakeStore) maybeFail() error {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.err
}

func (f *fakeStore) DeleteByID(ctx context.Context, docTypeName, plural, id string, opts ports.Options) (ports.DeleteResult, error) {
	return f.deleteResult, f.maybeFail()
}

func (f *fakeStore) Exists(ctx context.Context, docTypeName, plural, id string, opts ports.Options) (ports.ExistsResult, error) {
	return ports.ExistsResult{Found: true}, f.maybeFail()
}

func (f *fakeStore) Fetch(ctx context.Context, docTypeName, plural, id string, opts ports.Options) (ports.FetchResult, error) {
	return f.fetchResult, f.maybeFail()
}

func (f *fakeStore) SelectAll(ctx context.Context, docTypeName, plural string, fieldNames []string, opts ports.Options) (ports.SelectResult, error) {
	return f.selectResult, f.maybeFail()
}

func (f *fakeStore) SelectByFilter(ctx context.Context, docTypeName, plural string, fieldNames []string, filter any, opts ports.Options) (ports.SelectResult, error) {
	return f.selectResult, f.maybeFail()
}

func (f *fakeStore) SelectByIDs(ctx context.Context, docTypeName, plural string, fieldNames []string, ids []string, opts ports.Options) (ports.SelectResult, error) {
	return f.selectResult, f.maybeFail()
}

func (f *fakeStore) Upsert(ctx context.Context, docTypeName, plural string, doc ports.Doc, requiredVersion string, opts ports.Options) (ports.UpsertResult, error) {
	return f.upsertResult, f.maybeFail()
}

func goodDoc(id string) ports.Doc {
	return ports.Doc{"id": id, "docType": "car", "docVersion": "v1"}
}

func TestNewRejectsNilBackend(t *testing.T) {
	_, err := New(nil)
	var missing *docerror.MissingContractFunctionError
	if !errors.As(err, &missing) {
		t.Fatalf("New(nil) error = %v, want MissingContractFunctionError", err)
	}
}

func TestBackendErrorIsWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	s, _ := New(&fakeStore{err: cause})

	_, err := s.Upsert(context.Background(), "car", "cars", goodDoc("1"), "", nil)
	var wrapped *docerror.UnexpectedDocStoreError
	if !errors.As(err, &wrapped) {
		t.Fatalf("error = %v, want UnexpectedDocStoreError", err)
	}
	if wrapped.FunctionName != "upsert" {
		t.Errorf("FunctionName = %q, want upsert", wrapped.FunctionName)
	}
	if !errors.Is(err, cause) {
		t.Error("original cause should be preserved")
	}
}

func TestBackendPanicIsWrapped(t *testing.T) {
	s, _ := New(&fakeStore{panicWith: "index out of range"})

	_, err := s.Fetch(context.Background(), "car", "cars", "1", nil)
	var wrapped *docerror.UnexpectedDocStoreError
	if !errors.As(err, &wrapped) {
		t.Fatalf("error = %v, want UnexpectedDocStoreError", err)
	}
	if wrapped.FunctionName != "fetch" {
		t.Errorf("FunctionName = %q, want fetch", wrapped.FunctionName)
	}
}

func TestFetchShapeChecks(t *testing.T) {
	tests := []struct {
		name string
		doc  ports.Doc
		want string
	}{
		{"no id", ports.Doc{"docType": "car", "docVersion": "v1"}, "no string id"},
		{"id mismatch", ports.Doc{"id": "other", "docType": "car", "docVersion": "v1"}, "does not match requested id"},
		{"docType mismatch", ports.Doc{"id": "1", "docType": "boat", "docVersion": "v1"}, "does not match requested doc type"},
		{"no version", ports.Doc{"id": "1", "docType": "car"}, "no string docVersion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := New(&fakeStore{fetchResult: ports.FetchResult{Doc: tt.doc}})
			_, err := s.Fetch(context.Background(), "car", "cars", "1", nil)

			var malformed *docerror.MalformedStoreResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("error = %v, want MalformedStoreResponseError", err)
			}
		})
	}
}

func TestFetchMissingDocIsNotMalformed(t *testing.T) {
	s, _ := New(&fakeStore{fetchResult: ports.FetchResult{}})
	result, err := s.Fetch(context.Background(), "car", "cars", "1", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Doc != nil {
		t.Error("missing doc should pass through as nil")
	}
}

func TestFetchValidDocPassesThrough(t *testing.T) {
	s, _ := New(&fakeStore{fetchResult: ports.FetchResult{Doc: goodDoc("1")}})
	result, err := s.Fetch(context.Background(), "car", "cars", "1", nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.Doc.ID() != "1" {
		t.Errorf("Doc.ID() = %q", result.Doc.ID())
	}
}

func TestSelectShapeChecks(t *testing.T) {
	t.Run("nil collection", func(t *testing.T) {
		s, _ := New(&fakeStore{selectResult: ports.SelectResult{Docs: nil}})
		_, err := s.SelectAll(context.Background(), "car", "cars", nil, nil)
		var malformed *docerror.MalformedStoreResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want MalformedStoreResponseError", err)
		}
	})

	t.Run("bad doc in collection", func(t *testing.T) {
		s, _ := New(&fakeStore{selectResult: ports.SelectResult{Docs: []ports.Doc{
			goodDoc("1"),
			{"id": "2", "docType": "boat", "docVersion": "v1"},
		}}})
		_, err := s.SelectByFilter(context.Background(), "car", "cars", nil, "f", nil)
		var malformed *docerror.MalformedStoreResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want MalformedStoreResponseError", err)
		}
	})

	t.Run("empty collection is fine", func(t *testing.T) {
		s, _ := New(&fakeStore{selectResult: ports.SelectResult{Docs: []ports.Doc{}}})
		result, err := s.SelectByIDs(context.Background(), "car", "cars", nil, []string{"1"}, nil)
		if err != nil {
			t.Fatalf("SelectByIDs() error = %v", err)
		}
		if len(result.Docs) != 0 {
			t.Errorf("Docs = %v", result.Docs)
		}
	})
}

func TestResultCodeChecks(t *testing.T) {
	t.Run("unknown upsert code", func(t *testing.T) {
		s, _ := New(&fakeStore{upsertResult: ports.UpsertResult{Code: "MAYBE"}})
		_, err := s.Upsert(context.Background(), "car", "cars", goodDoc("1"), "", nil)
		var malformed *docerror.MalformedStoreResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want MalformedStoreResponseError", err)
		}
	})

	t.Run("unknown delete code", func(t *testing.T) {
		s, _ := New(&fakeStore{deleteResult: ports.DeleteResult{Code: "GONE"}})
		_, err := s.DeleteByID(context.Background(), "car", "cars", "1", nil)
		var malformed *docerror.MalformedStoreResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("error = %v, want MalformedStoreResponseError", err)
		}
	})

	t.Run("valid codes pass", func(t *testing.T) {
		s, _ := New(&fakeStore{
			upsertResult: ports.UpsertResult{Code: ports.UpsertCreated},
			deleteResult: ports.DeleteResult{Code: ports.DeleteNotFound},
		})
		if _, err := s.Upsert(context.Background(), "car", "cars", goodDoc("1"), "", nil); err != nil {
			t.Errorf("Upsert() error = %v", err)
		}
		if _, err := s.DeleteByID(context.Background(), "car", "cars", "1", nil); err != nil {
			t.Errorf("DeleteByID() error = %v", err)
		}
	})
}

func TestShapeErrorNotDoubleWrapped(t *testing.T) {
	s, _ := New(&fakeStore{fetchResult: ports.FetchResult{Doc: ports.Doc{"docType": "car"}}})
	_, err := s.Fetch(context.Background(), "car", "cars", "1", nil)

	var unexpected *docerror.UnexpectedDocStoreError
	if errors.As(err, &unexpected) {
		t.Error("a malformed-response error should not be wrapped as unexpected")
	}
}
