// Package memory provides an in-memory implementation of ports.DocStore.
// It is the contract's reference implementation and the test double used by
// the engine's own tests. Writes are guarded by a single mutex, which makes
// the required-version compare-and-swap trivially atomic.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/artpar/docgate/ports"
)

// Filter is the backend-specific filter value this store understands: a
// predicate over documents. Document type filter implementations targeting
// this backend return one of these.
type Filter func(ports.Doc) bool

// DocStore is an in-memory document store.
type DocStore struct {
	mu sync.RWMutex
	// docs by doc type name, then by id
	docs map[string]map[string]ports.Doc
}

// NewDocStore creates an empty in-memory document store.
func NewDocStore() *DocStore {
	return &DocStore{docs: make(map[string]map[string]ports.Doc)}
}

// DeleteByID removes a document. A missing document is not an error.
func (s *DocStore) DeleteByID(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.docs[docTypeName]
	if _, ok := collection[id]; !ok {
		return ports.DeleteResult{Code: ports.DeleteNotFound}, nil
	}
	delete(collection, id)
	return ports.DeleteResult{Code: ports.DeleteDeleted}, nil
}

// Exists reports whether a document with the id is stored.
func (s *DocStore) Exists(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.ExistsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[docTypeName][id]
	return ports.ExistsResult{Found: ok}, nil
}

// Fetch retrieves one document by id.
func (s *DocStore) Fetch(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.FetchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docTypeName][id]
	if !ok {
		return ports.FetchResult{}, nil
	}
	return ports.FetchResult{Doc: doc.Clone()}, nil
}

// SelectAll retrieves every document of the type.
func (s *DocStore) SelectAll(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, opts ports.Options) (ports.SelectResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]ports.Doc, 0, len(s.docs[docTypeName]))
	for _, doc := range s.docs[docTypeName] {
		docs = append(docs, project(doc, fieldNames))
	}
	return ports.SelectResult{Docs: docs}, nil
}

// SelectByFilter retrieves the documents matching a Filter predicate.
func (s *DocStore) SelectByFilter(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, filter any, opts ports.Options) (ports.SelectResult, error) {
	predicate, ok := filter.(Filter)
	if !ok {
		if fn, isFn := filter.(func(ports.Doc) bool); isFn {
			predicate = fn
		} else {
			return ports.SelectResult{}, &UnsupportedFilterError{Filter: filter}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]ports.Doc, 0)
	for _, doc := range s.docs[docTypeName] {
		if predicate(doc) {
			docs = append(docs, project(doc, fieldNames))
		}
	}
	return ports.SelectResult{Docs: docs}, nil
}

// SelectByIDs retrieves the documents whose ids appear in ids.
func (s *DocStore) SelectByIDs(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, ids []string, opts ports.Options) (ports.SelectResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]ports.Doc, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.docs[docTypeName][id]; ok {
			docs = append(docs, project(doc, fieldNames))
		}
	}
	return ports.SelectResult{Docs: docs}, nil
}

// Upsert writes doc, honoring the required-version compare-and-swap.
func (s *DocStore) Upsert(ctx context.Context, docTypeName, docTypePluralName string, doc ports.Doc, requiredVersion string, opts ports.Options) (ports.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.docs[docTypeName]
	if !ok {
		collection = make(map[string]ports.Doc)
		s.docs[docTypeName] = collection
	}

	existing, exists := collection[doc.ID()]
	if requiredVersion != "" {
		if !exists || existing.DocVersion() != requiredVersion {
			return ports.UpsertResult{Code: ports.UpsertVersionNotAvailable}, nil
		}
	}

	stored := doc.Clone()
	stored[ports.FieldDocVersion] = uuid.New().String()
	collection[doc.ID()] = stored

	if exists {
		return ports.UpsertResult{Code: ports.UpsertReplaced}, nil
	}
	return ports.UpsertResult{Code: ports.UpsertCreated}, nil
}

// project clones a document, keeping the system fields plus the requested
// fields. An empty fieldNames keeps everything.
func project(doc ports.Doc, fieldNames []string) ports.Doc {
	clone := doc.Clone()
	if len(fieldNames) == 0 {
		return clone
	}

	keep := make(map[string]bool, len(fieldNames))
	for _, name := range fieldNames {
		keep[name] = true
	}
	for name := range clone {
		if !keep[name] && !ports.IsSystemField(name) {
			delete(clone, name)
		}
	}
	return clone
}

// UnsupportedFilterError is returned when a filter value is not a Filter
// predicate.
type UnsupportedFilterError struct {
	Filter any
}

func (e *UnsupportedFilterError) Error() string {
	return "memory doc store filters must be a func(ports.Doc) bool"
}

// Ensure interface compliance.
var _ ports.DocStore = (*DocStore)(nil)
