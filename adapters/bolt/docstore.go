// Package bolt provides a bbolt implementation of ports.DocStore. Each
// document type gets its own bucket; documents are stored as JSON keyed by
// id, and the required-version compare-and-swap runs inside a single update
// transaction.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/artpar/docgate/ports"
)

// Filter is the backend-specific filter value this store understands: a
// predicate evaluated against each decoded document. Document type filter
// implementations targeting this backend return one of these.
type Filter func(ports.Doc) bool

// DocStore is a bbolt-backed document store.
type DocStore struct {
	db *bbolt.DB
}

// Open creates a bbolt document store at path.
func Open(path string) (*DocStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &DocStore{db: db}, nil
}

// Close closes the underlying database.
func (s *DocStore) Close() error {
	return s.db.Close()
}

// DeleteByID removes a document. A missing document is not an error.
func (s *DocStore) DeleteByID(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.DeleteResult, error) {
	result := ports.DeleteResult{Code: ports.DeleteNotFound}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docTypeName))
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return nil
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		result.Code = ports.DeleteDeleted
		return nil
	})
	if err != nil {
		return ports.DeleteResult{}, err
	}
	return result, nil
}

// Exists reports whether a document with the id is stored.
func (s *DocStore) Exists(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.ExistsResult, error) {
	result := ports.ExistsResult{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docTypeName))
		result.Found = bucket != nil && bucket.Get([]byte(id)) != nil
		return nil
	})
	if err != nil {
		return ports.ExistsResult{}, fmt.Errorf("query existence: %w", err)
	}
	return result, nil
}

// Fetch retrieves one document by id.
func (s *DocStore) Fetch(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.FetchResult, error) {
	result := ports.FetchResult{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docTypeName))
		if bucket == nil {
			return nil
		}
		body := bucket.Get([]byte(id))
		if body == nil {
			return nil
		}
		doc, err := decode(body)
		if err != nil {
			return err
		}
		result.Doc = doc
		return nil
	})
	if err != nil {
		return ports.FetchResult{}, err
	}
	return result, nil
}

// SelectAll retrieves every document of the type.
func (s *DocStore) SelectAll(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, opts ports.Options) (ports.SelectResult, error) {
	return s.scan(docTypeName, fieldNames, nil)
}

// SelectByFilter retrieves the documents matching a Filter predicate.
func (s *DocStore) SelectByFilter(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, filter any, opts ports.Options) (ports.SelectResult, error) {
	var match Filter
	switch f := filter.(type) {
	case Filter:
		match = f
	case func(ports.Doc) bool:
		match = f
	default:
		return ports.SelectResult{}, fmt.Errorf("bolt doc store filters must be a bolt.Filter, got %T", filter)
	}
	return s.scan(docTypeName, fieldNames, match)
}

// SelectByIDs retrieves the documents whose ids appear in ids.
func (s *DocStore) SelectByIDs(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, ids []string, opts ports.Options) (ports.SelectResult, error) {
	docs := []ports.Doc{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docTypeName))
		if bucket == nil {
			return nil
		}
		for _, id := range ids {
			body := bucket.Get([]byte(id))
			if body == nil {
				continue
			}
			doc, err := decode(body)
			if err != nil {
				return err
			}
			docs = append(docs, project(doc, fieldNames))
		}
		return nil
	})
	if err != nil {
		return ports.SelectResult{}, err
	}
	return ports.SelectResult{Docs: docs}, nil
}

// Upsert writes doc, honoring the required-version compare-and-swap inside
// an update transaction.
func (s *DocStore) Upsert(ctx context.Context, docTypeName, docTypePluralName string, doc ports.Doc, requiredVersion string, opts ports.Options) (ports.UpsertResult, error) {
	result := ports.UpsertResult{}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(docTypeName))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}

		existing := bucket.Get([]byte(doc.ID()))
		if requiredVersion != "" {
			if existing == nil {
				result.Code = ports.UpsertVersionNotAvailable
				return nil
			}
			current, err := decode(existing)
			if err != nil {
				return err
			}
			if current.DocVersion() != requiredVersion {
				result.Code = ports.UpsertVersionNotAvailable
				return nil
			}
		}

		stored := doc.Clone()
		stored[ports.FieldDocVersion] = uuid.New().String()
		body, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		if err := bucket.Put([]byte(doc.ID()), body); err != nil {
			return fmt.Errorf("write document: %w", err)
		}

		if existing != nil {
			result.Code = ports.UpsertReplaced
		} else {
			result.Code = ports.UpsertCreated
		}
		return nil
	})
	if err != nil {
		return ports.UpsertResult{}, err
	}
	return result, nil
}

func (s *DocStore) scan(docTypeName string, fieldNames []string, match Filter) (ports.SelectResult, error) {
	docs := []ports.Doc{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(docTypeName))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, body []byte) error {
			doc, err := decode(body)
			if err != nil {
				return err
			}
			if match != nil && !match(doc) {
				return nil
			}
			docs = append(docs, project(doc, fieldNames))
			return nil
		})
	})
	if err != nil {
		return ports.SelectResult{}, err
	}
	return ports.SelectResult{Docs: docs}, nil
}

func decode(body []byte) (ports.Doc, error) {
	var doc ports.Doc
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshal document body: %w", err)
	}
	return doc, nil
}

// project keeps the system fields plus the requested fields. An empty
// fieldNames keeps everything.
func project(doc ports.Doc, fieldNames []string) ports.Doc {
	if len(fieldNames) == 0 {
		return doc
	}
	keep := make(map[string]bool, len(fieldNames))
	for _, name := range fieldNames {
		keep[name] = true
	}
	for name := range doc {
		if !keep[name] && !ports.IsSystemField(name) {
			delete(doc, name)
		}
	}
	return doc
}

// Ensure interface compliance.
var _ ports.DocStore = (*DocStore)(nil)
