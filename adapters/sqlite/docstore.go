// Package sqlite provides a SQLite implementation of ports.DocStore.
// Documents are stored as JSON bodies in a single table keyed by
// (doc_type, id); the required-version compare-and-swap runs inside one
// transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/docgate/ports"
)

// Filter is the backend-specific filter value this store understands: a SQL
// predicate over the documents table with `body` available for
// json_extract. Document type filter implementations targeting this backend
// return one of these.
type Filter struct {
	// Where is a SQL boolean expression, e.g.
	// "json_extract(body, '$.model') = ?".
	Where string
	// Args fills the expression's placeholders.
	Args []any
}

// DocStore is a SQLite-backed document store.
type DocStore struct {
	db *sql.DB
}

// Open creates a SQLite document store at path, creating the schema if
// needed.
func Open(path string) (*DocStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			doc_type    TEXT NOT NULL,
			id          TEXT NOT NULL,
			doc_version TEXT NOT NULL,
			body        TEXT NOT NULL,
			PRIMARY KEY (doc_type, id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	return &DocStore{db: db}, nil
}

// Close closes the underlying database.
func (s *DocStore) Close() error {
	return s.db.Close()
}

// DeleteByID removes a document. A missing document is not an error.
func (s *DocStore) DeleteByID(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.DeleteResult, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE doc_type = ? AND id = ?", docTypeName, id)
	if err != nil {
		return ports.DeleteResult{}, fmt.Errorf("delete document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ports.DeleteResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ports.DeleteResult{Code: ports.DeleteNotFound}, nil
	}
	return ports.DeleteResult{Code: ports.DeleteDeleted}, nil
}

// Exists reports whether a document with the id is stored.
func (s *DocStore) Exists(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.ExistsResult, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM documents WHERE doc_type = ? AND id = ?", docTypeName, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ExistsResult{Found: false}, nil
	}
	if err != nil {
		return ports.ExistsResult{}, fmt.Errorf("query existence: %w", err)
	}
	return ports.ExistsResult{Found: true}, nil
}

// Fetch retrieves one document by id.
func (s *DocStore) Fetch(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (ports.FetchResult, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE doc_type = ? AND id = ?", docTypeName, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.FetchResult{}, nil
	}
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("query document: %w", err)
	}

	doc, err := decode(body)
	if err != nil {
		return ports.FetchResult{}, err
	}
	return ports.FetchResult{Doc: doc}, nil
}

// SelectAll retrieves every document of the type.
func (s *DocStore) SelectAll(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, opts ports.Options) (ports.SelectResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE doc_type = ? ORDER BY id", docTypeName)
	if err != nil {
		return ports.SelectResult{}, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	return collect(rows, fieldNames)
}

// SelectByFilter retrieves the documents matching a Filter predicate.
func (s *DocStore) SelectByFilter(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, filter any, opts ports.Options) (ports.SelectResult, error) {
	f, ok := filter.(Filter)
	if !ok {
		return ports.SelectResult{}, fmt.Errorf("sqlite doc store filters must be a sqlite.Filter, got %T", filter)
	}

	query := "SELECT body FROM documents WHERE doc_type = ? AND (" + f.Where + ") ORDER BY id"
	args := append([]any{docTypeName}, f.Args...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ports.SelectResult{}, fmt.Errorf("query documents by filter: %w", err)
	}
	defer rows.Close()

	return collect(rows, fieldNames)
}

// SelectByIDs retrieves the documents whose ids appear in ids.
func (s *DocStore) SelectByIDs(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, ids []string, opts ports.Options) (ports.SelectResult, error) {
	if len(ids) == 0 {
		return ports.SelectResult{Docs: []ports.Doc{}}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, docTypeName)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE doc_type = ? AND id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return ports.SelectResult{}, fmt.Errorf("query documents by ids: %w", err)
	}
	defer rows.Close()

	return collect(rows, fieldNames)
}

// Upsert writes doc, honoring the required-version compare-and-swap inside
// a transaction.
func (s *DocStore) Upsert(ctx context.Context, docTypeName, docTypePluralName string, doc ports.Doc, requiredVersion string, opts ports.Options) (ports.UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.UpsertResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion string
	err = tx.QueryRowContext(ctx,
		"SELECT doc_version FROM documents WHERE doc_type = ? AND id = ?",
		docTypeName, doc.ID()).Scan(&currentVersion)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return ports.UpsertResult{}, fmt.Errorf("query current version: %w", err)
	}

	if requiredVersion != "" && (!exists || currentVersion != requiredVersion) {
		return ports.UpsertResult{Code: ports.UpsertVersionNotAvailable}, nil
	}

	stored := doc.Clone()
	newVersion := uuid.New().String()
	stored[ports.FieldDocVersion] = newVersion

	body, err := json.Marshal(stored)
	if err != nil {
		return ports.UpsertResult{}, fmt.Errorf("marshal document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (doc_type, id, doc_version, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (doc_type, id) DO UPDATE SET doc_version = excluded.doc_version, body = excluded.body
	`, docTypeName, doc.ID(), newVersion, string(body))
	if err != nil {
		return ports.UpsertResult{}, fmt.Errorf("write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ports.UpsertResult{}, fmt.Errorf("commit: %w", err)
	}

	if exists {
		return ports.UpsertResult{Code: ports.UpsertReplaced}, nil
	}
	return ports.UpsertResult{Code: ports.UpsertCreated}, nil
}

func decode(body string) (ports.Doc, error) {
	var doc ports.Doc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document body: %w", err)
	}
	return doc, nil
}

func collect(rows *sql.Rows, fieldNames []string) (ports.SelectResult, error) {
	docs := []ports.Doc{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return ports.SelectResult{}, fmt.Errorf("scan document row: %w", err)
		}
		doc, err := decode(body)
		if err != nil {
			return ports.SelectResult{}, err
		}
		docs = append(docs, project(doc, fieldNames))
	}
	if err := rows.Err(); err != nil {
		return ports.SelectResult{}, fmt.Errorf("iterate document rows: %w", err)
	}
	return ports.SelectResult{Docs: docs}, nil
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
