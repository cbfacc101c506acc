// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Metrics observes lifecycle pipeline requests. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// ObserveRequest records one pipeline invocation. Outcome is "ok",
	// "request_error", "config_error" or "store_error".
	ObserveRequest(docTypeName, action, outcome string, duration time.Duration)
}

// -----------------------------------------------------------------------------
// Document Store Port
// -----------------------------------------------------------------------------

// System field names carried on every persisted document record.
const (
	FieldID            = "id"
	FieldDocType       = "docType"
	FieldDocVersion    = "docVersion"
	FieldDocOpIDs      = "docOpIds"
	FieldCreatedMillis = "docCreatedMillisecondsSinceEpoch"
	FieldUpdatedMillis = "docLastUpdatedMillisecondsSinceEpoch"
)

// IsSystemField reports whether name is one of the engine-owned record fields.
func IsSystemField(name string) bool {
	switch name {
	case FieldID, FieldDocType, FieldDocVersion, FieldDocOpIDs, FieldCreatedMillis, FieldUpdatedMillis:
		return true
	}
	return false
}

// Doc is a JSON-shaped document record. System fields live alongside the
// declared fields; calculated fields are never present in a stored Doc.
type Doc map[string]any

// ID returns the document id, or "" when absent or not a string.
func (d Doc) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// DocType returns the owning document type name, or "".
func (d Doc) DocType() string {
	s, _ := d[FieldDocType].(string)
	return s
}

// DocVersion returns the backend-assigned version token, or "".
func (d Doc) DocVersion() string {
	s, _ := d[FieldDocVersion].(string)
	return s
}

// OpIDs returns the ordered list of applied operation ids, oldest first.
// The stored value may be []string or []any depending on the JSON codec.
func (d Doc) OpIDs() []string {
	switch v := d[FieldDocOpIDs].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasOpID reports whether opID was already applied to this document.
func (d Doc) HasOpID(opID string) bool {
	for _, id := range d.OpIDs() {
		if id == opID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the document. Backends return clones so the
// engine may mutate results freely.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	return Doc(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Doc:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Options carries backend-specific options through the engine untouched.
type Options map[string]any

// UpsertCode is the outcome of a conditioned write.
type UpsertCode string

const (
	// UpsertCreated means no document with the id existed before the write.
	UpsertCreated UpsertCode = "CREATED"
	// UpsertReplaced means an existing document was overwritten.
	UpsertReplaced UpsertCode = "REPLACED"
	// UpsertVersionNotAvailable means the supplied required version no longer
	// matches any stored document, either because the document is missing or
	// because it was concurrently modified. The write did not happen.
	UpsertVersionNotAvailable UpsertCode = "VERSION_NOT_AVAILABLE"
)

// UpsertResult is the result of DocStore.Upsert.
type UpsertResult struct {
	Code UpsertCode
}

// DeleteCode is the outcome of a delete.
type DeleteCode string

const (
	DeleteDeleted  DeleteCode = "DELETED"
	DeleteNotFound DeleteCode = "NOT_FOUND"
)

// DeleteResult is the result of DocStore.DeleteByID.
type DeleteResult struct {
	Code DeleteCode
}

// ExistsResult is the result of DocStore.Exists.
type ExistsResult struct {
	Found bool
}

// FetchResult is the result of DocStore.Fetch. Doc is nil when no document
// with the requested id exists.
type FetchResult struct {
	Doc Doc
}

// SelectResult is the result of the three select operations.
type SelectResult struct {
	Docs []Doc
}

// DocStore is the contract every storage backend must satisfy. Backends are
// responsible for the atomicity of a single write: a backend that cannot
// offer an atomic compare-and-swap on the required version does not satisfy
// the contract and must not be used as an authoritative store.
//
// fieldNames tells the backend which declared fields the caller needs;
// backends may return more but must always include the system fields. The
// filter value passed to SelectByFilter is backend-specific and travels
// through the engine untouched.
type DocStore interface {
	// DeleteByID removes a document. A missing document is not an error.
	DeleteByID(ctx context.Context, docTypeName, docTypePluralName, id string, opts Options) (DeleteResult, error)

	// Exists reports whether a document with the id is stored.
	Exists(ctx context.Context, docTypeName, docTypePluralName, id string, opts Options) (ExistsResult, error)

	// Fetch retrieves one document by id.
	Fetch(ctx context.Context, docTypeName, docTypePluralName, id string, opts Options) (FetchResult, error)

	// SelectAll retrieves every document of the type.
	SelectAll(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, opts Options) (SelectResult, error)

	// SelectByFilter retrieves the documents matching a backend-specific
	// filter value.
	SelectByFilter(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, filter any, opts Options) (SelectResult, error)

	// SelectByIDs retrieves the documents whose ids appear in ids.
	SelectByIDs(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, ids []string, opts Options) (SelectResult, error)

	// Upsert writes doc. When requiredVersion is non-empty the write only
	// happens if the stored document currently carries that version; the
	// check and the write must be atomic. The backend assigns a fresh
	// docVersion on every successful write.
	Upsert(ctx context.Context, docTypeName, docTypePluralName string, doc Doc, requiredVersion string, opts Options) (UpsertResult, error)
}

// ContractFunctionNames lists the seven DocStore functions, in contract
// order. Used by the safety wrapper for error reporting.
var ContractFunctionNames = []string{
	"deleteById", "exists", "fetch", "selectAll", "selectByFilter", "selectByIds", "upsert",
}
