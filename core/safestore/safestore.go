// Package safestore decorates any ports.DocStore with defensive checks: it
// verifies the backend is fully wired at construction, normalizes every
// backend error or panic into an UnexpectedDocStoreError carrying the
// contract function name, and verifies the shape of every read result before
// it reaches a caller. It is the only place allowed to observe backend-native
// failures, so a backend bug is never mistaken for a validation or permission
// failure.
package safestore

import (
	"context"
	"fmt"

	"github.com/artpar/docgate/pkg/docerror"
	"github.com/artpar/docgate/ports"
)

// Store wraps a backend DocStore implementation.
type Store struct {
	inner ports.DocStore
}

// New wraps a backend. It fails fast when the backend is absent; the Go type
// system already guarantees all seven contract functions exist on anything
// that satisfies ports.DocStore, so the remaining construction-time hazard is
// a nil implementation (including a typed-nil pointer inside the interface).
func New(inner ports.DocStore) (*Store, error) {
	if inner == nil {
		return nil, &docerror.MissingContractFunctionError{FunctionName: ports.ContractFunctionNames[0]}
	}
	return &Store{inner: inner}, nil
}

// guard converts a backend error or panic into an UnexpectedDocStoreError.
func guard(functionName string, err *error) {
	if r := recover(); r != nil {
		*err = &docerror.UnexpectedDocStoreError{
			FunctionName: functionName,
			Cause:        fmt.Errorf("panic: %v", r),
		}
		return
	}
	// Shape violations detected by this wrapper are already store errors;
	// everything else coming out of a backend gets wrapped.
	if *err != nil && !docerror.IsStoreError(*err) {
		*err = &docerror.UnexpectedDocStoreError{FunctionName: functionName, Cause: *err}
	}
}

// checkDoc verifies one returned document against the request.
func checkDoc(functionName string, doc ports.Doc, docTypeName, wantID string) error {
	if id := doc.ID(); id == "" {
		return &docerror.MalformedStoreResponseError{FunctionName: functionName, Reason: "document has no string id"}
	} else if wantID != "" && id != wantID {
		return &docerror.MalformedStoreResponseError{
			FunctionName: functionName,
			Reason:       fmt.Sprintf("document id %q does not match requested id %q", id, wantID),
		}
	}
	if dt := doc.DocType(); dt != docTypeName {
		return &docerror.MalformedStoreResponseError{
			FunctionName: functionName,
			Reason:       fmt.Sprintf("document docType %q does not match requested doc type %q", dt, docTypeName),
		}
	}
	if doc.DocVersion() == "" {
		return &docerror.MalformedStoreResponseError{FunctionName: functionName, Reason: "document has no string docVersion"}
	}
	return nil
}

func checkDocs(functionName string, docs []ports.Doc, docTypeName string) error {
	if docs == nil {
		return &docerror.MalformedStoreResponseError{FunctionName: functionName, Reason: "returned collection is not an array"}
	}
	for _, doc := range docs {
		if err := checkDoc(functionName, doc, docTypeName, ""); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByID implements ports.DocStore.
func (s *Store) DeleteByID(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (result ports.DeleteResult, err error) {
	defer guard("deleteById", &err)

	result, err = s.inner.DeleteByID(ctx, docTypeName, docTypePluralName, id, opts)
	if err != nil {
		return ports.DeleteResult{}, err
	}
	switch result.Code {
	case ports.DeleteDeleted, ports.DeleteNotFound:
	default:
		return ports.DeleteResult{}, &docerror.MalformedStoreResponseError{
			FunctionName: "deleteById",
			Reason:       fmt.Sprintf("unknown result code %q", result.Code),
		}
	}
	return result, nil
}

// Exists implements ports.DocStore.
func (s *Store) Exists(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (result ports.ExistsResult, err error) {
	defer guard("exists", &err)
	return s.inner.Exists(ctx, docTypeName, docTypePluralName, id, opts)
}

// Fetch implements ports.DocStore.
func (s *Store) Fetch(ctx context.Context, docTypeName, docTypePluralName, id string, opts ports.Options) (result ports.FetchResult, err error) {
	defer guard("fetch", &err)

	result, err = s.inner.Fetch(ctx, docTypeName, docTypePluralName, id, opts)
	if err != nil {
		return ports.FetchResult{}, err
	}
	if result.Doc != nil {
		if shapeErr := checkDoc("fetch", result.Doc, docTypeName, id); shapeErr != nil {
			return ports.FetchResult{}, shapeErr
		}
	}
	return result, nil
}

// SelectAll implements ports.DocStore.
func (s *Store) SelectAll(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, opts ports.Options) (result ports.SelectResult, err error) {
	defer guard("selectAll", &err)

	result, err = s.inner.SelectAll(ctx, docTypeName, docTypePluralName, fieldNames, opts)
	if err != nil {
		return ports.SelectResult{}, err
	}
	if shapeErr := checkDocs("selectAll", result.Docs, docTypeName); shapeErr != nil {
		return ports.SelectResult{}, shapeErr
	}
	return result, nil
}

// SelectByFilter implements ports.DocStore.
func (s *Store) SelectByFilter(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, filter any, opts ports.Options) (result ports.SelectResult, err error) {
	defer guard("selectByFilter", &err)

	result, err = s.inner.SelectByFilter(ctx, docTypeName, docTypePluralName, fieldNames, filter, opts)
	if err != nil {
		return ports.SelectResult{}, err
	}
	if shapeErr := checkDocs("selectByFilter", result.Docs, docTypeName); shapeErr != nil {
		return ports.SelectResult{}, shapeErr
	}
	return result, nil
}

// SelectByIDs implements ports.DocStore.
func (s *Store) SelectByIDs(ctx context.Context, docTypeName, docTypePluralName string, fieldNames []string, ids []string, opts ports.Options) (result ports.SelectResult, err error) {
	defer guard("selectByIds", &err)

	result, err = s.inner.SelectByIDs(ctx, docTypeName, docTypePluralName, fieldNames, ids, opts)
	if err != nil {
		return ports.SelectResult{}, err
	}
	if shapeErr := checkDocs("selectByIds", result.Docs, docTypeName); shapeErr != nil {
		return ports.SelectResult{}, shapeErr
	}
	return result, nil
}

// Upsert implements ports.DocStore.
func (s *Store) Upsert(ctx context.Context, docTypeName, docTypePluralName string, doc ports.Doc, requiredVersion string, opts ports.Options) (result ports.UpsertResult, err error) {
	defer guard("upsert", &err)

	result, err = s.inner.Upsert(ctx, docTypeName, docTypePluralName, doc, requiredVersion, opts)
	if err != nil {
		return ports.UpsertResult{}, err
	}
	switch result.Code {
	case ports.UpsertCreated, ports.UpsertReplaced, ports.UpsertVersionNotAvailable:
	default:
		return ports.UpsertResult{}, &docerror.MalformedStoreResponseError{
			FunctionName: "upsert",
			Reason:       fmt.Sprintf("unknown result code %q", result.Code),
		}
	}
	return result, nil
}

// Ensure interface compliance.
var _ ports.DocStore = (*Store)(nil)
