// Package docerror defines the typed errors shared by the document lifecycle
// engine and its callers. Errors fall into three families: request errors
// (caller-caused, recoverable by correcting the request), config errors
// (document-type author caused, mostly detectable at startup), and store
// errors (backend caused, always wrapped with the originating function name).
package docerror

import (
	"errors"
	"fmt"
	"strings"
)

// Violation describes a single schema validation failure.
type Violation struct {
	// Path is a JSON-pointer-ish location within the validated value.
	Path string
	// Message is a human-readable description of the failure.
	Message string
}

func (v Violation) String() string {
	if v.Path == "" || v.Path == "/" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// requestError, configError and storeError are embedded markers that tag an
// error with its family for IsRequestError/IsConfigError/IsStoreError.
type requestError struct{}

func (requestError) isRequestError() {}

type configError struct{}

func (configError) isConfigError() {}

type storeError struct{}

func (storeError) isStoreError() {}

type requestTagged interface{ isRequestError() }
type configTagged interface{ isConfigError() }
type storeTagged interface{ isStoreError() }

// IsRequestError reports whether err (or anything it wraps) is caller-caused.
func IsRequestError(err error) bool {
	var t requestTagged
	return errors.As(err, &t)
}

// IsConfigError reports whether err (or anything it wraps) is a document-type
// or field-type configuration defect.
func IsConfigError(err error) bool {
	var t configTagged
	return errors.As(err, &t)
}

// IsStoreError reports whether err (or anything it wraps) originated in a
// storage backend.
func IsStoreError(err error) bool {
	var t storeTagged
	return errors.As(err, &t)
}

// -----------------------------------------------------------------------------
// Request errors
// -----------------------------------------------------------------------------

// ValidationError is returned when a payload fails schema validation or a
// document type's custom validate hook rejects the document.
type ValidationError struct {
	requestError
	DocTypeName string
	// Purpose names what was being validated: "doc instance",
	// "constructor params", "merge patch", "filter params",
	// "operation params" or "custom validate".
	Purpose    string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("doc type %q: %s invalid: %s", e.DocTypeName, e.Purpose, strings.Join(parts, "; "))
}

// InsufficientPermissionsError is returned when none of the held roles grants
// the attempted action. It is always raised before the storage backend is
// touched.
type InsufficientPermissionsError struct {
	requestError
	RoleNames   []string
	DocTypeName string
	Action      string
}

func (e *InsufficientPermissionsError) Error() string {
	return fmt.Sprintf("roles [%s] do not permit %q on doc type %q",
		strings.Join(e.RoleNames, ", "), e.Action, e.DocTypeName)
}

// ActionForbiddenError is returned when a document type's policy does not
// allow the attempted action, regardless of the caller's roles.
type ActionForbiddenError struct {
	requestError
	DocTypeName string
	Action      string
}

func (e *ActionForbiddenError) Error() string {
	return fmt.Sprintf("doc type %q policy does not allow %s", e.DocTypeName, e.Action)
}

// UnknownDocTypeError is returned when a request names a document type that
// was never registered.
type UnknownDocTypeError struct {
	requestError
	DocTypeName string
}

func (e *UnknownDocTypeError) Error() string {
	return fmt.Sprintf("unknown doc type %q", e.DocTypeName)
}

// UnknownFilterError is returned when a query names a filter the document
// type does not declare.
type UnknownFilterError struct {
	requestError
	DocTypeName string
	FilterName  string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("doc type %q has no filter %q", e.DocTypeName, e.FilterName)
}

// UnknownOperationError is returned when a request names an operation the
// document type does not declare.
type UnknownOperationError struct {
	requestError
	DocTypeName   string
	OperationName string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("doc type %q has no operation %q", e.DocTypeName, e.OperationName)
}

// DocNotFoundError is returned when a pipeline needs an existing document and
// the backend has no record with the requested id.
type DocNotFoundError struct {
	requestError
	DocTypeName string
	ID          string
}

func (e *DocNotFoundError) Error() string {
	return fmt.Sprintf("doc type %q has no document with id %q", e.DocTypeName, e.ID)
}

// RequiredVersionNotAvailableError is returned when the caller pinned a
// document version explicitly and the stored document no longer carries it.
type RequiredVersionNotAvailableError struct {
	requestError
	DocTypeName string
	ID          string
}

func (e *RequiredVersionNotAvailableError) Error() string {
	return fmt.Sprintf("required version of document %q (doc type %q) is not available", e.ID, e.DocTypeName)
}

// ConflictOnSaveError is returned when a document changed between the
// engine's own fetch and its conditioned save. Unlike
// RequiredVersionNotAvailableError the caller did not choose the version, so
// a retry with a fresh fetch is the expected resolution.
type ConflictOnSaveError struct {
	requestError
	DocTypeName string
	ID          string
}

func (e *ConflictOnSaveError) Error() string {
	return fmt.Sprintf("document %q (doc type %q) was modified concurrently", e.ID, e.DocTypeName)
}

// -----------------------------------------------------------------------------
// Config errors
// -----------------------------------------------------------------------------

// FieldTypeResolutionError is returned at load time when a field type
// references a name absent from the registry.
type FieldTypeResolutionError struct {
	configError
	FieldTypeName string
	Referenced    string
}

func (e *FieldTypeResolutionError) Error() string {
	return fmt.Sprintf("field type %q references unknown field type %q", e.FieldTypeName, e.Referenced)
}

// SelfTestError is returned at load time when a field type's declared
// examples or invalid examples do not behave as declared against its own
// composed schema.
type SelfTestError struct {
	configError
	FieldTypeName string
	Reason        string
}

func (e *SelfTestError) Error() string {
	return fmt.Sprintf("field type %q failed self-test: %s", e.FieldTypeName, e.Reason)
}

// InvalidOperationPatchError is returned when an operation implementation
// produces a patch that touches system fields or fields it may not update.
type InvalidOperationPatchError struct {
	configError
	DocTypeName   string
	OperationName string
	Reason        string
}

func (e *InvalidOperationPatchError) Error() string {
	return fmt.Sprintf("operation %q on doc type %q produced an invalid patch: %s",
		e.OperationName, e.DocTypeName, e.Reason)
}

// ValidatorMissingError is returned when a pipeline asks the validator cache
// for a validator that was never compiled. Compiling on the request path is
// disallowed, so a miss marks a configuration defect, not a runtime fallback.
type ValidatorMissingError struct {
	configError
	DocTypeName string
	Purpose     string
	Name        string
}

func (e *ValidatorMissingError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no compiled validator for doc type %q, purpose %q, name %q", e.DocTypeName, e.Purpose, e.Name)
	}
	return fmt.Sprintf("no compiled validator for doc type %q, purpose %q", e.DocTypeName, e.Purpose)
}

// HookError is returned when a constructor, operation, filter, validate or
// preSave implementation panics. It marks a defect in the document type's
// author-supplied code, not in the request.
type HookError struct {
	configError
	DocTypeName string
	Hook        string
	Cause       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("doc type %q: %s hook failed: %v", e.DocTypeName, e.Hook, e.Cause)
}

func (e *HookError) Unwrap() error { return e.Cause }

// -----------------------------------------------------------------------------
// Store errors
// -----------------------------------------------------------------------------

// UnexpectedDocStoreError wraps any error or panic raised by a storage
// backend, carrying the contract function that raised it. A backend bug is
// never allowed to masquerade as a validation or permission failure.
type UnexpectedDocStoreError struct {
	storeError
	FunctionName string
	Cause        error
}

func (e *UnexpectedDocStoreError) Error() string {
	return fmt.Sprintf("doc store %s failed: %v", e.FunctionName, e.Cause)
}

func (e *UnexpectedDocStoreError) Unwrap() error { return e.Cause }

// MissingContractFunctionError is returned when a safety wrapper is
// constructed over an incomplete backend.
type MissingContractFunctionError struct {
	storeError
	FunctionName string
}

func (e *MissingContractFunctionError) Error() string {
	return fmt.Sprintf("doc store does not implement %s", e.FunctionName)
}

// MalformedStoreResponseError is returned when a backend returns a result
// whose shape violates the storage contract.
type MalformedStoreResponseError struct {
	storeError
	FunctionName string
	Reason       string
}

func (e *MalformedStoreResponseError) Error() string {
	return fmt.Sprintf("doc store %s returned a malformed response: %s", e.FunctionName, e.Reason)
}
