// Package doctype defines the document type model: declared fields,
// calculated fields, the constructor, operations, filters and policy that
// together describe one kind of document. Document types are registered once
// at startup and immutable thereafter.
package doctype

import (
	"github.com/artpar/docgate/ports"
)

// DefaultMaxOpIDs bounds docOpIds when a policy leaves MaxOpIDs unset.
const DefaultMaxOpIDs = 50

// Field declares one persisted field of a document type.
type Field struct {
	// FieldType names the registered field type describing valid values.
	FieldType string

	// IsRequired means the field must be present on every stored instance.
	IsRequired bool

	// IsArray means the field holds an array of the field type's values.
	IsArray bool

	// CanUpdate means the field may appear in merge patches.
	CanUpdate bool

	// Default is merged under the constructor's output on create.
	Default any

	// Deprecation, when non-empty, explains what callers should use instead.
	// Deprecated fields are flagged on query results but never stripped.
	Deprecation string

	// Description for documentation and codegen.
	Description string
}

// CalculatedField declares a derived field. It is computed at read time from
// the values of InputFields and is never persisted.
type CalculatedField struct {
	// InputFields names the declared fields the value is derived from.
	InputFields []string

	// Value is a pure function of the input field values, keyed by name.
	// Inputs absent from the record arrive as nil.
	Value func(inputs map[string]any) any

	// Description for documentation and codegen.
	Description string
}

// Parameter declares one named parameter of a constructor, operation or
// filter. Either FieldType (with IsArray/IsRequired) or Lookup is set:
// Lookup names a declared document field whose type and arrayness the
// parameter reuses.
type Parameter struct {
	FieldType  string
	IsArray    bool
	IsRequired bool
	Lookup     string
}

// Constructor declares how new documents of the type are built.
type Constructor struct {
	// Parameters are validated against their field types before
	// Implementation runs.
	Parameters map[string]Parameter

	// Implementation produces the initial declared field values from the
	// validated parameters. The result is merged over field defaults.
	Implementation func(params map[string]any) (map[string]any, error)
}

// Operation declares a named custom mutation.
type Operation struct {
	Title string

	// Parameters are validated against their field types before
	// Implementation runs.
	Parameters map[string]Parameter

	// Implementation inspects the current document and returns a partial
	// field patch. It must not touch system fields.
	Implementation func(doc ports.Doc, params map[string]any) (map[string]any, error)
}

// Filter declares a named query filter.
type Filter struct {
	Title string

	// Parameters are validated against their field types before
	// Implementation runs.
	Parameters map[string]Parameter

	// Implementation converts validated parameters into the storage
	// backend's filter value, passed through the contract untouched.
	Implementation func(params map[string]any) (any, error)
}

// Policy bounds what the lifecycle engine will do with documents of the
// type, regardless of the caller's permissions.
type Policy struct {
	CanDeleteDocuments      bool
	CanReplaceDocuments     bool
	CanFetchWholeCollection bool

	// MaxOpIDs bounds docOpIds; the oldest entries are trimmed first.
	// Zero means DefaultMaxOpIDs.
	MaxOpIDs int
}

// DocType is the complete declarative description of one document kind.
type DocType struct {
	Name        string
	PluralName  string
	Title       string
	Description string

	Fields           map[string]Field
	CalculatedFields map[string]CalculatedField
	Ctor             Constructor
	Operations       map[string]Operation
	Filters          map[string]Filter
	Policy           Policy

	// Validate inspects a fully assembled document after schema validation.
	// Returning an error rejects the request; it is reported to the caller
	// as a validation failure.
	Validate func(doc ports.Doc) error

	// PreSave may clean the document up immediately before it is written.
	PreSave func(doc ports.Doc)
}

// MaxOpIDs returns the effective docOpIds bound.
func (dt *DocType) MaxOpIDs() int {
	if dt.Policy.MaxOpIDs > 0 {
		return dt.Policy.MaxOpIDs
	}
	return DefaultMaxOpIDs
}

// FieldNames returns the declared field names in no particular order.
func (dt *DocType) FieldNames() []string {
	names := make([]string, 0, len(dt.Fields))
	for name := range dt.Fields {
		names = append(names, name)
	}
	return names
}
