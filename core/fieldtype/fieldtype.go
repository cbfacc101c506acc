// Package fieldtype defines named, reusable value-shape definitions and the
// registry that resolves references between them. A field type is either a
// JSON Schema fragment or an enumerated list of values, and carries examples
// and invalid examples used for self-testing at load time.
package fieldtype

// FieldType is a named, reusable value definition.
type FieldType struct {
	// Name uniquely identifies the field type within a registry.
	Name string `yaml:"name"`

	// Title is a display name for documentation and codegen.
	Title string `yaml:"title,omitempty"`

	// Description explains the value for documentation and codegen.
	Description string `yaml:"description,omitempty"`

	// Schema is a JSON Schema fragment describing valid values. References to
	// other field types use "#/$defs/<name>" and must be declared in
	// ReferencedFieldTypes. Mutually exclusive with Values.
	Schema map[string]any `yaml:"jsonSchema,omitempty"`

	// Values enumerates the valid values. Mutually exclusive with Schema.
	Values []any `yaml:"values,omitempty"`

	// Examples are values that must validate against the composed schema.
	// Used only for the load-time self-test, never at request time.
	Examples []any `yaml:"examples,omitempty"`

	// InvalidExamples are values that must fail validation against the
	// composed schema. Used only for the load-time self-test.
	InvalidExamples []any `yaml:"invalidExamples,omitempty"`

	// ReferencedFieldTypes names the other field types this one depends on.
	ReferencedFieldTypes []string `yaml:"referencedFieldTypes,omitempty"`
}

// IsEnum reports whether the field type is an enumerated value list.
func (ft FieldType) IsEnum() bool {
	return len(ft.Values) > 0
}

// Fragment returns the JSON Schema fragment for the field type's value: the
// declared fragment verbatim for schema-backed types, or an enum clause for
// enumerated types.
func (ft FieldType) Fragment() map[string]any {
	if ft.IsEnum() {
		return map[string]any{"enum": append([]any(nil), ft.Values...)}
	}
	return ft.Schema
}
