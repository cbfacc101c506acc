package doctype

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/ports"
)

// Check validates the document type's structure against a field type
// registry. It is run once at startup; a failing document type must prevent
// the process from accepting traffic.
func (dt *DocType) Check(reg *fieldtype.Registry) error {
	var errs []string

	if dt.Name == "" {
		errs = append(errs, "name is required")
	}
	if dt.PluralName == "" {
		errs = append(errs, "pluralName is required")
	}
	if dt.Ctor.Implementation == nil {
		errs = append(errs, "ctor implementation is required")
	}

	for _, name := range sortedKeys(dt.Fields) {
		field := dt.Fields[name]
		if ports.IsSystemField(name) {
			errs = append(errs, fmt.Sprintf("field %q: name collides with a system field", name))
			continue
		}
		if _, ok := reg.Get(field.FieldType); !ok {
			errs = append(errs, fmt.Sprintf("field %q: unknown field type %q", name, field.FieldType))
		}
	}

	for _, name := range sortedKeys(dt.CalculatedFields) {
		calc := dt.CalculatedFields[name]
		if _, clash := dt.Fields[name]; clash {
			errs = append(errs, fmt.Sprintf("calculated field %q: name collides with a declared field", name))
		}
		if calc.Value == nil {
			errs = append(errs, fmt.Sprintf("calculated field %q: value function is required", name))
		}
		for _, input := range calc.InputFields {
			if _, ok := dt.Fields[input]; !ok {
				errs = append(errs, fmt.Sprintf("calculated field %q: input field %q not declared", name, input))
			}
		}
	}

	errs = append(errs, dt.checkParameters("ctor", dt.Ctor.Parameters, reg)...)

	for _, name := range sortedKeys(dt.Operations) {
		op := dt.Operations[name]
		if op.Implementation == nil {
			errs = append(errs, fmt.Sprintf("operation %q: implementation is required", name))
		}
		errs = append(errs, dt.checkParameters("operation "+name, op.Parameters, reg)...)
	}

	for _, name := range sortedKeys(dt.Filters) {
		filter := dt.Filters[name]
		if filter.Implementation == nil {
			errs = append(errs, fmt.Sprintf("filter %q: implementation is required", name))
		}
		errs = append(errs, dt.checkParameters("filter "+name, filter.Parameters, reg)...)
	}

	if dt.Policy.MaxOpIDs < 0 {
		errs = append(errs, "policy maxOpIds must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("doc type %q: %s", dt.Name, strings.Join(errs, "; "))
	}
	return nil
}

func (dt *DocType) checkParameters(owner string, params map[string]Parameter, reg *fieldtype.Registry) []string {
	var errs []string
	for _, name := range sortedKeys(params) {
		p := params[name]
		switch {
		case p.Lookup != "" && p.FieldType != "":
			errs = append(errs, fmt.Sprintf("%s parameter %q: lookup and fieldType are mutually exclusive", owner, name))
		case p.Lookup != "":
			if _, ok := dt.Fields[p.Lookup]; !ok {
				errs = append(errs, fmt.Sprintf("%s parameter %q: lookup field %q not declared", owner, name, p.Lookup))
			}
		case p.FieldType == "":
			errs = append(errs, fmt.Sprintf("%s parameter %q: fieldType or lookup is required", owner, name))
		default:
			if _, ok := reg.Get(p.FieldType); !ok {
				errs = append(errs, fmt.Sprintf("%s parameter %q: unknown field type %q", owner, name, p.FieldType))
			}
		}
	}
	return errs
}

// Resolve returns the effective field type name and arrayness of a
// parameter, following a lookup to the declared field it borrows from.
func (p Parameter) Resolve(dt *DocType) (fieldTypeName string, isArray bool) {
	if p.Lookup != "" {
		field := dt.Fields[p.Lookup]
		return field.FieldType, field.IsArray
	}
	return p.FieldType, p.IsArray
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
