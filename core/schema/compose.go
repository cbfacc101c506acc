// Package schema composes validatable JSON Schema documents from field type
// and document type definitions. Every composed document carries a $defs map
// populated from the transitive field type closure, so fragments may
// reference each other with "#/$defs/<name>".
package schema

import (
	"fmt"
	"sort"

	"github.com/artpar/docgate/core/doctype"
	"github.com/artpar/docgate/core/fieldtype"
	"github.com/artpar/docgate/ports"
)

// ComposeFieldTypeValue builds the schema for a single value of the named
// field type. Used by the load-time self-test.
func ComposeFieldTypeValue(reg *fieldtype.Registry, name string) (map[string]any, error) {
	ft, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", name)
	}

	doc := map[string]any{}
	for k, v := range ft.Fragment() {
		doc[k] = v
	}

	defs, err := composeDefs(reg, []string{name})
	if err != nil {
		return nil, err
	}
	doc["$defs"] = defs
	return doc, nil
}

// ComposeDocInstance builds the schema for a full document instance:
// declared fields plus system fields. docVersion is optional because a
// freshly constructed document has not been written yet.
func ComposeDocInstance(reg *fieldtype.Registry, dt *doctype.DocType) (map[string]any, error) {
	properties := map[string]any{
		ports.FieldID:            map[string]any{"type": "string"},
		ports.FieldDocType:       map[string]any{"const": dt.Name},
		ports.FieldDocVersion:    map[string]any{"type": "string"},
		ports.FieldDocOpIDs:      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		ports.FieldCreatedMillis: map[string]any{"type": "integer", "minimum": 0},
		ports.FieldUpdatedMillis: map[string]any{"type": "integer", "minimum": 0},
	}
	required := []any{ports.FieldID, ports.FieldDocType}

	var closure []string
	for name, field := range dt.Fields {
		properties[name] = fieldSchema(field.FieldType, field.IsArray)
		closure = append(closure, field.FieldType)
		if field.IsRequired {
			required = append(required, name)
		}
	}
	sortAny(required)

	defs, err := composeDefs(reg, closure)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
		"$defs":                defs,
	}, nil
}

// ComposeConstructorParams builds the schema for the constructor's
// parameters.
func ComposeConstructorParams(reg *fieldtype.Registry, dt *doctype.DocType) (map[string]any, error) {
	return composeParams(reg, dt, dt.Ctor.Parameters)
}

// ComposeOperationParams builds the schema for a named operation's
// parameters.
func ComposeOperationParams(reg *fieldtype.Registry, dt *doctype.DocType, operationName string) (map[string]any, error) {
	op, ok := dt.Operations[operationName]
	if !ok {
		return nil, fmt.Errorf("doc type %q has no operation %q", dt.Name, operationName)
	}
	return composeParams(reg, dt, op.Parameters)
}

// ComposeFilterParams builds the schema for a named filter's parameters.
func ComposeFilterParams(reg *fieldtype.Registry, dt *doctype.DocType, filterName string) (map[string]any, error) {
	filter, ok := dt.Filters[filterName]
	if !ok {
		return nil, fmt.Errorf("doc type %q has no filter %q", dt.Name, filterName)
	}
	return composeParams(reg, dt, filter.Parameters)
}

// ComposeMergePatch builds the schema for a merge patch: only fields marked
// CanUpdate, all optional, each accepting its own type or null (null removes
// the field).
func ComposeMergePatch(reg *fieldtype.Registry, dt *doctype.DocType) (map[string]any, error) {
	properties := map[string]any{}
	var closure []string

	for name, field := range dt.Fields {
		if !field.CanUpdate {
			continue
		}
		properties[name] = map[string]any{
			"anyOf": []any{
				fieldSchema(field.FieldType, field.IsArray),
				map[string]any{"type": "null"},
			},
		}
		closure = append(closure, field.FieldType)
	}

	defs, err := composeDefs(reg, closure)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
		"$defs":                defs,
	}, nil
}

func composeParams(reg *fieldtype.Registry, dt *doctype.DocType, params map[string]doctype.Parameter) (map[string]any, error) {
	properties := map[string]any{}
	required := []any{}
	var closure []string

	for name, p := range params {
		ftName, isArray := p.Resolve(dt)
		properties[name] = fieldSchema(ftName, isArray)
		closure = append(closure, ftName)
		if p.IsRequired {
			required = append(required, name)
		}
	}
	sortAny(required)

	defs, err := composeDefs(reg, closure)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
		"$defs":                defs,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc, nil
}

// fieldSchema returns the reference clause for one field or parameter.
func fieldSchema(fieldTypeName string, isArray bool) map[string]any {
	ref := map[string]any{"$ref": "#/$defs/" + fieldTypeName}
	if isArray {
		return map[string]any{"type": "array", "items": ref}
	}
	return ref
}

// sortAny sorts a []any of strings so required lists are deterministic.
func sortAny(values []any) {
	sort.Slice(values, func(i, j int) bool {
		a, _ := values[i].(string)
		b, _ := values[j].(string)
		return a < b
	})
}

// composeDefs resolves the transitive closure of the used field types and
// returns the $defs map with each type's fragment.
func composeDefs(reg *fieldtype.Registry, startNames []string) (map[string]any, error) {
	closure, err := reg.ResolveClosure(startNames)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]any, len(closure))
	for _, name := range closure {
		ft, _ := reg.Get(name)
		defs[name] = ft.Fragment()
	}
	return defs, nil
}
