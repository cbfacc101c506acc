package fieldtype

import (
	"fmt"
	"sort"

	"github.com/artpar/docgate/pkg/docerror"
)

// Registry holds an immutable set of field types. It is built once at
// startup and read concurrently thereafter.
type Registry struct {
	types map[string]FieldType
}

// NewRegistry builds a registry from the given field types. Later entries
// with the same name replace earlier ones, which is how custom definitions
// override builtins. Every declared reference must resolve within the
// finished registry.
func NewRegistry(fieldTypes []FieldType) (*Registry, error) {
	r := &Registry{types: make(map[string]FieldType, len(fieldTypes))}

	for _, ft := range fieldTypes {
		if err := check(ft); err != nil {
			return nil, err
		}
		r.types[ft.Name] = ft
	}

	// Reject unresolved references now so they never surface per request.
	for _, ft := range r.types {
		for _, ref := range ft.ReferencedFieldTypes {
			if _, ok := r.types[ref]; !ok {
				return nil, &docerror.FieldTypeResolutionError{FieldTypeName: ft.Name, Referenced: ref}
			}
		}
	}

	return r, nil
}

func check(ft FieldType) error {
	if ft.Name == "" {
		return fmt.Errorf("field type has no name")
	}
	if ft.IsEnum() && ft.Schema != nil {
		return fmt.Errorf("field type %q: jsonSchema and values are mutually exclusive", ft.Name)
	}
	if !ft.IsEnum() && ft.Schema == nil {
		return fmt.Errorf("field type %q: either jsonSchema or values is required", ft.Name)
	}
	return nil
}

// Get returns the field type registered under name.
func (r *Registry) Get(name string) (FieldType, bool) {
	ft, ok := r.types[name]
	return ft, ok
}

// Names returns all registered field type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveClosure returns the transitive set of field type names reachable
// from startNames, sorted. Each name is visited at most once, so reference
// graphs that revisit a type from multiple paths (or cycle) terminate. A
// reference to an unregistered name fails with FieldTypeResolutionError.
func (r *Registry) ResolveClosure(startNames []string) ([]string, error) {
	seen := make(map[string]bool)
	queue := append([]string(nil), startNames...)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		ft, ok := r.types[name]
		if !ok {
			return nil, &docerror.FieldTypeResolutionError{FieldTypeName: name, Referenced: name}
		}
		seen[name] = true
		for _, ref := range ft.ReferencedFieldTypes {
			if _, ok := r.types[ref]; !ok {
				return nil, &docerror.FieldTypeResolutionError{FieldTypeName: name, Referenced: ref}
			}
			if !seen[ref] {
				queue = append(queue, ref)
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
