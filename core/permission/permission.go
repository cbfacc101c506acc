// Package permission evaluates whether a set of held roles grants an action
// on a document type. A permission set is a tagged value: full access, no
// access, or a detailed object with independent booleans per action and
// field-level include/exclude lists for queries. Access is granted if any
// held role grants the specific action.
package permission

import (
	"fmt"

	"github.com/artpar/docgate/pkg/docerror"
)

// Action names an attempted pipeline action for error reporting.
type Action string

const (
	ActionCreate  Action = "create"
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
	ActionPatch   Action = "patch"
	ActionOperate Action = "operate"
	ActionQuery   Action = "query"
)

// Treatment controls how a detailed select permission's field list is read.
type Treatment string

const (
	// TreatmentInclude means only the listed fields may be requested.
	TreatmentInclude Treatment = "include"
	// TreatmentExclude means any field except the listed ones may be
	// requested.
	TreatmentExclude Treatment = "exclude"
)

// UpdatePermission is the update entry of a detailed permission set. The
// zero value grants nothing.
type UpdatePermission struct {
	// All grants patching and every operation.
	All bool
	// Patch grants merge patching only.
	Patch bool
	// Operations grants the named operations.
	Operations []string
}

func (u UpdatePermission) allowsPatch() bool {
	return u.All || u.Patch
}

func (u UpdatePermission) allowsOperation(name string) bool {
	if u.All {
		return true
	}
	for _, op := range u.Operations {
		if op == name {
			return true
		}
	}
	return false
}

// SelectPermission is the query entry of a detailed permission set. The
// zero value grants nothing.
type SelectPermission struct {
	// All grants querying every field.
	All bool
	// FieldsTreatment interprets Fields as an allowlist or a denylist.
	FieldsTreatment Treatment
	// Fields is the allowlist or denylist, per FieldsTreatment.
	Fields []string
}

func (s SelectPermission) allows(fieldNames []string) bool {
	if s.All {
		return true
	}
	switch s.FieldsTreatment {
	case TreatmentInclude:
		for _, requested := range fieldNames {
			if !contains(s.Fields, requested) {
				return false
			}
		}
		return true
	case TreatmentExclude:
		for _, requested := range fieldNames {
			if contains(s.Fields, requested) {
				return false
			}
		}
		return true
	}
	return false
}

// PermissionSet is the access a role grants on one document type. The zero
// value grants nothing; Full() grants everything; otherwise the individual
// entries apply.
type PermissionSet struct {
	// All grants every action on the document type.
	All bool

	Create  bool
	Delete  bool
	Replace bool
	Update  UpdatePermission
	Select  SelectPermission
}

// Full returns a permission set granting every action.
func Full() PermissionSet {
	return PermissionSet{All: true}
}

// None returns a permission set granting nothing.
func None() PermissionSet {
	return PermissionSet{}
}

// RoleType is a named role with its per-document-type permissions.
type RoleType struct {
	Name string

	// All grants every action on every document type.
	All bool

	// DocTypes maps document type names to the permission set this role
	// grants on them. Absent document types grant nothing.
	DocTypes map[string]PermissionSet
}

// Checker evaluates held role names against registered role types. It is
// built once at startup and read concurrently thereafter.
type Checker struct {
	roles map[string]RoleType
}

// NewChecker builds a checker from the given role types.
func NewChecker(roleTypes []RoleType) (*Checker, error) {
	roles := make(map[string]RoleType, len(roleTypes))
	for _, rt := range roleTypes {
		if rt.Name == "" {
			return nil, fmt.Errorf("role type has no name")
		}
		if _, exists := roles[rt.Name]; exists {
			return nil, fmt.Errorf("role type %q registered twice", rt.Name)
		}
		for docTypeName, ps := range rt.DocTypes {
			if ps.Select.FieldsTreatment != "" &&
				ps.Select.FieldsTreatment != TreatmentInclude &&
				ps.Select.FieldsTreatment != TreatmentExclude {
				return nil, fmt.Errorf("role type %q, doc type %q: unknown fields treatment %q",
					rt.Name, docTypeName, ps.Select.FieldsTreatment)
			}
		}
		roles[rt.Name] = rt
	}
	return &Checker{roles: roles}, nil
}

// hasPermission iterates the held roles and returns true on the first role
// whose permission set satisfies the predicate. Unknown role names grant
// nothing; authentication happened upstream.
func (c *Checker) hasPermission(heldRoles []string, docTypeName string, predicate func(PermissionSet) bool) bool {
	for _, name := range heldRoles {
		role, ok := c.roles[name]
		if !ok {
			continue
		}
		if role.All {
			return true
		}
		ps, ok := role.DocTypes[docTypeName]
		if !ok {
			continue
		}
		if ps.All || predicate(ps) {
			return true
		}
	}
	return false
}

// CanCreate reports whether the held roles may create documents of the type.
func (c *Checker) CanCreate(heldRoles []string, docTypeName string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool { return ps.Create })
}

// CanDelete reports whether the held roles may delete documents of the type.
func (c *Checker) CanDelete(heldRoles []string, docTypeName string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool { return ps.Delete })
}

// CanReplace reports whether the held roles may replace documents of the
// type.
func (c *Checker) CanReplace(heldRoles []string, docTypeName string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool { return ps.Replace })
}

// CanPatch reports whether the held roles may merge-patch documents of the
// type.
func (c *Checker) CanPatch(heldRoles []string, docTypeName string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool { return ps.Update.allowsPatch() })
}

// CanOperate reports whether the held roles may invoke the named operation.
func (c *Checker) CanOperate(heldRoles []string, docTypeName, operationName string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool {
		return ps.Update.allowsOperation(operationName)
	})
}

// CanSelect reports whether the held roles may query the named fields of the
// type.
func (c *Checker) CanSelect(heldRoles []string, docTypeName string, fieldNames []string) bool {
	return c.hasPermission(heldRoles, docTypeName, func(ps PermissionSet) bool {
		return ps.Select.allows(fieldNames)
	})
}

// Require turns a denied check into an InsufficientPermissionsError. It is
// always evaluated before any read or write touches the storage backend.
func Require(granted bool, heldRoles []string, docTypeName string, action Action) error {
	if granted {
		return nil
	}
	return &docerror.InsufficientPermissionsError{
		RoleNames:   append([]string(nil), heldRoles...),
		DocTypeName: docTypeName,
		Action:      string(action),
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
