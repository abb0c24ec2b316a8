package auth

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed capabilities.yaml
var defaultCapabilities []byte

// Grant is the outcome of a successful authorization.
type Grant struct {
	BypassTenancy bool

	subtypes map[string][]string
}

// Subtypes returns the subtype allow-list the grant carries for entity, if
// any.
func (g Grant) Subtypes(entity string) ([]string, bool) {
	values, ok := g.subtypes[entity]
	return slices.Clone(values), ok
}

type grantKey struct {
	role  models.Role
	class models.EntityClass
	op    models.Operation
}

// Table is the immutable role capability matrix. Lookups are default deny.
type Table struct {
	grants map[grantKey]Grant
	bypass map[models.Role]bool
}

// Entry is one row of the effective matrix.
type Entry struct {
	Role          models.Role
	Class         models.EntityClass
	Operations    []models.Operation
	BypassTenancy bool
	Subtypes      map[string][]string
}

type tableFile struct {
	Classes map[string]map[string]roleFile `yaml:"classes"`
}

type roleFile struct {
	Operations    []string            `yaml:"operations"`
	BypassTenancy bool                `yaml:"bypass_tenancy"`
	Subtypes      map[string][]string `yaml:"subtypes"`
}

// DefaultTable returns the built in capability matrix.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultCapabilities)
}

// LoadTable reads a capability matrix from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capabilities file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses and validates a YAML capability matrix.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse capabilities: %w", err)
	}

	t := &Table{
		grants: make(map[grantKey]Grant),
		bypass: make(map[models.Role]bool),
	}

	for className, roles := range f.Classes {
		class := models.EntityClass(className)
		if !class.Valid() {
			return nil, fmt.Errorf("unknown entity class %q", className)
		}

		for roleName, rf := range roles {
			role, err := models.ParseRole(roleName)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", className, err)
			}

			switch {
			case rf.BypassTenancy && role != models.RoleAppAdmin:
				return nil, fmt.Errorf("class %s: only %s may bypass tenancy", className, models.RoleAppAdmin)
			case role == models.RoleAppAdmin && !rf.BypassTenancy:
				return nil, fmt.Errorf("class %s: %s must bypass tenancy", className, models.RoleAppAdmin)
			case class == models.ClassCenterManagement && role != models.RoleAppAdmin:
				return nil, fmt.Errorf("class %s is reserved for %s", className, models.RoleAppAdmin)
			}

			for entity, values := range rf.Subtypes {
				if len(values) == 0 {
					return nil, fmt.Errorf("class %s role %s: empty subtypes for %s", className, roleName, entity)
				}
			}

			grant := Grant{BypassTenancy: rf.BypassTenancy, subtypes: rf.Subtypes}
			for _, opName := range rf.Operations {
				op := models.Operation(opName)
				if !op.Valid() {
					return nil, fmt.Errorf("class %s role %s: unknown operation %q", className, roleName, opName)
				}
				key := grantKey{role: role, class: class, op: op}
				if _, dup := t.grants[key]; dup {
					return nil, fmt.Errorf("class %s role %s: duplicate operation %q", className, roleName, opName)
				}
				t.grants[key] = grant
			}

			if rf.BypassTenancy {
				t.bypass[role] = true
			}
		}
	}

	return t, nil
}

// Authorize looks up the grant for role on class and op.
func (t *Table) Authorize(role models.Role, class models.EntityClass, op models.Operation) (Grant, error) {
	grant, ok := t.grants[grantKey{role: role, class: class, op: op}]
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s may not %s %s", store.ErrDenied, role, op, class)
	}
	return grant, nil
}

// AuthorizePrincipal authorizes p and rejects principals whose state
// contradicts their role: a bypass grant held by a principal carrying a home
// tenant.
func (t *Table) AuthorizePrincipal(p models.Principal, class models.EntityClass, op models.Operation) (Grant, error) {
	if !p.Role.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown role", store.ErrDenied)
	}
	grant, err := t.Authorize(p.Role, class, op)
	if err != nil {
		return Grant{}, err
	}
	if grant.BypassTenancy && p.HasTenantClaim() {
		return Grant{}, fmt.Errorf("%w: %s principal carries a home tenant", store.ErrDenied, p.Role)
	}
	return grant, nil
}

// BypassesTenancy reports whether role holds any bypass grant.
func (t *Table) BypassesTenancy(role models.Role) bool {
	return t.bypass[role]
}

// Check verifies that subtype restrictions name catalogued entities that
// declare a subtype column.
func (t *Table) Check(entities []models.Entity) error {
	byName := make(map[string]models.Entity, len(entities))
	for _, e := range entities {
		byName[e.Name] = e
	}
	for key, grant := range t.grants {
		for name := range grant.subtypes {
			e, ok := byName[name]
			if !ok {
				return fmt.Errorf("role %s: subtypes for unknown entity %q", key.role, name)
			}
			if e.Class != key.class {
				return fmt.Errorf("role %s: entity %s is not in class %s", key.role, name, key.class)
			}
			if e.SubtypeColumn == "" {
				return fmt.Errorf("role %s: entity %s has no subtype column", key.role, name)
			}
		}
	}
	return nil
}

// Entries returns the effective matrix in class then role order.
func (t *Table) Entries() []Entry {
	var out []Entry
	for _, class := range models.Classes {
		for _, role := range models.Roles {
			var entry *Entry
			for _, op := range models.Operations {
				grant, ok := t.grants[grantKey{role: role, class: class, op: op}]
				if !ok {
					continue
				}
				if entry == nil {
					entry = &Entry{Role: role, Class: class, BypassTenancy: grant.BypassTenancy, Subtypes: grant.subtypes}
				}
				entry.Operations = append(entry.Operations, op)
			}
			if entry != nil {
				out = append(out, *entry)
			}
		}
	}
	return out
}
