// Package catalog declares every entity of the case management domain.
package catalog

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/wolfeidau/caseguard/internal/models"
)

// TenantColumn is the partition key on every Direct entity.
const TenantColumn = "center_id"

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Catalog is an immutable, validated set of entity descriptors.
type Catalog struct {
	byName map[string]models.Entity
	names  []string
}

// New validates entities and builds a catalog.
func New(entities ...models.Entity) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]models.Entity, len(entities))}
	for _, e := range entities {
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		c.byName[e.Name] = e
		c.names = append(c.names, e.Name)
	}
	sort.Strings(c.names)

	for _, e := range entities {
		if err := c.validate(e); err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.Name, err)
		}
	}
	return c, nil
}

// Default returns the built in catalog.
func Default() *Catalog {
	c, err := New(defaultEntities()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the entity registered under name.
func (c *Catalog) Lookup(name string) (models.Entity, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// All returns every entity ordered by name.
func (c *Catalog) All() []models.Entity {
	out := make([]models.Entity, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name])
	}
	return out
}

func (c *Catalog) validate(e models.Entity) error {
	idents := []string{e.Name, e.Table, e.IDColumn, e.Tenancy.Column}
	idents = append(idents, e.Columns...)
	if e.SubtypeColumn != "" {
		idents = append(idents, e.SubtypeColumn)
	}
	for _, id := range idents {
		if !identifier.MatchString(id) {
			return fmt.Errorf("invalid identifier %q", id)
		}
	}

	if !e.Class.Valid() {
		return fmt.Errorf("unknown class %q", e.Class)
	}

	t := e.Tenancy
	switch t.Strategy {
	case models.StrategyDirect:
	case models.StrategyJoinedThrough, models.StrategyExistsThrough:
		parent, ok := c.parentOf(t.ParentTable)
		if !ok {
			return fmt.Errorf("unknown parent table %q", t.ParentTable)
		}
		if parent.Tenancy.Strategy != models.StrategyDirect {
			return fmt.Errorf("parent %q is not directly tenanted", parent.Name)
		}
		if t.ParentIDColumn != parent.IDColumn || t.Column != parent.Tenancy.Column {
			return fmt.Errorf("tenancy does not match parent %q", parent.Name)
		}
		if !identifier.MatchString(t.ForeignKey) || !e.Writable(t.ForeignKey) {
			return fmt.Errorf("foreign key %q must be a writable column", t.ForeignKey)
		}
	default:
		return fmt.Errorf("unknown tenancy strategy %d", t.Strategy)
	}

	if e.SubtypeColumn != "" && !e.Writable(e.SubtypeColumn) {
		return fmt.Errorf("subtype column %q is not declared", e.SubtypeColumn)
	}

	if b := e.Binary; b != nil {
		for _, col := range []string{b.Column, b.NameColumn, b.TypeColumn} {
			if col != "" && (!identifier.MatchString(col) || !e.Writable(col)) {
				return fmt.Errorf("binary column %q is not declared", col)
			}
		}
	}
	return nil
}

func (c *Catalog) parentOf(table string) (models.Entity, bool) {
	for _, e := range c.byName {
		if e.Table == table {
			return e, true
		}
	}
	return models.Entity{}, false
}
