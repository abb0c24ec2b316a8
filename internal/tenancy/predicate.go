// Package tenancy builds the row filters that confine every statement to the
// rows a principal may see or touch.
//
// A Predicate is a SQL condition with '?' markers and its ordered arguments,
// plus an optional join clause. Identifiers in a predicate come only from
// entity descriptors; every value is bound.
package tenancy

import (
	"slices"
	"strings"
)

// Aliases used for the entity and its parent in generated statements.
const (
	EntityAlias = "e"
	ParentAlias = "p"
)

// Predicate is a composable filter fragment.
type Predicate struct {
	join  string
	cond  string
	args  []any
	never bool
}

// Tautology matches every row.
func Tautology() Predicate {
	return Predicate{cond: "1 = 1"}
}

// Never matches no row.
func Never() Predicate {
	return Predicate{cond: "1 = 0", never: true}
}

// Cond returns a predicate for a single condition.
func Cond(cond string, args ...any) Predicate {
	return Predicate{cond: cond, args: args}
}

// Join returns the join clause the condition depends on, or "".
func (p Predicate) Join() string { return p.join }

// SQL returns the condition with '?' markers.
func (p Predicate) SQL() string {
	if p.cond == "" {
		return Tautology().cond
	}
	return p.cond
}

// Args returns the bound values in marker order.
func (p Predicate) Args() []any { return slices.Clone(p.args) }

// FailsClosed reports whether the predicate can never match.
func (p Predicate) FailsClosed() bool { return p.never }

// And combines predicates. Joins are kept in order and arguments follow the
// order of the conditions.
func (p Predicate) And(others ...Predicate) Predicate {
	out := Predicate{
		join:  p.join,
		args:  slices.Clone(p.args),
		never: p.never,
	}
	conds := []string{p.SQL()}
	for _, o := range others {
		if o.join != "" {
			if out.join == "" {
				out.join = o.join
			} else if !strings.Contains(out.join, o.join) {
				out.join += " " + o.join
			}
		}
		conds = append(conds, o.SQL())
		out.args = append(out.args, o.args...)
		out.never = out.never || o.never
	}
	if len(conds) == 1 {
		out.cond = conds[0]
		return out
	}
	out.cond = "(" + strings.Join(conds, " AND ") + ")"
	return out
}

func column(alias, name string) string {
	return alias + "." + name
}
