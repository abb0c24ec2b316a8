package tenancy

import (
	"fmt"
	"strings"

	"github.com/wolfeidau/caseguard/internal/models"
)

// Mode selects the statement shape a predicate is built for.
type Mode int

const (
	// ModeRead allows the join form for JoinedThrough entities.
	ModeRead Mode = iota
	// ModeWrite always uses correlated EXISTS so single table UPDATE and
	// DELETE statements stay valid.
	ModeWrite
)

// Build returns the tenancy predicate for principal over entity. A bypass
// grant yields a tautology. A non-bypass principal without a valid tenant
// fails closed.
func Build(p models.Principal, e models.Entity, bypass bool, mode Mode) Predicate {
	if bypass {
		return Tautology()
	}

	tenant, ok := p.Tenant()
	if !ok {
		return Never()
	}

	t := e.Tenancy
	switch t.Strategy {
	case models.StrategyDirect:
		return Cond(column(EntityAlias, t.Column)+" = ?", int64(tenant))
	case models.StrategyJoinedThrough:
		if mode == ModeRead {
			return Predicate{
				join: fmt.Sprintf("JOIN %s AS %s ON %s = %s",
					t.ParentTable, ParentAlias,
					column(ParentAlias, t.ParentIDColumn), column(EntityAlias, t.ForeignKey)),
				cond: column(ParentAlias, t.Column) + " = ?",
				args: []any{int64(tenant)},
			}
		}
		return existsParent(t, column(EntityAlias, t.ForeignKey), int64(tenant))
	case models.StrategyExistsThrough:
		return existsParent(t, column(EntityAlias, t.ForeignKey), int64(tenant))
	}

	return Never()
}

// ParentGuard confines the creation of a parent scoped row to parents the
// principal can see. parentID is the foreign key value from the payload.
func ParentGuard(p models.Principal, e models.Entity, bypass bool, parentID any) Predicate {
	t := e.Tenancy
	if t.Strategy == models.StrategyDirect {
		return Tautology()
	}
	if bypass {
		return Cond(fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s = ?)",
			t.ParentTable, ParentAlias, column(ParentAlias, t.ParentIDColumn)), parentID)
	}

	tenant, ok := p.Tenant()
	if !ok {
		return Never()
	}

	pred := existsParent(t, "?", int64(tenant))
	pred.args = append([]any{parentID}, pred.args...)
	return pred
}

// ByID matches the row with the given id.
func ByID(e models.Entity, id int64) Predicate {
	return Cond(column(EntityAlias, e.IDColumn)+" = ?", id)
}

// SubtypeIn layers a subtype allow-list over the tenancy predicate. An empty
// list matches nothing.
func SubtypeIn(e models.Entity, values []string) Predicate {
	if e.SubtypeColumn == "" || len(values) == 0 {
		return Never()
	}
	markers := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return Cond(fmt.Sprintf("%s IN (%s)", column(EntityAlias, e.SubtypeColumn), markers), args...)
}

func existsParent(t models.Tenancy, ref string, tenant int64) Predicate {
	return Cond(fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s = %s AND %s = ?)",
		t.ParentTable, ParentAlias,
		column(ParentAlias, t.ParentIDColumn), ref,
		column(ParentAlias, t.Column)), tenant)
}
