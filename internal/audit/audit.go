// Package audit stamps authorship and tenant fields onto write payloads.
package audit

import (
	"fmt"

	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
)

// ErrNoTenant is returned when a non-bypass principal has no valid home
// tenant. It is a denial, never a validation error.
var ErrNoTenant = fmt.Errorf("%w: principal has no valid home tenant", store.ErrDenied)

// Stamp returns a copy of fields prepared for op on entity. It never mutates
// the caller's map.
//
// On create, created_by defaults to the principal, updated_by is forced, and
// the tenant column is set from the principal's home tenant. A bypass
// principal may name an explicit target tenant; an absent or invalid one is
// stored as NULL.
//
// On update, created_by is removed, updated_by is forced, and the tenant
// column is removed unless a bypass principal supplies a valid target.
func Stamp(p models.Principal, e models.Entity, bypass bool, op models.Operation, fields store.Fields) (store.Fields, error) {
	if !bypass {
		if _, ok := p.Tenant(); !ok {
			return nil, ErrNoTenant
		}
	}

	out := fields.Clone()
	delete(out, e.IDColumn)

	switch op {
	case models.OpCreate:
		if v, ok := out[models.CreatedByColumn]; !ok || v == nil {
			out[models.CreatedByColumn] = p.Username
		}
		out[models.UpdatedByColumn] = p.Username
		if e.StampsTenant() {
			out[e.Tenancy.Column] = createTenant(p, bypass, out[e.Tenancy.Column])
		}
	case models.OpUpdate:
		delete(out, models.CreatedByColumn)
		out[models.UpdatedByColumn] = p.Username
		if e.StampsTenant() {
			updateTenant(out, e.Tenancy.Column, bypass)
		}
	default:
		return nil, fmt.Errorf("%w: %s carries no payload", store.ErrInvalidInput, op)
	}

	return out, nil
}

func createTenant(p models.Principal, bypass bool, requested any) any {
	if !bypass {
		tenant, _ := p.Tenant()
		return int64(tenant)
	}
	if tenant, ok := models.NormalizeTenant(requested); ok {
		return int64(tenant)
	}
	return nil
}

func updateTenant(out store.Fields, column string, bypass bool) {
	requested, present := out[column]
	if !present {
		return
	}
	if !bypass {
		delete(out, column)
		return
	}
	if tenant, ok := models.NormalizeTenant(requested); ok {
		out[column] = int64(tenant)
		return
	}
	delete(out, column)
}
