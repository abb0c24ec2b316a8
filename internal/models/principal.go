package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Role is one of the closed set of roles a principal can hold.
// Capabilities are looked up per role, never derived from an ordering.
type Role string

const (
	RoleAppAdmin     Role = "app_admin"     // Platform operator, not attached to a center
	RoleHQ           Role = "hq"            // Head office staff attached to a center
	RoleOrgAdmin     Role = "org_admin"     // Center administrator
	RoleOrgExecutive Role = "org_executive" // Center executive
	RoleCaseworker   Role = "caseworker"    // Front line staff
)

// Roles lists every known role.
var Roles = []Role{RoleAppAdmin, RoleHQ, RoleOrgAdmin, RoleOrgExecutive, RoleCaseworker}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAppAdmin, RoleHQ, RoleOrgAdmin, RoleOrgExecutive, RoleCaseworker:
		return true
	}
	return false
}

// ParseRole parses a role name as it appears in tokens and configuration.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// TenantID identifies a center. Valid tenant ids are strictly positive;
// zero is never a tenant.
type TenantID int64

// NormalizeTenant coerces a tenant value from any layer (token claim, JSON
// payload, query result) into the integer domain. It returns false when the
// value is missing, empty, zero, negative, fractional or not numeric.
func NormalizeTenant(v any) (TenantID, bool) {
	var n int64
	switch t := v.(type) {
	case nil:
		return 0, false
	case TenantID:
		n = int64(t)
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < 1 {
			return 0, false
		}
		n = int64(t)
	case json.Number:
		return NormalizeTenant(t.String())
	case []byte:
		return NormalizeTenant(string(t))
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	return TenantID(n), true
}

// Principal is the resolved identity for a single request. It is built once
// from validated authentication state and never mutated afterwards.
type Principal struct {
	Role Role

	// HomeTenant is the tenant claim exactly as issued. An empty string is
	// the null tenant, reserved for the bypass role.
	HomeTenant string

	Username string
}

// Tenant returns the normalized home tenant.
func (p Principal) Tenant() (TenantID, bool) {
	return NormalizeTenant(p.HomeTenant)
}

// HasTenantClaim reports whether any tenant value was issued, valid or not.
func (p Principal) HasTenantClaim() bool {
	return strings.TrimSpace(p.HomeTenant) != ""
}

// String keeps tenant ids out of log lines.
func (p Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.Username, p.Role)
}
