package auth

import (
	"context"

	"github.com/wolfeidau/caseguard/internal/models"
)

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// The second result is false for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(models.Principal)
	return p, ok
}
