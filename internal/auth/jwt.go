package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/caseguard/internal/models"
)

// Claim names carried by access tokens.
const (
	ClaimRole   = "role"
	ClaimTenant = "center_id"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier turns ES256 bearer tokens into principals.
type Verifier struct {
	keys     KeySource
	table    *Table
	issuer   string
	audience string
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) { v.audience = audience }
}

// NewVerifier creates a verifier. The capability table decides which roles
// are bypass roles and so must not carry a tenant.
func NewVerifier(keys KeySource, table *Table, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, table: table}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates tokenString and resolves the principal it names.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (models.Principal, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithJSONNumber(),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	return v.principalFromClaims(claims)
}

func (v *Verifier) principalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return models.Principal{}, fmt.Errorf("%w: missing sub claim", ErrUnauthenticated)
	}

	roleName, ok := claims[ClaimRole].(string)
	if !ok {
		return models.Principal{}, fmt.Errorf("%w: missing %s claim", ErrUnauthenticated, ClaimRole)
	}
	role, err := models.ParseRole(roleName)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	tenant, err := parseTenantClaim(claims)
	if err != nil {
		return models.Principal{}, err
	}

	p := models.Principal{Role: role, HomeTenant: tenant, Username: subject}
	if v.table != nil && v.table.BypassesTenancy(role) && p.HasTenantClaim() {
		return models.Principal{}, fmt.Errorf("%w: %s token carries a %s claim", ErrUnauthenticated, role, ClaimTenant)
	}

	return p, nil
}

// parseTenantClaim keeps the tenant as issued. Malformed values are left for
// the predicate builder to fail closed on.
func parseTenantClaim(claims jwt.MapClaims) (string, error) {
	value, ok := claims[ClaimTenant]
	if !ok || value == nil {
		return "", nil
	}

	switch t := value.(type) {
	case json.Number:
		return t.String(), nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("%w: invalid %s claim", ErrUnauthenticated, ClaimTenant)
	}
}

// Middleware returns an HTTP middleware that verifies bearer tokens and
// places the principal in the request context.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := zerolog.Ctx(ctx)

			tokenString := extractBearerToken(r)
			if tokenString == "" {
				logger.Warn().Msg("Missing Authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := v.Verify(ctx, tokenString)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to verify JWT")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = WithPrincipal(ctx, principal)
			ctx = logger.With().Str("principal", principal.String()).Logger().WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
