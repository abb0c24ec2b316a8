package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wolfeidau/caseguard/internal/models"
)

// DefaultTokenTTL is the lifetime of an issued token when none is given.
const DefaultTokenTTL = time.Hour

// TokenOptions controls the registered claims of an issued token.
type TokenOptions struct {
	Issuer   string
	Audience string
	KeyID    string
	TTL      time.Duration
}

// IssueToken signs an ES256 access token naming p. signingKeyPEM is the
// PEM-encoded ECDSA private key. The tenant claim is omitted when p has none.
func IssueToken(signingKeyPEM string, p models.Principal, opts TokenOptions) (string, error) {
	signingKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(signingKeyPEM))
	if err != nil {
		return "", fmt.Errorf("failed to parse signing key: %w", err)
	}

	if p.Username == "" {
		return "", fmt.Errorf("username is required")
	}
	if !p.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", p.Role)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     p.Username,
		ClaimRole: string(p.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	if p.HasTenantClaim() {
		tenant, ok := p.Tenant()
		if !ok {
			return "", fmt.Errorf("invalid home tenant %q", p.HomeTenant)
		}
		claims[ClaimTenant] = int64(tenant)
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if opts.KeyID != "" {
		token.Header["kid"] = opts.KeyID
	}
	return token.SignedString(signingKey)
}
