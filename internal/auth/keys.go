package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// KeySource resolves the public key for a token's kid header.
type KeySource interface {
	Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error)
}

// StaticKey is a single public key used for every token regardless of kid.
type StaticKey struct {
	publicKey *ecdsa.PublicKey
}

// NewStaticKey parses a PEM encoded ECDSA public key.
func NewStaticKey(publicKeyPEM string) (*StaticKey, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}
	publicKey, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return &StaticKey{publicKey: publicKey}, nil
}

func (s *StaticKey) Key(context.Context, string) (*ecdsa.PublicKey, error) {
	return s.publicKey, nil
}

// DefaultJWKSMinRefresh is the shortest gap between two JWKS fetches
// triggered by unknown kids.
const DefaultJWKSMinRefresh = 30 * time.Second

// JWKSKeySource fetches signing keys from a JWKS endpoint. Keys are cached
// for an hour. An unknown kid refetches at most once per minimum refresh
// interval and concurrent fetches share one request.
type JWKSKeySource struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	group      singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*ecdsa.PublicKey
	fetchedAt time.Time
}

// JWKSOption configures a JWKSKeySource.
type JWKSOption func(*JWKSKeySource)

// WithMinRefresh sets the shortest gap between refetches caused by unknown
// kids. Zero refetches on every miss.
func WithMinRefresh(d time.Duration) JWKSOption {
	return func(s *JWKSKeySource) { s.minRefresh = d }
}

// NewJWKSKeySource creates a key source for jwksURL. A nil client gets a
// plain client with a 10 second timeout.
func NewJWKSKeySource(jwksURL string, httpClient *http.Client, opts ...JWKSOption) *JWKSKeySource {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	s := &JWKSKeySource{
		url:        jwksURL,
		httpClient: httpClient,
		ttl:        time.Hour,
		minRefresh: DefaultJWKSMinRefresh,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *JWKSKeySource) Key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	age := time.Since(s.fetchedAt)
	fetched := s.keys != nil
	s.mu.RUnlock()

	if fetched && age < s.ttl {
		if ok {
			log.Debug().Str("kid", kid).Msg("JWKS cache hit")
			return key, nil
		}
		if age < s.minRefresh {
			return nil, fmt.Errorf("kid not found in JWKS: %s", kid)
		}
	}

	v, err, _ := s.group.Do(s.url, func() (any, error) {
		keys, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.keys = keys
		s.fetchedAt = time.Now()
		s.mu.Unlock()

		log.Info().Int("total_keys", len(keys)).Msg("Cached JWKS")
		return keys, nil
	})
	if err != nil {
		return nil, err
	}

	key, ok = v.(map[string]*ecdsa.PublicKey)[kid]
	if !ok {
		return nil, fmt.Errorf("kid not found in JWKS: %s", kid)
	}
	return key, nil
}

func (s *JWKSKeySource) fetch(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	log.Debug().Str("jwks_url", s.url).Msg("Fetching JWKS")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey)
	for _, jwk := range jwks.Keys {
		kid, ok := jwk["kid"].(string)
		if !ok || kid == "" {
			log.Warn().Msg("JWK missing kid")
			continue
		}

		key, err := parseJWK(jwk)
		if err != nil {
			log.Warn().Err(err).Str("kid", kid).Msg("Failed to parse JWK")
			continue
		}

		keys[kid] = key
	}

	return keys, nil
}

// parseJWK parses an EC P-256 JWK into an ECDSA public key.
func parseJWK(jwk map[string]any) (*ecdsa.PublicKey, error) {
	kty, ok := jwk["kty"].(string)
	if !ok || kty != "EC" {
		return nil, fmt.Errorf("unsupported key type: %v", jwk["kty"])
	}

	crv, ok := jwk["crv"].(string)
	if !ok || crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %v", jwk["crv"])
	}

	xStr, ok := jwk["x"].(string)
	if !ok {
		return nil, fmt.Errorf("missing x coordinate")
	}

	yStr, ok := jwk["y"].(string)
	if !ok {
		return nil, fmt.Errorf("missing y coordinate")
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}

	yBytes, err := base64.RawURLEncoding.DecodeString(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// ParsePublicKeyPEM parses a PEM-encoded ECDSA public key.
func ParsePublicKeyPEM(pemStr string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}

	return ecdsaPub, nil
}
