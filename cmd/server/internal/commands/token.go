package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/models"
)

// TokenCmd mints an access token for local development and testing.
type TokenCmd struct {
	SigningKeyFile string        `help:"PEM encoded ECDSA P-256 private key" required:"" env:"CASEGUARD_SIGNING_KEY_FILE"`
	Username       string        `help:"token subject" required:""`
	Role           string        `help:"principal role" required:"" enum:"app_admin,hq,org_admin,org_executive,caseworker"`
	CenterID       string        `help:"home tenant, omit for app_admin"`
	Issuer         string        `help:"iss claim" env:"CASEGUARD_JWT_ISSUER"`
	Audience       string        `help:"aud claim" env:"CASEGUARD_JWT_AUDIENCE"`
	KeyID          string        `help:"kid header"`
	TTL            time.Duration `help:"token lifetime" default:"1h"`
}

func (c *TokenCmd) Run(globals *Globals) error {
	signingKey, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	role, err := models.ParseRole(c.Role)
	if err != nil {
		return err
	}

	token, err := auth.IssueToken(string(signingKey), models.Principal{
		Role:       role,
		HomeTenant: c.CenterID,
		Username:   c.Username,
	}, auth.TokenOptions{
		Issuer:   c.Issuer,
		Audience: c.Audience,
		KeyID:    c.KeyID,
		TTL:      c.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
