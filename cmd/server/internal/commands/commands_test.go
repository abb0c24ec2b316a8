package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintCapabilities(t *testing.T) {
	table, err := loadCapabilities("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printCapabilities(&buf, table))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(table.Entries())+1)
	require.Contains(t, lines[0], "CLASS")
	require.Contains(t, buf.String(), "users=org_executive|caseworker")
	require.Regexp(t, `center_management\s+app_admin\s+read,create,update,delete\s+true`, lines[1])
}

func TestLoadCapabilitiesFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
classes:
  center_management:
    app_admin: {operations: [read, create, update, delete], bypass_tenancy: true}
  case_records:
    caseworker: {operations: [read]}
`), 0o600))

	table, err := loadCapabilities(valid)
	require.NoError(t, err)
	require.Len(t, table.Entries(), 2)

	mismatched := filepath.Join(dir, "mismatched.yaml")
	require.NoError(t, os.WriteFile(mismatched, []byte(`
classes:
  center_management:
    app_admin: {operations: [read], bypass_tenancy: true}
  case_records:
    org_admin:
      operations: [read]
      subtypes: {users: [caseworker]}
`), 0o600))

	_, err = loadCapabilities(mismatched)
	require.Error(t, err)

	_, err = loadCapabilities(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestServeValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     ServeCmd
		wantErr string
	}{
		{name: "no key", cmd: ServeCmd{Postgres: PostgresFlags{ConnString: "postgres://x"}}, wantErr: "token key is required"},
		{name: "both keys", cmd: ServeCmd{JWTPublicKey: "pem", JWKSURL: "https://id/jwks", Postgres: PostgresFlags{ConnString: "postgres://x"}}, wantErr: "mutually exclusive"},
		{name: "cert without key", cmd: ServeCmd{JWKSURL: "https://id/jwks", Cert: "c.pem", Postgres: PostgresFlags{ConnString: "postgres://x"}}, wantErr: "provided together"},
		{name: "no database", cmd: ServeCmd{JWKSURL: "https://id/jwks"}, wantErr: "connection string is required"},
		{name: "valid", cmd: ServeCmd{JWKSURL: "https://id/jwks", Postgres: PostgresFlags{ConnString: "postgres://x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
