package sqlstore

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/catalog"
	"github.com/wolfeidau/caseguard/internal/models"
)

const testSchema = `
CREATE TABLE centers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	address TEXT, phone TEXT, email TEXT,
	created_by TEXT, updated_by TEXT
);
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	center_id INTEGER REFERENCES centers (id),
	username TEXT NOT NULL UNIQUE,
	email TEXT, full_name TEXT,
	user_type TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_by TEXT, updated_by TEXT
);
CREATE TABLE applicants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	center_id INTEGER REFERENCES centers (id),
	first_name TEXT, last_name TEXT, date_of_birth TEXT,
	phone TEXT, email TEXT, address TEXT, status TEXT,
	created_by TEXT, updated_by TEXT
);
CREATE TABLE case_notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	applicant_id INTEGER NOT NULL REFERENCES applicants (id),
	note_type TEXT, body TEXT,
	created_by TEXT, updated_by TEXT
);
CREATE TABLE signatures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	applicant_id INTEGER NOT NULL REFERENCES applicants (id),
	signer_name TEXT, signature_data BLOB,
	created_by TEXT, updated_by TEXT
);
CREATE TABLE files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	center_id INTEGER REFERENCES centers (id),
	file_name TEXT, mime_type TEXT, file_data BLOB, description TEXT,
	created_by TEXT, updated_by TEXT
);

INSERT INTO centers (id, name) VALUES (1, 'North'), (2, 'South');

INSERT INTO applicants (id, center_id, first_name) VALUES
	(1, 1, 'Ana'), (2, 1, 'Ben'), (3, 1, 'Cal'),
	(4, 2, 'Dee'), (5, 2, 'Eli');

INSERT INTO case_notes (id, applicant_id, body, created_by, updated_by) VALUES
	(1, 1, 'intake done', 'seed', 'seed'),
	(2, 4, 'south note', 'seed', 'seed');

INSERT INTO signatures (id, applicant_id, signer_name, signature_data) VALUES
	(1, 1, 'Ana', X'89504E47'),
	(2, 4, 'Dee', X'01020304');

INSERT INTO users (id, center_id, username, user_type) VALUES
	(1, 1, 'boss', 'org_admin'),
	(2, 1, 'exec', 'org_executive'),
	(3, 1, 'worker', 'caseworker'),
	(4, 2, 'other', 'caseworker');

INSERT INTO files (id, center_id, file_name, mime_type, file_data) VALUES
	(1, 1, 'intake.pdf', 'application/pdf', X'255044462D'),
	(2, 1, '', NULL, X'CAFE');
`

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return db
}

func setupExecutor(t *testing.T) (*Executor, *sql.DB) {
	t.Helper()
	db := setupSQLite(t)
	table, err := auth.DefaultTable()
	require.NoError(t, err)
	return New(db, table), db
}

func entity(t *testing.T, name string) models.Entity {
	t.Helper()
	e, ok := catalog.Default().Lookup(name)
	require.True(t, ok, name)
	return e
}

func principal(role models.Role, tenant string) models.Principal {
	return models.Principal{Role: role, HomeTenant: tenant, Username: string(role) + "@" + tenant}
}

var appAdmin = models.Principal{Role: models.RoleAppAdmin, Username: "root"}
