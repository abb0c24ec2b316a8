package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/store"
	"github.com/wolfeidau/caseguard/internal/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupMock(t *testing.T, opts ...Option) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	table, err := auth.DefaultTable()
	require.NoError(t, err)
	return New(db, table, opts...), mock
}

func TestStatementShapes(t *testing.T) {
	ctx := context.Background()

	t.Run("direct get", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectQuery("SELECT e.* FROM applicants AS e WHERE (e.center_id = $1 AND e.id = $2) ORDER BY e.id").
			WithArgs(int64(1), int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "center_id"}).AddRow(int64(7), int64(1)))

		row, err := x.Get(ctx, principal(models.RoleCaseworker, "1"), entity(t, "applicants"), 7)
		require.NoError(t, err)
		require.Equal(t, int64(7), row["id"])
	})

	t.Run("joined list", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectQuery("SELECT e.* FROM case_notes AS e JOIN applicants AS p ON p.id = e.applicant_id WHERE p.center_id = $1 ORDER BY e.id").
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		rows, err := x.List(ctx, principal(models.RoleHQ, "2"), entity(t, "case_notes"))
		require.NoError(t, err)
		require.NotNil(t, rows)
		require.Empty(t, rows)
	})

	t.Run("subtype list", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectQuery("SELECT e.* FROM users AS e WHERE (e.center_id = $1 AND e.user_type IN ($2, $3)) ORDER BY e.id").
			WithArgs(int64(1), "org_executive", "caseworker").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := x.List(ctx, principal(models.RoleOrgAdmin, "1"), entity(t, "users"))
		require.NoError(t, err)
	})

	t.Run("guarded child insert", func(t *testing.T) {
		x, mock := setupMock(t)
		p := principal(models.RoleCaseworker, "1")
		mock.ExpectQuery("INSERT INTO case_notes (applicant_id, body, created_by, updated_by) SELECT $1, $2, $3, $4 "+
			"WHERE EXISTS (SELECT 1 FROM applicants AS p WHERE p.id = $5 AND p.center_id = $6) RETURNING *").
			WithArgs(int64(2), "called", p.Username, p.Username, int64(2), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

		row, err := x.Create(ctx, p, entity(t, "case_notes"), store.Fields{"applicant_id": int64(2), "body": "called"})
		require.NoError(t, err)
		require.Equal(t, int64(9), row["id"])
	})

	t.Run("direct insert", func(t *testing.T) {
		x, mock := setupMock(t)
		p := principal(models.RoleOrgExecutive, "3")
		mock.ExpectQuery("INSERT INTO suppliers (center_id, created_by, name, updated_by) VALUES ($1, $2, $3, $4) RETURNING *").
			WithArgs(int64(3), p.Username, "Acme", p.Username).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		_, err := x.Create(ctx, p, entity(t, "suppliers"), store.Fields{"name": "Acme"})
		require.NoError(t, err)
	})

	t.Run("exists update", func(t *testing.T) {
		x, mock := setupMock(t)
		p := principal(models.RoleOrgAdmin, "1")
		mock.ExpectQuery("UPDATE signatures AS e SET signer_name = $1, updated_by = $2 "+
			"WHERE (EXISTS (SELECT 1 FROM applicants AS p WHERE p.id = e.applicant_id AND p.center_id = $3) AND e.id = $4) RETURNING *").
			WithArgs("Ana B", p.Username, int64(1), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := x.Update(ctx, p, entity(t, "signatures"), 3, store.Fields{"signer_name": "Ana B"})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("bypass delete", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectExec("DELETE FROM meeting_attendees AS e WHERE (1 = 1 AND e.id = $1)").
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, x.Delete(ctx, appAdmin, entity(t, "meeting_attendees"), 5))
	})
}

func TestFaultClassification(t *testing.T) {
	ctx := context.Background()
	p := principal(models.RoleCaseworker, "1")
	secret := errors.New(`duplicate key value violates unique constraint, Key (email)=(ana@example.com)`)

	t.Run("unclassified errors are store faults without driver text", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectQuery("INSERT INTO applicants (center_id, created_by, email, updated_by) VALUES ($1, $2, $3, $4) RETURNING *").
			WillReturnError(secret)

		_, err := x.Create(ctx, p, entity(t, "applicants"), store.Fields{"email": "ana@example.com"})
		require.ErrorIs(t, err, store.ErrStoreFault)
		require.ErrorIs(t, err, secret)
		require.NotContains(t, err.Error(), "ana@example.com")
		require.Equal(t, "create applicants: store fault", err.Error())
	})

	t.Run("custom classifier", func(t *testing.T) {
		classify := func(err error) error {
			if errors.Is(err, secret) {
				return store.NewFault(store.ErrInvalidInput, "23505", err)
			}
			return nil
		}
		x, mock := setupMock(t, WithClassifier(classify))
		mock.ExpectQuery("INSERT INTO applicants (center_id, created_by, email, updated_by) VALUES ($1, $2, $3, $4) RETURNING *").
			WillReturnError(secret)

		_, err := x.Create(ctx, p, entity(t, "applicants"), store.Fields{"email": "ana@example.com"})
		require.ErrorIs(t, err, store.ErrInvalidInput)
		require.Equal(t, "create applicants: invalid input [23505]", err.Error())

		var fault *store.Fault
		require.ErrorAs(t, err, &fault)
		require.Equal(t, "23505", fault.Code)
	})

	t.Run("closed connection is transient", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectQuery("SELECT e.* FROM applicants AS e WHERE e.center_id = $1 ORDER BY e.id").
			WillReturnError(sql.ErrConnDone)

		_, err := x.List(ctx, p, entity(t, "applicants"))
		require.True(t, store.IsTransient(err))
	})

	t.Run("rows affected failure", func(t *testing.T) {
		x, mock := setupMock(t)
		mock.ExpectExec("DELETE FROM applicants AS e WHERE (1 = 1 AND e.id = $1)").
			WillReturnResult(sqlmock.NewErrorResult(errors.New("not supported")))

		err := x.Delete(ctx, appAdmin, entity(t, "applicants"), 1)
		require.ErrorIs(t, err, store.ErrStoreFault)
	})

	t.Run("denied statements never reach the database", func(t *testing.T) {
		x, _ := setupMock(t)

		err := x.Delete(ctx, p, entity(t, "applicants"), 1)
		require.ErrorIs(t, err, store.ErrDenied)

		rows, err := x.List(ctx, principal(models.RoleCaseworker, ""), entity(t, "applicants"))
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func TestNonPositiveIDs(t *testing.T) {
	ctx := context.Background()
	hq := principal(models.RoleHQ, "1")
	north := principal(models.RoleCaseworker, "1")

	for _, id := range []int64{0, -3} {
		x, _ := setupMock(t)

		_, err := x.Get(ctx, hq, entity(t, "centers"), id)
		require.ErrorIs(t, err, store.ErrDenied)
		err = x.Delete(ctx, north, entity(t, "applicants"), id)
		require.ErrorIs(t, err, store.ErrDenied)

		_, err = x.Get(ctx, north, entity(t, "applicants"), id)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = x.Update(ctx, north, entity(t, "applicants"), id, store.Fields{"first_name": "Ana"})
		require.ErrorIs(t, err, store.ErrNotFound)
		err = x.Delete(ctx, appAdmin, entity(t, "applicants"), id)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestSpanRecordsBypass(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	x, mock := setupMock(t, WithTracer(tp.Tracer("test")))
	mock.ExpectExec("DELETE FROM meeting_attendees AS e WHERE (1 = 1 AND e.id = $1)").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT e.* FROM applicants AS e WHERE e.center_id = $1 ORDER BY e.id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	require.NoError(t, x.Delete(ctx, appAdmin, entity(t, "meeting_attendees"), 5))
	_, err := x.List(ctx, principal(models.RoleCaseworker, "1"), entity(t, "applicants"))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	bypass := func(s sdktrace.ReadOnlySpan) bool {
		for _, kv := range s.Attributes() {
			if kv.Key == telemetry.AttrBypass {
				return kv.Value.AsBool()
			}
		}
		t.Fatalf("span %s has no bypass attribute", s.Name())
		return false
	}
	require.True(t, bypass(spans[0]))
	require.False(t, bypass(spans[1]))
}

func TestClassifyError(t *testing.T) {
	x := New(nil, nil)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "cancelled", err: context.Canceled, want: store.ErrTransient},
		{name: "deadline", err: context.DeadlineExceeded, want: store.ErrTransient},
		{name: "bad conn", err: driver.ErrBadConn, want: store.ErrTransient},
		{name: "conn done", err: sql.ErrConnDone, want: store.ErrTransient},
		{name: "other", err: errors.New("syntax error"), want: store.ErrStoreFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.classifyError(tt.err)
			require.ErrorIs(t, got, tt.want)
			require.ErrorIs(t, got, tt.err)
		})
	}
}

func TestRebind(t *testing.T) {
	require.Equal(t, "a = $1 AND b IN ($2, $3)", rebind("a = ? AND b IN (?, ?)"))
	require.Equal(t, "1 = 1", rebind("1 = 1"))
}
