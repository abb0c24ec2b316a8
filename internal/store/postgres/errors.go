package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/caseguard/internal/store"
)

// ClassifyError maps PostgreSQL errors to store faults. It returns nil when
// err is not a *pgconn.PgError so the executor falls back to a generic fault.
//
// The returned fault carries only the SQLSTATE code. Detail and message text
// from the server are never surfaced since they can quote row values.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return store.NewFault(store.ErrTransient, "", err)
		}
		return nil
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation,
		pgerrcode.ForeignKeyViolation,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.InvalidTextRepresentation,
		pgerrcode.InvalidDatetimeFormat,
		pgerrcode.DatetimeFieldOverflow,
		pgerrcode.NumericValueOutOfRange,
		pgerrcode.StringDataRightTruncationDataException,
		pgerrcode.DatatypeMismatch:
		return store.NewFault(store.ErrInvalidInput, pgErr.Code, err)

	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.LockNotAvailable:
		// retryable transaction conflicts
		return store.NewFault(store.ErrTransient, pgErr.Code, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.QueryCanceled,
		pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return store.NewFault(store.ErrTransient, pgErr.Code, err)
	}

	return store.NewFault(store.ErrStoreFault, pgErr.Code, err)
}
