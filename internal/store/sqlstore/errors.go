package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"github.com/wolfeidau/caseguard/internal/store"
	"github.com/wolfeidau/caseguard/internal/telemetry"
)

// Classifier maps a backend specific driver error to a *store.Fault. It
// returns nil for errors it does not recognise.
type Classifier func(error) error

func (x *Executor) classifyError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.NewFault(store.ErrTransient, "", err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return store.NewFault(store.ErrTransient, "", err)
	}

	if x.classify != nil {
		if classified := x.classify(err); classified != nil {
			return classified
		}
	}

	return store.NewFault(store.ErrStoreFault, "", err)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeAllowed
	case errors.Is(err, store.ErrDenied):
		return telemetry.OutcomeDenied
	case errors.Is(err, store.ErrNotFound):
		return telemetry.OutcomeNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return telemetry.OutcomeInvalid
	case errors.Is(err, store.ErrTransient):
		return telemetry.OutcomeTransient
	}
	return telemetry.OutcomeError
}
