package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/caseguard/internal/models"
)

// Sentinel errors for access outcomes. Callers map these to transport status
// and must keep ErrDenied and ErrNotFound distinct.
var (
	ErrDenied       = errors.New("access denied")
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTransient    = errors.New("transient store fault")

	// ErrStoreFault is a store failure that is neither retryable nor caused
	// by the caller.
	ErrStoreFault = errors.New("store fault")
)

// Row is a record as returned by the store, keyed by column name.
type Row map[string]any

// Fields is a caller supplied column to value payload for a write.
type Fields map[string]any

// Clone returns a shallow copy so stamping never mutates the caller's map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// RecordStore runs the five access checked operations for any catalogued
// entity.
type RecordStore interface {
	List(ctx context.Context, p models.Principal, e models.Entity) ([]Row, error)
	Get(ctx context.Context, p models.Principal, e models.Entity, id int64) (Row, error)
	Create(ctx context.Context, p models.Principal, e models.Entity, fields Fields) (Row, error)
	Update(ctx context.Context, p models.Principal, e models.Entity, id int64, fields Fields) (Row, error)
	Delete(ctx context.Context, p models.Principal, e models.Entity, id int64) error
}

// OpError records the operation and entity a failure happened on. It never
// carries bound values.
type OpError struct {
	Op     models.Operation
	Entity string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Fault is a classified driver error. Kind is one of the sentinels and Code
// is the backend's error code when known. The message omits the cause, as
// driver messages can quote row values.
type Fault struct {
	Kind  error
	Code  string
	Cause error
}

// NewFault classifies cause as kind.
func NewFault(kind error, code string, cause error) *Fault {
	return &Fault{Kind: kind, Code: code, Cause: cause}
}

func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("%v [%s]", f.Kind, f.Code)
	}
	return f.Kind.Error()
}

func (f *Fault) Unwrap() []error {
	if f.Cause == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Cause}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
