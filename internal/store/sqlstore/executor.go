// Package sqlstore runs access checked CRUD statements for catalogued
// entities over database/sql.
//
// Every operation authorizes against the capability table, builds the
// tenancy predicate, stamps audit fields on writes and runs exactly one
// statement in which the predicate and the write are combined.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/caseguard/internal/audit"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/payload"
	"github.com/wolfeidau/caseguard/internal/store"
	"github.com/wolfeidau/caseguard/internal/telemetry"
	"github.com/wolfeidau/caseguard/internal/tenancy"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DB is the subset of *sql.DB the executor needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Executor implements store.RecordStore.
type Executor struct {
	db           DB
	table        *auth.Table
	classify     Classifier
	queryTimeout time.Duration
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
}

var _ store.RecordStore = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier sets the backend specific error classifier.
func WithClassifier(fn Classifier) Option {
	return func(x *Executor) { x.classify = fn }
}

// WithQueryTimeout bounds every statement. Zero leaves the caller's
// deadline in charge.
func WithQueryTimeout(d time.Duration) Option {
	return func(x *Executor) { x.queryTimeout = d }
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(x *Executor) { x.tracer = tracer }
}

// New creates an executor over db authorizing with table.
func New(db DB, table *auth.Table, opts ...Option) *Executor {
	x := &Executor{
		db:      db,
		table:   table,
		metrics: telemetry.GetMetrics(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// List returns every row of e visible to p. An empty result is success.
func (x *Executor) List(ctx context.Context, p models.Principal, e models.Entity) (rows []store.Row, err error) {
	ctx, finish := x.start(ctx, "list", models.OpRead, e)
	defer func() { finish(err) }()

	grant, err := x.authorize(ctx, p, e, models.OpRead)
	if err != nil {
		return nil, opError(models.OpRead, e, err)
	}

	pred := scope(p, e, grant, tenancy.ModeRead)
	if pred.FailsClosed() {
		return []store.Row{}, nil
	}

	rows, err = x.query(ctx, selectStatement(e, pred))
	if err != nil {
		return nil, opError(models.OpRead, e, err)
	}

	x.metrics.RowsReturned.Record(ctx, int64(len(rows)), metric.WithAttributes(telemetry.AttrEntity.String(e.Name)))
	return payload.ForList(e, rows), nil
}

// Get returns the row of e with id. A row that is absent and a row owned by
// another tenant are both ErrNotFound. Ids below 1 match nothing, but only
// once the principal is authorized.
func (x *Executor) Get(ctx context.Context, p models.Principal, e models.Entity, id int64) (row store.Row, err error) {
	ctx, finish := x.start(ctx, "get", models.OpRead, e)
	defer func() { finish(err) }()

	grant, err := x.authorize(ctx, p, e, models.OpRead)
	if err != nil {
		return nil, opError(models.OpRead, e, err)
	}
	if id <= 0 {
		return nil, opError(models.OpRead, e, store.ErrNotFound)
	}

	pred := scope(p, e, grant, tenancy.ModeRead).And(tenancy.ByID(e, id))
	if pred.FailsClosed() {
		return nil, opError(models.OpRead, e, store.ErrNotFound)
	}

	return x.one(ctx, models.OpRead, e, selectStatement(e, pred))
}

// Create inserts a row of e and returns it with its generated id.
func (x *Executor) Create(ctx context.Context, p models.Principal, e models.Entity, fields store.Fields) (row store.Row, err error) {
	ctx, finish := x.start(ctx, "create", models.OpCreate, e)
	defer func() { finish(err) }()

	grant, err := x.authorize(ctx, p, e, models.OpCreate)
	if err != nil {
		return nil, opError(models.OpCreate, e, err)
	}

	if err := validateColumns(e, fields); err != nil {
		return nil, opError(models.OpCreate, e, err)
	}

	if err := checkSubtype(grant, e, fields, true); err != nil {
		return nil, opError(models.OpCreate, e, err)
	}

	stamped, err := audit.Stamp(p, e, grant.BypassTenancy, models.OpCreate, fields)
	if err != nil {
		return nil, opError(models.OpCreate, e, err)
	}

	guard := tenancy.Tautology()
	if e.Tenancy.Strategy != models.StrategyDirect {
		parentID, ok := stamped[e.Tenancy.ForeignKey]
		if !ok || parentID == nil {
			return nil, opError(models.OpCreate, e, fmt.Errorf("%w: %s is required", store.ErrInvalidInput, e.Tenancy.ForeignKey))
		}
		guard = tenancy.ParentGuard(p, e, grant.BypassTenancy, parentID)
	}

	return x.one(ctx, models.OpCreate, e, insertStatement(e, stamped, guard))
}

// Update applies fields to the row of e with id and returns the updated row.
func (x *Executor) Update(ctx context.Context, p models.Principal, e models.Entity, id int64, fields store.Fields) (row store.Row, err error) {
	ctx, finish := x.start(ctx, "update", models.OpUpdate, e)
	defer func() { finish(err) }()

	grant, err := x.authorize(ctx, p, e, models.OpUpdate)
	if err != nil {
		return nil, opError(models.OpUpdate, e, err)
	}
	if id <= 0 {
		return nil, opError(models.OpUpdate, e, store.ErrNotFound)
	}

	if err := validateColumns(e, fields); err != nil {
		return nil, opError(models.OpUpdate, e, err)
	}

	if err := checkSubtype(grant, e, fields, false); err != nil {
		return nil, opError(models.OpUpdate, e, err)
	}

	stamped, err := audit.Stamp(p, e, grant.BypassTenancy, models.OpUpdate, fields)
	if err != nil {
		return nil, opError(models.OpUpdate, e, err)
	}

	pred := scope(p, e, grant, tenancy.ModeWrite).And(tenancy.ByID(e, id))

	// Moving a child row must not land it under a parent the principal
	// cannot see.
	if e.Tenancy.Strategy != models.StrategyDirect {
		if parentID, ok := stamped[e.Tenancy.ForeignKey]; ok {
			pred = pred.And(tenancy.ParentGuard(p, e, grant.BypassTenancy, parentID))
		}
	}

	return x.one(ctx, models.OpUpdate, e, updateStatement(e, stamped, pred))
}

// Delete removes the row of e with id. Deleting an absent or foreign row is
// ErrNotFound and changes nothing.
func (x *Executor) Delete(ctx context.Context, p models.Principal, e models.Entity, id int64) (err error) {
	ctx, finish := x.start(ctx, "delete", models.OpDelete, e)
	defer func() { finish(err) }()

	grant, err := x.authorize(ctx, p, e, models.OpDelete)
	if err != nil {
		return opError(models.OpDelete, e, err)
	}
	if id <= 0 {
		return opError(models.OpDelete, e, store.ErrNotFound)
	}

	pred := scope(p, e, grant, tenancy.ModeWrite).And(tenancy.ByID(e, id))

	n, err := x.exec(ctx, deleteStatement(e, pred))
	if err != nil {
		return opError(models.OpDelete, e, err)
	}
	if n == 0 {
		return opError(models.OpDelete, e, store.ErrNotFound)
	}
	return nil
}

// authorize checks the capability table. A non-bypass principal without a
// valid home tenant keeps read access, which fails closed, and is denied
// every write.
func (x *Executor) authorize(ctx context.Context, p models.Principal, e models.Entity, op models.Operation) (auth.Grant, error) {
	grant, err := x.table.AuthorizePrincipal(p, e.Class, op)
	if err != nil {
		zerolog.Ctx(ctx).Debug().
			Str("principal", p.String()).
			Str("entity", e.Name).
			Str("operation", string(op)).
			Msg("Access denied")
		return auth.Grant{}, err
	}

	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrBypass.Bool(grant.BypassTenancy))

	if grant.BypassTenancy {
		return grant, nil
	}

	if _, ok := p.Tenant(); !ok {
		zerolog.Ctx(ctx).Warn().
			Str("principal", p.String()).
			Str("entity", e.Name).
			Str("operation", string(op)).
			Msg("Principal has no valid home tenant, failing closed")
		x.metrics.FailClosedTotal.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrEntity.String(e.Name),
			telemetry.AttrOperation.String(string(op)),
		))
		if op != models.OpRead {
			return auth.Grant{}, audit.ErrNoTenant
		}
	}

	return grant, nil
}

// scope is the tenancy predicate with any subtype restriction layered on.
func scope(p models.Principal, e models.Entity, grant auth.Grant, mode tenancy.Mode) tenancy.Predicate {
	pred := tenancy.Build(p, e, grant.BypassTenancy, mode)
	if values, ok := grant.Subtypes(e.Name); ok {
		pred = pred.And(tenancy.SubtypeIn(e, values))
	}
	return pred
}

func validateColumns(e models.Entity, fields store.Fields) error {
	for col := range fields {
		if col == e.IDColumn {
			continue
		}
		if !e.Writable(col) {
			return fmt.Errorf("%w: unknown column %q", store.ErrInvalidInput, col)
		}
	}
	return nil
}

// checkSubtype denies payloads whose subtype lies outside the grant's
// allow-list. required demands the value be present.
func checkSubtype(grant auth.Grant, e models.Entity, fields store.Fields, required bool) error {
	values, ok := grant.Subtypes(e.Name)
	if !ok {
		return nil
	}

	v, present := fields[e.SubtypeColumn]
	if !present {
		if required {
			return fmt.Errorf("%w: %s is required", store.ErrDenied, e.SubtypeColumn)
		}
		return nil
	}

	s, _ := v.(string)
	if !slices.Contains(values, s) {
		return fmt.Errorf("%w: %s outside allowed subtypes", store.ErrDenied, e.SubtypeColumn)
	}
	return nil
}

func (x *Executor) one(ctx context.Context, op models.Operation, e models.Entity, stmt statement) (store.Row, error) {
	rows, err := x.query(ctx, stmt)
	if err != nil {
		return nil, opError(op, e, err)
	}
	if len(rows) == 0 {
		return nil, opError(op, e, store.ErrNotFound)
	}
	return rows[0], nil
}

func (x *Executor) query(ctx context.Context, stmt statement) ([]store.Row, error) {
	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	rows, err := x.db.QueryContext(ctx, stmt.query, stmt.args...)
	if err != nil {
		return nil, x.classifyError(err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, x.classifyError(err)
	}
	return out, nil
}

func (x *Executor) exec(ctx context.Context, stmt statement) (int64, error) {
	ctx, cancel := x.withTimeout(ctx)
	defer cancel()

	res, err := x.db.ExecContext(ctx, stmt.query, stmt.args...)
	if err != nil {
		return 0, x.classifyError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, x.classifyError(err)
	}
	return n, nil
}

func (x *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if x.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, x.queryTimeout)
}

// start opens a span for one operation. The returned func records the
// outcome and must be called exactly once.
func (x *Executor) start(ctx context.Context, name string, op models.Operation, e models.Entity) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := x.tracer.Start(ctx, "caseguard."+name,
		trace.WithAttributes(
			telemetry.AttrEntity.String(e.Name),
			telemetry.AttrOperation.String(string(op)),
			telemetry.AttrStrategy.String(e.Tenancy.Strategy.String()),
		),
	)

	return ctx, func(err error) {
		outcome := outcomeOf(err)
		attrs := metric.WithAttributes(
			telemetry.AttrEntity.String(e.Name),
			telemetry.AttrOperation.String(string(op)),
			telemetry.AttrOutcome.String(outcome),
		)

		elapsed := time.Since(started)
		x.metrics.AccessTotal.Add(ctx, 1, attrs)
		x.metrics.OperationDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

		span.SetAttributes(telemetry.AttrOutcome.String(outcome))

		logger := zerolog.Ctx(ctx)
		switch outcome {
		case telemetry.OutcomeTransient, telemetry.OutcomeError:
			x.metrics.StoreFaults.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Error().Err(err).
				Str("entity", e.Name).
				Str("operation", name).
				Dur("duration", elapsed).
				Msg("Store operation failed")
		default:
			logger.Debug().
				Str("entity", e.Name).
				Str("operation", name).
				Str("outcome", outcome).
				Dur("duration", elapsed).
				Msg("Store operation completed")
		}

		span.End()
	}
}

func opError(op models.Operation, e models.Entity, err error) error {
	return &store.OpError{Op: op, Entity: e.Name, Err: err}
}
