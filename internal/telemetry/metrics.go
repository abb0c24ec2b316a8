package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "github.com/wolfeidau/caseguard"
	tracerName = "github.com/wolfeidau/caseguard"
)

// Outcome labels for access decisions.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeTransient = "transient"
	OutcomeError     = "error"
)

// Attribute keys. Tenant ids and row values are never recorded.
var (
	AttrEntity    = attribute.Key("caseguard.entity")
	AttrOperation = attribute.Key("caseguard.operation")
	AttrOutcome   = attribute.Key("caseguard.outcome")
	AttrStrategy  = attribute.Key("caseguard.tenancy.strategy")
	AttrBypass    = attribute.Key("caseguard.tenancy.bypass")
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Access decision metrics
	AccessTotal       metric.Int64Counter
	FailClosedTotal   metric.Int64Counter
	OperationDuration metric.Float64Histogram

	// Store metrics
	RowsReturned metric.Int64Histogram
	StoreFaults  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for store operations.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AccessTotal, _ = meter.Int64Counter(
		"caseguard.access.total",
		metric.WithDescription("Total number of record operations by outcome"),
		metric.WithUnit("{operation}"),
	)

	m.FailClosedTotal, _ = meter.Int64Counter(
		"caseguard.access.fail_closed.total",
		metric.WithDescription("Total number of operations by principals without a valid home tenant"),
		metric.WithUnit("{operation}"),
	)

	m.OperationDuration, _ = meter.Float64Histogram(
		"caseguard.operation.duration",
		metric.WithDescription("Duration of record operations"),
		metric.WithUnit("ms"),
	)

	m.RowsReturned, _ = meter.Int64Histogram(
		"caseguard.store.rows",
		metric.WithDescription("Rows returned by list operations"),
		metric.WithUnit("{row}"),
	)

	m.StoreFaults, _ = meter.Int64Counter(
		"caseguard.store.faults.total",
		metric.WithDescription("Total number of store faults by outcome"),
		metric.WithUnit("{error}"),
	)

	return m
}
