// Package observe provides application-wide observability primitives for
// the game master client: OpenTelemetry metrics, tracing, structured
// logging, and an instrumented HTTP transport for backend calls.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the optional /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "github.com/PawanKonwar/ai-game-master"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks full turn latency, from submission until the
	// scene is settled into the transcript.
	TurnDuration metric.Float64Histogram

	// BackendRequestDuration tracks single HTTP round-trips to the
	// backend. Recorded by [Transport] with method and path attributes.
	BackendRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed turns. Use with attributes:
	//   attribute.String("kind", "opening"|"action"|"freeform"), attribute.String("status", "ok"|"error")
	Turns metric.Int64Counter

	// DiceRolls counts dice results surfaced to the player.
	DiceRolls metric.Int64Counter

	// Choices counts choice slots shown to the player. Use with attribute:
	//   attribute.String("source", "extracted"|"fallback")
	Choices metric.Int64Counter

	// SaveOps counts persistence operations. Use with attributes:
	//   attribute.String("op", "save"|"load"|"list"), attribute.String("status", "ok"|"error")
	SaveOps metric.Int64Counter

	// Probes counts health probe outcomes. Use with attribute:
	//   attribute.String("outcome", "up"|"down")
	Probes metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts failed backend calls. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("kind", "status"|"transport"|"generation")
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// Connected tracks the connection state as 0 or 1.
	Connected metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Scene
// generation sits on an LLM call, so the tail stretches to minutes.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("aigm.turn.duration",
		metric.WithDescription("Latency from turn submission until the scene is settled."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendRequestDuration, err = m.Float64Histogram("aigm.backend.request.duration",
		metric.WithDescription("Backend HTTP round-trip latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("aigm.turns",
		metric.WithDescription("Total turns by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.DiceRolls, err = m.Int64Counter("aigm.dice.rolls",
		metric.WithDescription("Total dice results surfaced to the player."),
	); err != nil {
		return nil, err
	}
	if met.Choices, err = m.Int64Counter("aigm.choices",
		metric.WithDescription("Total choice slots shown by source."),
	); err != nil {
		return nil, err
	}
	if met.SaveOps, err = m.Int64Counter("aigm.save.ops",
		metric.WithDescription("Total save, load, and list operations by status."),
	); err != nil {
		return nil, err
	}
	if met.Probes, err = m.Int64Counter("aigm.probes",
		metric.WithDescription("Total health probe outcomes."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("aigm.backend.errors",
		metric.WithDescription("Total failed backend calls by endpoint and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Connected, err = m.Int64UpDownCounter("aigm.connected",
		metric.WithDescription("Connection state: 1 while the backend is reachable."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn is a convenience method that records a turn counter increment
// with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, kind, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordSaveOp is a convenience method that records a persistence operation
// counter increment.
func (m *Metrics) RecordSaveOp(ctx context.Context, op, status string) {
	m.SaveOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, endpoint, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("kind", kind),
		),
	)
}

// RecordProbe is a convenience method that records a health probe outcome.
func (m *Metrics) RecordProbe(ctx context.Context, up bool) {
	outcome := "down"
	if up {
		outcome = "up"
	}
	m.Probes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
