package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport is an [http.RoundTripper] that instruments every backend call:
//
//  1. Starts an OTel client span for the request.
//  2. Injects W3C Trace Context into the outgoing headers so the backend
//     can join the trace.
//  3. Records round-trip duration to [Metrics.BackendRequestDuration].
//  4. Logs completion at debug level with status, duration, and trace info.
//
// Wrap it around the HTTP client handed to the backend API client.
type Transport struct {
	base    http.RoundTripper
	metrics *Metrics
	prop    propagation.TraceContext
}

// NewTransport wraps base with instrumentation. A nil base falls back to
// [http.DefaultTransport].
func NewTransport(base http.RoundTripper, m *Metrics) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, metrics: m}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := StartSpan(req.Context(), "HTTP "+req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
		),
	)
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)
	t.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)

	duration := time.Since(start)
	t.metrics.BackendRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("path", req.URL.Path),
		),
	)

	if err != nil {
		span.RecordError(err)
		slog.LogAttrs(ctx, slog.LevelDebug, "backend request failed",
			slog.String("trace_id", CorrelationID(ctx)),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	slog.LogAttrs(ctx, slog.LevelDebug, "backend request completed",
		slog.String("trace_id", CorrelationID(ctx)),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	)
	return resp, nil
}
