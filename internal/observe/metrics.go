// Package observe provides application-wide observability primitives for
// bacakata: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all bacakata metrics.
const meterName = "github.com/MrWong99/bacakata"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CorrectionDuration tracks how long fragment correction takes per frame.
	CorrectionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Frames counts recognizer fragments submitted to a session. Use with
	// attribute:
	//   attribute.String("status", "ok"|"failed")
	Frames metric.Int64Counter

	// Decisions counts narration gate verdicts. Use with attributes:
	//   attribute.String("action", ...), attribute.String("reason", ...)
	Decisions metric.Int64Counter

	// Corrections counts word substitutions applied by the corrector.
	Corrections metric.Int64Counter

	// CacheLookups counts correction cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live correction sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// correctionBuckets defines histogram bucket boundaries (in seconds) for the
// per-frame correction cost, which is expected to stay well below a frame
// interval.
var correctionBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CorrectionDuration, err = m.Float64Histogram("bacakata.correction.duration",
		metric.WithDescription("Latency of correcting one recognizer fragment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(correctionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("bacakata.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("bacakata.frames",
		metric.WithDescription("Total recognizer fragments by status."),
	); err != nil {
		return nil, err
	}
	if met.Decisions, err = m.Int64Counter("bacakata.decisions",
		metric.WithDescription("Total narration decisions by action and reason."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("bacakata.corrections",
		metric.WithDescription("Total word substitutions applied."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("bacakata.cache.lookups",
		metric.WithDescription("Total correction cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("bacakata.active_sessions",
		metric.WithDescription("Number of live correction sessions."),
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

// RecordFrame records one submitted fragment with the given status.
func (m *Metrics) RecordFrame(ctx context.Context, status string) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDecision records one narration gate verdict.
func (m *Metrics) RecordDecision(ctx context.Context, action, reason string) {
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("reason", reason),
		),
	)
}

// RecordCacheLookups records hits and misses of the correction cache for one
// fragment. Zero counts are skipped.
func (m *Metrics) RecordCacheLookups(ctx context.Context, hits, misses int) {
	if hits > 0 {
		m.CacheLookups.Add(ctx, int64(hits), metric.WithAttributes(attribute.String("result", "hit")))
	}
	if misses > 0 {
		m.CacheLookups.Add(ctx, int64(misses), metric.WithAttributes(attribute.String("result", "miss")))
	}
}
