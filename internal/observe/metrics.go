// Package observe provides application-wide observability primitives for
// sidelined: OpenTelemetry metrics, tracing helpers, and the SDK provider
// setup that bridges metrics to Prometheus.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sideline metrics.
const meterName = "github.com/sidelinehq/sideline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text latency per clip.
	TranscriptionDuration metric.Float64Histogram

	// PersistDuration tracks remote-store write latency. Use with attribute:
	//   attribute.String("step", "key_moment"|"transcript"|"upload")
	PersistDuration metric.Float64Histogram

	// PipelineDuration tracks full receipt-to-cached latency per clip.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ClipsIngested counts pipeline runs. Use with attributes:
	//   attribute.String("path", "file"|"message"), attribute.String("status", ...)
	ClipsIngested metric.Int64Counter

	// AttributionOutcomes counts attribution decisions. Use with attribute:
	//   attribute.String("outcome", "matched"|"fanout")
	AttributionOutcomes metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks whether a game session is running (0 or 1 in
	// practice; the instrument allows more for future multi-team support).
	ActiveSessions metric.Int64UpDownCounter

	// SpoolDepth tracks the number of outbound payloads waiting in the
	// store-and-forward spool.
	SpoolDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// clip-pipeline latencies: transcription dominates and can take seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("sideline.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("sideline.persist.duration",
		metric.WithDescription("Latency of remote-store writes by step."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("sideline.pipeline.duration",
		metric.WithDescription("Receipt-to-cached latency per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ClipsIngested, err = m.Int64Counter("sideline.clips.ingested",
		metric.WithDescription("Total pipeline runs by ingestion path and status."),
	); err != nil {
		return nil, err
	}
	if met.AttributionOutcomes, err = m.Int64Counter("sideline.attribution.outcomes",
		metric.WithDescription("Total attribution decisions by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("sideline.active_sessions",
		metric.WithDescription("Number of running game sessions."),
	); err != nil {
		return nil, err
	}
	if met.SpoolDepth, err = m.Int64UpDownCounter("sideline.spool.depth",
		metric.WithDescription("Outbound payloads waiting in the store-and-forward spool."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordClip records one completed (or failed) pipeline run.
func (m *Metrics) RecordClip(ctx context.Context, path, status string) {
	m.ClipsIngested.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("status", status),
		),
	)
}

// RecordAttribution records one attribution decision.
func (m *Metrics) RecordAttribution(ctx context.Context, matched bool) {
	outcome := "fanout"
	if matched {
		outcome = "matched"
	}
	m.AttributionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordPersist records the latency of one remote-store write step.
func (m *Metrics) RecordPersist(ctx context.Context, step string, seconds float64) {
	m.PersistDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("step", step)),
	)
}
