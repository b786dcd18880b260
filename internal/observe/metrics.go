// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/MrWong99/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SynthesisDuration tracks end-to-end synthesis stream latency per
	// session, from first provider pull to end-of-stream. Use with
	// attribute.String("provider", ...).
	SynthesisDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// SessionsTotal counts sessions by terminal outcome. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	SessionsTotal metric.Int64Counter

	// StreamChunks counts audio frames delivered to clients. Use with
	// attributes: attribute.String("provider", ...), attribute.String("format", ...)
	StreamChunks metric.Int64Counter

	// StreamBytes counts encoded audio bytes delivered to clients, same
	// attributes as StreamChunks.
	StreamBytes metric.Int64Counter

	// ProviderFailures counts provider errors by failure reason. Use with
	// attributes: attribute.String("provider", ...), attribute.String("reason", ...)
	ProviderFailures metric.Int64Counter

	// QueueFullTotal counts sessions rejected because the work queue was at
	// capacity.
	QueueFullTotal metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of sessions currently streaming.
	ActiveStreams metric.Int64UpDownCounter

	// QueueDepth tracks the number of sessions waiting in the work queue.
	QueueDepth metric.Int64UpDownCounter

	// WorkersBusy tracks the number of workers currently driving a pipeline.
	WorkersBusy metric.Int64UpDownCounter

	// QueueMaxsize reports the configured queue capacity.
	QueueMaxsize metric.Int64Gauge

	// WorkersTotal reports the configured worker pool size.
	WorkersTotal metric.Int64Gauge

	// RateLimitMaxUsage reports the highest per-origin quota consumption as
	// a fraction in [0, 1].
	RateLimitMaxUsage metric.Float64Gauge

	// RateLimitWindowRemaining reports the shortest time in seconds until an
	// active rate-limit window rolls over.
	RateLimitWindowRemaining metric.Float64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming-synthesis latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("voxgate.synthesis.duration",
		metric.WithDescription("End-to-end synthesis stream latency per session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SessionsTotal, err = m.Int64Counter("voxgate.sessions.total",
		metric.WithDescription("Total sessions by provider and terminal status."),
	); err != nil {
		return nil, err
	}
	if met.StreamChunks, err = m.Int64Counter("voxgate.stream.chunks",
		metric.WithDescription("Total audio frames delivered by provider and format."),
	); err != nil {
		return nil, err
	}
	if met.StreamBytes, err = m.Int64Counter("voxgate.stream.bytes",
		metric.WithDescription("Total encoded audio bytes delivered by provider and format."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ProviderFailures, err = m.Int64Counter("voxgate.provider.failures",
		metric.WithDescription("Total provider failures by provider and reason."),
	); err != nil {
		return nil, err
	}
	if met.QueueFullTotal, err = m.Int64Counter("voxgate.queue.full",
		metric.WithDescription("Total sessions rejected because the work queue was full."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("voxgate.active_streams",
		metric.WithDescription("Number of sessions currently streaming."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("voxgate.queue.depth",
		metric.WithDescription("Number of sessions waiting in the work queue."),
	); err != nil {
		return nil, err
	}
	if met.WorkersBusy, err = m.Int64UpDownCounter("voxgate.workers.busy",
		metric.WithDescription("Number of workers currently driving a pipeline."),
	); err != nil {
		return nil, err
	}

	// Configuration and limiter gauges.
	if met.QueueMaxsize, err = m.Int64Gauge("voxgate.queue.maxsize",
		metric.WithDescription("Configured work queue capacity."),
	); err != nil {
		return nil, err
	}
	if met.WorkersTotal, err = m.Int64Gauge("voxgate.workers.total",
		metric.WithDescription("Configured worker pool size."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitMaxUsage, err = m.Float64Gauge("voxgate.ratelimit.max_usage",
		metric.WithDescription("Highest per-origin rate-limit quota consumption, 0 to 1."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitWindowRemaining, err = m.Float64Gauge("voxgate.ratelimit.window_remaining",
		metric.WithDescription("Shortest time until an active rate-limit window rolls over."),
		metric.WithUnit("s"),
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

// RecordSession is a convenience method that counts one session reaching a
// terminal status.
func (m *Metrics) RecordSession(ctx context.Context, provider, status string) {
	m.SessionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordFrame is a convenience method that counts one delivered audio frame
// and its payload size.
func (m *Metrics) RecordFrame(ctx context.Context, provider, format string, bytes int) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("format", format),
	)
	m.StreamChunks.Add(ctx, 1, attrs)
	m.StreamBytes.Add(ctx, int64(bytes), attrs)
}

// RecordSynthesis is a convenience method that records one session's
// end-to-end synthesis latency.
func (m *Metrics) RecordSynthesis(ctx context.Context, provider string, seconds float64) {
	m.SynthesisDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordProviderFailure is a convenience method that counts one provider
// failure with its machine-readable reason.
func (m *Metrics) RecordProviderFailure(ctx context.Context, provider, reason string) {
	m.ProviderFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("reason", reason),
		),
	)
}
