// Package observe provides application-wide observability primitives for
// the fluxgate gateway: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fluxgate metrics.
const meterName = "github.com/bananabit/fluxgate"

// Metrics holds all OpenTelemetry metric instruments for the gateway.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// DispatchDuration tracks full dispatch latency (validation through
	// terminal state). Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	DispatchDuration metric.Float64Histogram

	// UpstreamDuration tracks the outbound upstream call latency.
	// Use with attribute.String("upstream", ...).
	UpstreamDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// SlotsInUse tracks the number of concurrency slots currently held.
	SlotsInUse metric.Int64UpDownCounter

	// SlotRejections counts invocations rejected because the slot pool was
	// exhausted. Use with attribute.String("transport", ...).
	SlotRejections metric.Int64Counter

	// ChannelConnections tracks the number of live bidirectional channel
	// connections.
	ChannelConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Upstream
// image generation calls routinely run for tens of seconds, so the upper
// buckets stretch far beyond typical HTTP latencies.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DispatchDuration, err = m.Float64Histogram("fluxgate.dispatch.duration",
		metric.WithDescription("Latency of a full tool dispatch by tool and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("fluxgate.upstream.duration",
		metric.WithDescription("Latency of outbound upstream API calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("fluxgate.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SlotRejections, err = m.Int64Counter("fluxgate.slots.rejections",
		metric.WithDescription("Invocations rejected due to an exhausted slot pool."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SlotsInUse, err = m.Int64UpDownCounter("fluxgate.slots.in_use",
		metric.WithDescription("Concurrency slots currently held by in-flight invocations."),
	); err != nil {
		return nil, err
	}
	if met.ChannelConnections, err = m.Int64UpDownCounter("fluxgate.channel.connections",
		metric.WithDescription("Open bidirectional channel connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("fluxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
