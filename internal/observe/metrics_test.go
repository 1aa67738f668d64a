package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMetrics_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background()) //nolint:errcheck

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.ToolCalls.Add(ctx, 1)
	m.ToolCalls.Add(ctx, 1)
	m.SlotsInUse.Add(ctx, 1)
	m.SlotsInUse.Add(ctx, -1)
	m.DispatchDuration.Record(ctx, 0.25)
	m.UpstreamDuration.Record(ctx, 42.0)

	metrics := collect(t, reader)

	calls, ok := metrics["fluxgate.tool.calls"].Data.(metricdata.Sum[int64])
	if !ok || len(calls.DataPoints) != 1 || calls.DataPoints[0].Value != 2 {
		t.Errorf("tool.calls = %+v, want sum 2", metrics["fluxgate.tool.calls"])
	}

	slots, ok := metrics["fluxgate.slots.in_use"].Data.(metricdata.Sum[int64])
	if !ok || len(slots.DataPoints) != 1 || slots.DataPoints[0].Value != 0 {
		t.Errorf("slots.in_use = %+v, want net 0", metrics["fluxgate.slots.in_use"])
	}

	hist, ok := metrics["fluxgate.dispatch.duration"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("dispatch.duration = %+v, want one sample", metrics["fluxgate.dispatch.duration"])
	}

	// Image generation calls can run for minutes; the buckets must reach
	// the configured request ceiling.
	upstream := metrics["fluxgate.upstream.duration"].Data.(metricdata.Histogram[float64])
	bounds := upstream.DataPoints[0].Bounds
	if bounds[len(bounds)-1] != 300 {
		t.Errorf("top latency bucket = %v, want 300s", bounds[len(bounds)-1])
	}
}

func TestDefaultMetrics_SameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
