package observe

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitProvider registers a Prometheus exporter with the process-wide default
// registry, so it must run exactly once per test binary.
func TestMain(m *testing.M) {
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:    "fluxgate-test",
		ServiceVersion: "0.0.1",
	})
	if err != nil {
		panic("InitProvider: " + err.Error())
	}
	code := m.Run()
	shutdown(context.Background()) //nolint:errcheck
	os.Exit(code)
}

func TestInitProvider_RegistersSDKProviders(t *testing.T) {
	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Errorf("global meter provider = %T, want *sdkmetric.MeterProvider", otel.GetMeterProvider())
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("global tracer provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID on empty context = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "test-span")
	defer span.End()
	if got := TraceID(ctx); got == "" {
		t.Error("TraceID empty inside an active span")
	}
}
