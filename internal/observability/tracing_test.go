package observability

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ServiceName != "chromademo" {
		t.Fatalf("expected service name 'chromademo', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{
		ServiceName: "test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{2.0, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestNestedSpans(t *testing.T) {
	ctx := context.Background()

	ctx, demoSpan := StartDemoSpan(ctx, "space_facts")

	ctx, connSpan := StartConnectSpan(ctx, "chroma", "http://localhost:8000")
	RecordAttempts(connSpan, 2)
	connSpan.End()

	_, querySpan := StartVectorSpan(ctx, "query", "sample_collection")
	RecordQueryResult(querySpan, 1, 3, 3)
	querySpan.End()

	demoSpan.End()
}

func TestRecordError(t *testing.T) {
	_, span := StartVectorSpan(context.Background(), "add", "test")

	// nil must be a no-op
	RecordError(span, nil)
	RecordError(span, errors.New("test error"))
	span.End()
}

func TestTracerProvider_Shutdown_NilProvider(t *testing.T) {
	tp := &TracerProvider{}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error for nil provider, got: %v", err)
	}
}

func TestTracerName(t *testing.T) {
	if TracerName != "github.com/efebarandurmaz/chromademo" {
		t.Fatalf("unexpected tracer name: %s", TracerName)
	}
}
