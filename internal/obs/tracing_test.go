package obs

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitTracerWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), TracingConfig{ServiceName: "farmbridge-worker", Exporter: "none", Environment: "test"})
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "reconcile")
	defer span.End()
	if !span.SpanContext().IsSampled() {
		t.Fatalf("expected a sampled span context")
	}
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracer(context.Background(), TracingConfig{Exporter: "zipkin"}); err == nil {
		t.Fatalf("expected an error for an unknown exporter")
	}
}

func TestTracingResourceDefaults(t *testing.T) {
	res, err := tracingResource(context.Background(), TracingConfig{Environment: "staging"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":           "farmbridge",
		"service.namespace":      "farmbridge",
		"service.version":        "dev",
		"deployment.environment": "staging",
	}
	set := res.Set()
	for k, v := range want {
		got, ok := set.Value(k)
		if !ok || got.AsString() != v {
			t.Fatalf("%s = %q, want %q", k, got.AsString(), v)
		}
	}
	if samplingRatio(0) != 1 || samplingRatio(0.25) != 0.25 || samplingRatio(3) != 1 {
		t.Fatalf("unexpected sampling ratio clamp")
	}
}
