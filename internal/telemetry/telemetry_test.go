package telemetry_test

import (
	"context"
	"screenshot-capturer/internal/telemetry"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestStart(t *testing.T) {
	registry := prometheus.NewRegistry()
	ctx := context.Background()

	tel, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName: "screenshot-capturer-test",
		Registerer:  registry,
	})
	if err != nil {
		t.Fatal(err)
	}

	tel.HTTPRequestsDurationMicroSeconds.Record(ctx, 1500, metric.WithAttributes(
		attribute.Key("method").String("GET"),
		attribute.Key("handler").String("GET /v1/health"),
	))

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "http_requests_duration_micro_seconds" {
			found = true
		}
	}
	if !found {
		t.Errorf("histogram not exported, got %d families", len(families))
	}

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}
