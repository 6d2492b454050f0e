package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/voltigdev/voltig-turbo/internal/config"
)

func TestSetup_None(t *testing.T) {
	t.Parallel()

	p, err := Setup(context.Background(), config.TelemetryConfig{Traces: "none", Metrics: "none"}, "voltig-turbo")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, ok := p.TracerProvider.(tracenoop.TracerProvider); !ok {
		t.Errorf("TracerProvider = %T, want noop", p.TracerProvider)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestSetup_StdoutTraces(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := Setup(context.Background(), config.TelemetryConfig{Traces: "stdout"}, "voltig-turbo",
		WithWriter(&buf), WithServiceVersion("1.0.0"))
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, span := p.Tracer().Start(context.Background(), "rpc todo.getTodos")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "rpc todo.getTodos") {
		t.Errorf("span not exported: %s", out)
	}
	if !strings.Contains(out, "voltig-turbo") {
		t.Errorf("service name missing from resource: %s", out)
	}
}

func TestSetup_StdoutMetrics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := Setup(context.Background(),
		config.TelemetryConfig{Metrics: "stdout", MetricInterval: "1h"}, "voltig-turbo", WithWriter(&buf))
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	obs, err := NewRPCObserver(p.MeterProvider)
	if err != nil {
		t.Fatalf("NewRPCObserver() error = %v", err)
	}
	obs.ObserveRPC("todo.createTodo", "OK", 20*time.Millisecond)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if !strings.Contains(buf.String(), "rpc.server.duration") {
		t.Errorf("metrics not exported on shutdown: %s", buf.String())
	}
}

func TestSetup_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{"unknown trace exporter", config.TelemetryConfig{Traces: "jaeger"}},
		{"unknown metric exporter", config.TelemetryConfig{Metrics: "otlp"}},
		{"bad interval", config.TelemetryConfig{Metrics: "stdout", MetricInterval: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Setup(context.Background(), tt.cfg, "voltig-turbo"); err == nil {
				t.Error("Setup() should fail")
			}
		})
	}
}

func TestRPCObserver_Records(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	obs, err := NewRPCObserver(mp)
	if err != nil {
		t.Fatalf("NewRPCObserver() error = %v", err)
	}

	obs.ObserveRPC("todo.getTodos", "OK", 10*time.Millisecond)
	obs.ObserveRPC("todo.getTodos", "UNAUTHORIZED", 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var calls int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "rpc.server.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("calls data = %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				calls += dp.Value
			}
		}
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
