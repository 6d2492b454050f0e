// Package telemetry sets up the OpenTelemetry tracer and meter providers.
//
// Both signals default to no-op providers. The "stdout" exporters write
// JSON to the configured writer and are meant for local debugging.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/voltigdev/voltig-turbo/internal/config"
)

// Exporter names accepted by the telemetry config.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// InstrumentationName names the tracer and meter used by the server.
const InstrumentationName = "github.com/voltigdev/voltig-turbo"

// DefaultMetricInterval is the export interval when none is configured.
const DefaultMetricInterval = 60 * time.Second

// Providers holds the configured providers. Shutdown flushes and stops
// whichever SDK providers were created.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdown []func(context.Context) error
}

// Option configures Setup.
type Option func(*options)

type options struct {
	writer  io.Writer
	version string
}

// WithWriter sets where the stdout exporters write. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithServiceVersion records the build version on the resource.
func WithServiceVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Setup builds the providers selected by cfg.
func Setup(ctx context.Context, cfg config.TelemetryConfig, serviceName string, opts ...Option) (*Providers, error) {
	o := options{writer: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", o.version),
	)

	p := &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}

	switch cfg.Traces {
	case "", ExporterNone:
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		p.TracerProvider = tp
		p.shutdown = append(p.shutdown, tp.Shutdown)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Traces)
	}

	switch cfg.Metrics {
	case "", ExporterNone:
	case ExporterStdout:
		interval := DefaultMetricInterval
		if cfg.MetricInterval != "" {
			d, err := config.ParseDuration(cfg.MetricInterval)
			if err != nil {
				_ = p.Shutdown(ctx)
				return nil, fmt.Errorf("invalid metric interval: %w", err)
			}
			if d > 0 {
				interval = d
			}
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		p.MeterProvider = mp
		p.shutdown = append(p.shutdown, mp.Shutdown)
	default:
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("unknown metric exporter %q", cfg.Metrics)
	}

	return p, nil
}

// Tracer returns the server tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(InstrumentationName)
}

// Shutdown flushes pending telemetry and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
