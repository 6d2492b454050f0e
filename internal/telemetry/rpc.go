package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
)

// RPCObserver records procedure latency and call counts as OpenTelemetry
// instruments.
type RPCObserver struct {
	duration metric.Float64Histogram
	calls    metric.Int64Counter
}

// NewRPCObserver creates the instruments on mp.
func NewRPCObserver(mp metric.MeterProvider) (*RPCObserver, error) {
	meter := mp.Meter(InstrumentationName)

	duration, err := meter.Float64Histogram("rpc.server.duration",
		metric.WithDescription("Duration of tRPC procedure calls"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	calls, err := meter.Int64Counter("rpc.server.calls",
		metric.WithDescription("Number of tRPC procedure calls"))
	if err != nil {
		return nil, fmt.Errorf("creating call counter: %w", err)
	}
	return &RPCObserver{duration: duration, calls: calls}, nil
}

// ObserveRPC implements rpc.Observer.
func (o *RPCObserver) ObserveRPC(path string, code string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", path),
		attribute.String("rpc.code", code),
	)
	ctx := context.Background()
	o.duration.Record(ctx, elapsed.Seconds(), attrs)
	o.calls.Add(ctx, 1, attrs)
}

var _ rpc.Observer = (*RPCObserver)(nil)
