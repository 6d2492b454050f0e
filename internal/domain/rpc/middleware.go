package rpc

import (
	"context"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// Observer receives one observation per completed procedure call.
type Observer interface {
	ObserveRPC(path string, code string, elapsed time.Duration)
}

// Observers fans one observation out to each entry.
type Observers []Observer

// ObserveRPC implements Observer.
func (o Observers) ObserveRPC(path string, code string, elapsed time.Duration) {
	for _, obs := range o {
		obs.ObserveRPC(path, code, elapsed)
	}
}

// Default bounds of the artificial latency injected outside production.
const (
	DefaultMinDelay = 100 * time.Millisecond
	DefaultMaxDelay = 500 * time.Millisecond
)

// TimingOptions configures the Timing middleware.
type TimingOptions struct {
	// InjectDelay sleeps a random duration in [MinDelay, MaxDelay] before the
	// call, to surface waterfalls during development.
	InjectDelay bool
	MinDelay    time.Duration
	MaxDelay    time.Duration

	// Tracer records a span per call. Defaults to a no-op tracer.
	Tracer trace.Tracer

	// Observer records call latency. Optional.
	Observer Observer
}

// Timing measures every call, logs its duration keyed by procedure path and
// optionally injects latency. The delay honours context cancellation.
func Timing(opts TimingOptions) Middleware {
	if opts.MinDelay == 0 && opts.MaxDelay == 0 {
		opts.MinDelay, opts.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("rpc")
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, rc *Context, call Call) (any, error) {
			start := time.Now()
			ctx, span := tracer.Start(ctx, "rpc "+call.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.system", "trpc"),
					attribute.String("rpc.method", call.Path),
					attribute.String("rpc.kind", call.Kind.String()),
				))
			defer span.End()

			out, err := runWithDelay(ctx, opts, rc, call, next)

			elapsed := time.Since(start)
			code := "OK"
			if err != nil {
				rpcErr := FromError(err)
				code = string(rpcErr.Code)
				span.RecordError(err)
				span.SetStatus(codes.Error, string(rpcErr.Code))
			}
			span.SetAttributes(attribute.String("rpc.code", code))

			if opts.Observer != nil {
				opts.Observer.ObserveRPC(call.Path, code, elapsed)
			}
			logging.TRPC(logging.FromContext(ctx), call.Path, rc.UserID()).Info("procedure executed",
				"kind", call.Kind.String(),
				"code", code,
				"duration_ms", elapsed.Milliseconds())

			return out, err
		}
	}
}

func runWithDelay(ctx context.Context, opts TimingOptions, rc *Context, call Call, next Handler) (any, error) {
	if opts.InjectDelay {
		delay := opts.MinDelay
		if spread := opts.MaxDelay - opts.MinDelay; spread > 0 {
			delay += time.Duration(rand.Int64N(int64(spread) + 1))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return next(ctx, rc, call)
}

// RequireSession rejects calls without a session or user with UNAUTHORIZED
// and otherwise runs next with a narrowed AuthedContext.
func RequireSession(next AuthedHandler) Handler {
	return func(ctx context.Context, rc *Context, call Call) (any, error) {
		if rc == nil || rc.Session == nil || rc.Session.Session == nil || rc.Session.User == nil {
			return nil, NewError(CodeUnauthorized, MsgUnauthorized)
		}
		ac := &AuthedContext{
			DB:      rc.DB,
			Auth:    rc.Auth,
			Session: rc.Session.Session,
			User:    rc.Session.User,
		}
		return next(ctx, ac, call)
	}
}
