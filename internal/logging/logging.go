// Package logging builds the process logger and the service-scoped loggers
// used across the server.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/voltigdev/voltig-turbo/internal/ctxkey"
)

// Service names attached to log records under the "service" key.
const (
	ServiceAuth     = "auth"
	ServiceTRPC     = "trpc"
	ServiceAdmin    = "admin"
	ServiceHealth   = "health"
	ServiceServer   = "server"
	ServiceSecurity = "security"
)

// anonymous is logged as user_id when no session is attached.
const anonymous = "anonymous"

// Options configures the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Development selects the human-readable text handler and forces debug.
	Development bool
}

// New creates the root logger writing to w.
// Development uses a text handler at debug level; otherwise records are JSON.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	if opts.Development {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if opts.Development {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the request-scoped logger stored by the HTTP middleware,
// or slog.Default() when the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.LoggerKey{}, logger)
}

func userOrAnonymous(userID string) string {
	if userID == "" {
		return anonymous
	}
	return userID
}

// Auth scopes logger to the auth service.
func Auth(logger *slog.Logger, userID string) *slog.Logger {
	return logger.With("service", ServiceAuth, "user_id", userOrAnonymous(userID))
}

// TRPC scopes logger to an RPC procedure.
func TRPC(logger *slog.Logger, procedure, userID string) *slog.Logger {
	return logger.With("service", ServiceTRPC, "procedure", procedure, "user_id", userOrAnonymous(userID))
}

// Admin scopes logger to an admin action.
func Admin(logger *slog.Logger, userID, action string) *slog.Logger {
	return logger.With("service", ServiceAdmin, "user_id", userOrAnonymous(userID), "action", action)
}

// Health scopes logger to the health endpoint.
func Health(logger *slog.Logger) *slog.Logger {
	return logger.With("service", ServiceHealth)
}

// Server scopes logger to process lifecycle events.
func Server(logger *slog.Logger) *slog.Logger {
	return logger.With("service", ServiceServer)
}

// Security scopes logger to a security check such as "api-key-check".
func Security(logger *slog.Logger, checkType, userID string) *slog.Logger {
	return logger.With("service", ServiceSecurity, "type", checkType, "user_id", userOrAnonymous(userID))
}

// ErrorAttrs describes err for a log record. The stack is only included in
// development so production logs never carry it.
func ErrorAttrs(err error, development bool) slog.Attr {
	if err == nil {
		return slog.Group("error")
	}
	attrs := []any{
		slog.String("name", errorName(err)),
		slog.String("message", err.Error()),
	}
	if development {
		attrs = append(attrs, slog.String("stack", string(debug.Stack())))
	}
	return slog.Group("error", attrs...)
}

// PanicAttrs describes a recovered panic value with the captured stack.
func PanicAttrs(recovered any, stack []byte, development bool) slog.Attr {
	attrs := []any{slog.Any("panic", recovered)}
	if development {
		attrs = append(attrs, slog.String("stack", string(stack)))
	}
	return slog.Group("error", attrs...)
}

// errorName returns the dynamic type of err, e.g. "*rpc.Error".
func errorName(err error) string {
	return fmt.Sprintf("%T", err)
}
