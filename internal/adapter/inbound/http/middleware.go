package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltigdev/voltig-turbo/internal/ctxkey"
	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using ctxkey.RequestIDKey.
// An enriched logger with request_id field is stored using ctxkey.LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = logging.WithLogger(ctx, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	return id
}

// RealIPMiddleware extracts the client's real IP address for rate limiting.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr if no proxy headers are present.
// Only the first IP in X-Forwarded-For is trusted to avoid spoofing.
// The IP is stored in context using ctxkey.ClientIPKey.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), ctxkey.ClientIPKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the IP stored by RealIPMiddleware, or the host part of
// r.RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxkey.ClientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return extractRealIP(r)
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// Format: X-Forwarded-For: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyMiddleware checks the x-api-key header against the configured
// secret. In development every request passes. An unset secret fails closed
// with CONFIG_ERROR; a missing or wrong key gets INVALID_API_KEY.
func APIKeyMiddleware(secret string, development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if development {
				next.ServeHTTP(w, r)
				return
			}
			logger := logging.Security(LoggerFromContext(r.Context()), "api-key-check", "")

			if secret == "" {
				logger.Error("API_SECRET_KEY is not configured")
				writeError(w, http.StatusInternalServerError, "Server configuration error", CodeConfigError)
				return
			}

			key := r.Header.Get("X-Api-Key")
			ok := false
			if key != "" {
				var err error
				ok, err = auth.VerifyKey(key, secret)
				if err != nil {
					logger.Error("API key verification failed", logging.ErrorAttrs(err, false))
				}
			}
			if !ok {
				logger.Warn("invalid API key", "ip", ClientIP(r), "path", r.URL.Path, "present", key != "")
				writeError(w, http.StatusUnauthorized, "Invalid API key", CodeInvalidAPIKey)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware turns a panic into a 500 INTERNAL_ERROR response.
func RecoverMiddleware(development bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LoggerFromContext(r.Context()).Error("panic serving request",
					"method", r.Method,
					"url", r.URL.String(),
					logging.PanicAttrs(rec, debug.Stack(), development))
				writeError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// TimeoutMiddleware bounds the request context with d. Database calls, the
// auth provider and the RPC delay observe the deadline. A zero d disables it.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORSOptions configures CORSMiddleware.
type CORSOptions struct {
	AllowedOrigins []string
	MaxAge         int
}

var (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS, PATCH"
	corsHeaders = "Content-Type, Authorization, Cookie, X-Requested-With, x-trpc-source, trpc-accept"
	corsExposed = "Set-Cookie"
)

// CORSMiddleware answers cross-origin requests from allowed origins with
// credentials. Preflight requests from allowed origins are answered with
// 204; everything else continues to the next handler.
func CORSMiddleware(opts CORSOptions) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	maxAge := strconv.Itoa(opts.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if _, ok := allowed[origin]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposed)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
