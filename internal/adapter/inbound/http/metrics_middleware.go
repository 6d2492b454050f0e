package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsMiddleware wraps an HTTP handler to record Prometheus metrics.
// It records:
// - http_request_duration_seconds histogram (by method and route)
// - http_requests_total counter (by method, route and status class)
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for /metrics and /health endpoints
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			route := routeLabel(r.URL.Path)

			metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.RequestsTotal.WithLabelValues(r.Method, route, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// RequestRecorder counts completed requests by status.
type RequestRecorder interface {
	RecordRequest(status int)
}

// CountRequests reports the final status of every request to recorder.
func CountRequests(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			recorder.RecordRequest(wrapped.status)
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports http.Flusher.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// statusToLabel converts an HTTP status code to its class, e.g. "4xx".
func statusToLabel(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// routeLabel maps a path to a bounded set of route labels.
func routeLabel(path string) string {
	switch {
	case path == "/":
		return "/"
	case strings.HasPrefix(path, "/api/auth/"):
		return "/api/auth/*"
	case strings.HasPrefix(path, "/api/trpc/"):
		return "/api/trpc/*"
	case strings.HasPrefix(path, "/api/admin/"):
		return "/api/admin/*"
	default:
		return "other"
	}
}
