package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/logging"
	"github.com/voltigdev/voltig-turbo/internal/port/outbound"
)

// healthTimeout bounds each dependency probe.
const healthTimeout = 2 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// pinger is implemented by limiters backed by a remote store.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	db      outbound.Database
	limiter ratelimit.RateLimiter
	metrics *Metrics
	version string
}

// NewHealthChecker creates a HealthChecker. limiter and metrics may be nil.
func NewHealthChecker(db outbound.Database, limiter ratelimit.RateLimiter, metrics *Metrics, version string) *HealthChecker {
	return &HealthChecker{db: db, limiter: limiter, metrics: metrics, version: version}
}

// Check performs health checks on all components. The database is the
// only component whose failure makes the server unhealthy.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	pingCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := h.db.Ping(pingCtx); err != nil {
		checks["database"] = "error: " + err.Error()
		healthy = false
		h.setGauge(func(m *Metrics) { m.DatabaseUp.Set(0) })
	} else {
		checks["database"] = "ok"
		h.setGauge(func(m *Metrics) { m.DatabaseUp.Set(1) })
	}

	if n, err := h.db.Sessions().CountActive(pingCtx); err == nil {
		checks["sessions"] = fmt.Sprintf("%d active", n)
		h.setGauge(func(m *Metrics) { m.ActiveSessions.Set(float64(n)) })
	} else {
		checks["sessions"] = "error: " + err.Error()
	}

	switch l := h.limiter.(type) {
	case nil:
		checks["rate_limiter"] = "disabled"
	case ratelimit.Sizer:
		size := l.Size()
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", size)
		h.setGauge(func(m *Metrics) { m.RateLimitKeys.Set(float64(size)) })
	case pinger:
		if err := l.Ping(pingCtx); err != nil {
			checks["rate_limiter"] = "degraded: " + err.Error()
		} else {
			checks["rate_limiter"] = "ok"
		}
	default:
		checks["rate_limiter"] = "ok"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

func (h *HealthChecker) setGauge(fn func(*Metrics)) {
	if h.metrics != nil {
		fn(h.metrics)
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
			logging.Health(LoggerFromContext(r.Context())).Warn("health check failed", "checks", health.Checks)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(health)
	})
}
