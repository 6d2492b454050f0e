// Package admin provides the JSON admin API of the Voltig Turbo server.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/port/outbound"
	"github.com/voltigdev/voltig-turbo/internal/service"
)

// Error codes returned by the admin API.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInternalError = "INTERNAL_ERROR"
)

// AdminAPIHandler serves /api/admin/*. Every dependency is optional; a
// missing one is reported as unconfigured.
type AdminAPIHandler struct {
	db        outbound.Database
	limiter   ratelimit.RateLimiter
	tiers     []string
	stats     *service.StatsService
	buildInfo *BuildInfo
	logger    *slog.Logger
	startTime time.Time
	now       func() time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithDatabase sets the database whose reachability is reported.
func WithDatabase(db outbound.Database) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.db = db }
}

// WithRateLimiter sets the limiter whose buckets can be inspected and reset.
// tiers are the tier names used to expand a bare client IP into keys.
func WithRateLimiter(l ratelimit.RateLimiter, tiers ...string) AdminAPIOption {
	return func(h *AdminAPIHandler) {
		h.limiter = l
		h.tiers = tiers
	}
}

// WithStatsService sets the request statistics source.
func WithStatsService(s *service.StatsService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.stats = s }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.buildInfo = info }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Paths are absolute; the handler is mounted at /api/admin/ and guarded by
// the API key check in front of it.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/admin/stats", h.handleGetStats)
	mux.HandleFunc("GET /api/admin/system", h.handleSystemInfo)
	mux.HandleFunc("DELETE /api/admin/rate-limits/{key}", h.handleResetRateLimit)

	mux.HandleFunc("/api/admin/", func(w http.ResponseWriter, r *http.Request) {
		h.respondError(w, http.StatusNotFound, "Route not found", CodeNotFound)
	})
	return mux
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes the {error, code} body used across the API.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message, code string) {
	h.respondJSON(w, status, map[string]string{"error": message, "code": code})
}
