package admin

import (
	"net/http"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/service"
)

// StatsResponse is the JSON response for GET /api/admin/stats.
type StatsResponse struct {
	UptimeSec int64  `json:"uptime_seconds"`
	Database  string `json:"database"`
	// RateLimitKeys is the number of live limiter keys, or -1 when the
	// limiter cannot report it.
	RateLimitKeys int           `json:"rate_limit_keys"`
	Requests      service.Stats `json:"requests"`
}

// handleGetStats reports uptime, database reachability, the number of rate
// limit keys and the request counters.
func (h *AdminAPIHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSec:     int64(h.uptime().Seconds()),
		Database:      "not configured",
		RateLimitKeys: -1,
	}

	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.Ping(r.Context()); err != nil {
			resp.Database = "error: " + err.Error()
		}
	}

	if sizer, ok := h.limiter.(ratelimit.Sizer); ok {
		resp.RateLimitKeys = sizer.Size()
	}

	if h.stats != nil {
		resp.Requests = h.stats.GetStats()
	}

	// Ensure maps are never null in JSON output.
	if resp.Requests.TierCounts == nil {
		resp.Requests.TierCounts = make(map[string]int64)
	}
	if resp.Requests.PatternCounts == nil {
		resp.Requests.PatternCounts = make(map[string]int64)
	}

	h.respondJSON(w, http.StatusOK, resp)
}
