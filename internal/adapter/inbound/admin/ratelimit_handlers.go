package admin

import (
	"net/http"
	"strings"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// handleResetRateLimit clears a bucket and any ban on it. The key is either
// a full limiter key ("ratelimit:<tier>:<ip>") or a bare client IP, which
// resets that client in every configured tier.
func (h *AdminAPIHandler) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		h.respondError(w, http.StatusServiceUnavailable, "Rate limiting is not enabled", CodeUnavailable)
		return
	}

	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Missing rate limit key", CodeBadRequest)
		return
	}

	keys := []string{key}
	if !strings.HasPrefix(key, ratelimit.KeyPrefix) {
		if len(h.tiers) == 0 {
			h.respondError(w, http.StatusBadRequest, "No rate limit tiers configured", CodeBadRequest)
			return
		}
		keys = keys[:0]
		for _, tier := range h.tiers {
			keys = append(keys, ratelimit.FormatKey(tier, key))
		}
	}

	logger := logging.Admin(h.logger, "", "reset-rate-limit")
	for _, k := range keys {
		if err := h.limiter.Reset(r.Context(), k); err != nil {
			logger.Error("rate limit reset failed", "key", k, "error", err)
			h.respondError(w, http.StatusInternalServerError, "Failed to reset rate limit", CodeInternalError)
			return
		}
	}
	logger.Info("rate limit reset", "keys", keys)
	w.WriteHeader(http.StatusNoContent)
}
