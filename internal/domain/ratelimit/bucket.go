package ratelimit

import "time"

// Bucket is the per-key counter state of a fixed window.
type Bucket struct {
	// Count is the number of requests seen in the current window.
	Count int
	// ResetAt is when the current window ends.
	ResetAt time.Time
	// Violations is the number of rejected requests in the current window.
	Violations int
	// BannedUntil is set while the key is banned.
	BannedUntil time.Time
}

// Take records one request at now and reports whether it is allowed.
// A bucket whose window has ended starts a new window; a ban outlives
// window rollover until BannedUntil.
func (b *Bucket) Take(now time.Time, cfg RateLimitConfig) RateLimitResult {
	if now.Before(b.BannedUntil) {
		wait := b.BannedUntil.Sub(now)
		return RateLimitResult{
			Allowed:    false,
			Banned:     true,
			Limit:      cfg.Max,
			RetryAfter: wait,
			ResetAfter: wait,
		}
	}

	if b.ResetAt.IsZero() || !now.Before(b.ResetAt) {
		b.Count = 0
		b.Violations = 0
		b.ResetAt = now.Add(cfg.Window)
	}

	b.Count++
	resetAfter := b.ResetAt.Sub(now)

	if b.Count <= cfg.Max {
		return RateLimitResult{
			Allowed:    true,
			Limit:      cfg.Max,
			Remaining:  cfg.Max - b.Count,
			ResetAfter: resetAfter,
		}
	}

	b.Violations++
	if cfg.BanAfter > 0 && b.Violations >= cfg.BanAfter {
		b.BannedUntil = now.Add(cfg.BanDuration)
		return RateLimitResult{
			Allowed:    false,
			Banned:     true,
			Limit:      cfg.Max,
			RetryAfter: cfg.BanDuration,
			ResetAfter: cfg.BanDuration,
		}
	}

	return RateLimitResult{
		Allowed:    false,
		Limit:      cfg.Max,
		RetryAfter: resetAfter,
		ResetAfter: resetAfter,
	}
}

// Expired reports whether the bucket holds no live state at now and can be
// discarded.
func (b *Bucket) Expired(now time.Time) bool {
	return !now.Before(b.ResetAt) && !now.Before(b.BannedUntil)
}
