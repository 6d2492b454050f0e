package service

import (
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
)

// StatsService tracks runtime request statistics using lock-free atomic
// counters. It is fed by the HTTP pipeline and read by the admin API.
type StatsService struct {
	requests    atomic.Int64
	rateLimited atomic.Int64
	banned      atomic.Int64
	suspicious  atomic.Int64
	errors      atomic.Int64

	// Per-tier and per-pattern counters (mutex-protected maps).
	mu            sync.Mutex
	tierCounts    map[string]int64
	patternCounts map[string]int64
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		tierCounts:    make(map[string]int64),
		patternCounts: make(map[string]int64),
	}
}

// RecordRequest counts a completed request. Status 5xx also counts as an error.
func (s *StatsService) RecordRequest(status int) {
	s.requests.Add(1)
	if status >= http.StatusInternalServerError {
		s.errors.Add(1)
	}
}

// RateLimited counts a request rejected by tier.
func (s *StatsService) RateLimited(tier string, banned bool) {
	s.rateLimited.Add(1)
	if banned {
		s.banned.Add(1)
	}
	s.mu.Lock()
	s.tierCounts[tier]++
	s.mu.Unlock()
}

// Suspicious counts a request matching pattern. Empty patterns are skipped.
func (s *StatsService) Suspicious(pattern string) {
	if pattern == "" {
		return
	}
	s.suspicious.Add(1)
	s.mu.Lock()
	s.patternCounts[pattern]++
	s.mu.Unlock()
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Requests      int64            `json:"requests"`
	RateLimited   int64            `json:"rate_limited"`
	Banned        int64            `json:"banned"`
	Suspicious    int64            `json:"suspicious"`
	Errors        int64            `json:"errors"`
	TierCounts    map[string]int64 `json:"tier_counts"`
	PatternCounts map[string]int64 `json:"pattern_counts"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	tc := maps.Clone(s.tierCounts)
	pc := maps.Clone(s.patternCounts)
	s.mu.Unlock()

	return Stats{
		Requests:      s.requests.Load(),
		RateLimited:   s.rateLimited.Load(),
		Banned:        s.banned.Load(),
		Suspicious:    s.suspicious.Load(),
		Errors:        s.errors.Load(),
		TierCounts:    tc,
		PatternCounts: pc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.requests.Store(0)
	s.rateLimited.Store(0)
	s.banned.Store(0)
	s.suspicious.Store(0)
	s.errors.Store(0)

	s.mu.Lock()
	s.tierCounts = make(map[string]int64)
	s.patternCounts = make(map[string]int64)
	s.mu.Unlock()
}
