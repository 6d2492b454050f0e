// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

// shardCount is the number of independently locked bucket maps.
const shardCount = 32

type limiterShard struct {
	mu      sync.Mutex
	buckets map[string]*ratelimit.Bucket
}

// MemoryRateLimiter implements ratelimit.RateLimiter with fixed-window
// buckets held in memory. Keys are spread over mutex-guarded shards by
// xxhash so unrelated clients do not contend on one lock.
// Includes background cleanup to prevent unbounded memory growth.
type MemoryRateLimiter struct {
	shards          [shardCount]limiterShard
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	now             func() time.Time
}

// NewRateLimiter creates a new in-memory rate limiter with a 5 minute
// cleanup interval.
func NewRateLimiter() *MemoryRateLimiter {
	return NewRateLimiterWithConfig(5 * time.Minute)
}

// NewRateLimiterWithConfig creates a new in-memory rate limiter with a custom
// cleanup interval.
func NewRateLimiterWithConfig(cleanupInterval time.Duration) *MemoryRateLimiter {
	r := &MemoryRateLimiter{
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
	for i := range r.shards {
		r.shards[i].buckets = make(map[string]*ratelimit.Bucket)
	}
	return r
}

func (r *MemoryRateLimiter) shard(key string) *limiterShard {
	return &r.shards[xxhash.Sum64String(key)%shardCount]
}

// Allow records one request for key and reports whether it is allowed.
func (r *MemoryRateLimiter) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &ratelimit.Bucket{}
		s.buckets[key] = b
	}
	return b.Take(r.now(), config), nil
}

// Reset forgets the bucket for key.
func (r *MemoryRateLimiter) Reset(ctx context.Context, key string) error {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// StartCleanup starts the background cleanup goroutine.
// The goroutine periodically removes buckets whose window and ban are over.
// It stops when ctx is cancelled or Stop() is called.
func (r *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup removes expired buckets, one shard at a time.
func (r *MemoryRateLimiter) cleanup() {
	now := r.now()
	cleaned := 0

	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.Expired(now) {
				delete(s.buckets, key)
				cleaned++
			}
		}
		s.mu.Unlock()
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", r.Size())
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (r *MemoryRateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the current number of tracked keys.
func (r *MemoryRateLimiter) Size() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

// Compile-time interface verification.
var (
	_ ratelimit.RateLimiter = (*MemoryRateLimiter)(nil)
	_ ratelimit.Sizer       = (*MemoryRateLimiter)(nil)
)
