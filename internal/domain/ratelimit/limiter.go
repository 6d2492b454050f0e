package ratelimit

import "context"

// RateLimiter is the interface for rate limiting operations.
//
// Implementations use fixed windows with violation counting (see Bucket.Take)
// and must make each check-and-increment atomic with respect to concurrent
// requests for the same key.
//
// The interface is storage-agnostic: implementations are backed by
// in-memory shards or Redis.
type RateLimiter interface {
	// Allow checks if a request identified by key is allowed under the given config.
	// It returns the result of the check and any error that occurred.
	//
	// The key should be a structured identifier created by FormatKey.
	// If the request is not allowed, RetryAfter in the result indicates when
	// the next request will be allowed.
	Allow(ctx context.Context, key string, config RateLimitConfig) (RateLimitResult, error)

	// Reset forgets the bucket for key, lifting any ban.
	// Resetting an unknown key is not an error.
	Reset(ctx context.Context, key string) error
}

// Sizer is implemented by limiters that can report how many keys they track.
type Sizer interface {
	Size() int
}
