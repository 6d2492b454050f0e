// Package redisstore provides a Redis-backed rate limit store shared by every
// server instance.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

// takeScript applies one request to the bucket hash at KEYS[1] atomically.
// It mirrors ratelimit.Bucket.Take using the server clock so that every
// instance agrees on window boundaries.
//
// ARGV: max, window_ms, ban_after, ban_ms.
// Returns {allowed, banned, remaining, retry_after_ms, reset_after_ms}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ban_after = tonumber(ARGV[3])
local ban_ms = tonumber(ARGV[4])

local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call('HMGET', key, 'count', 'reset_at', 'violations', 'banned_until')
local count = tonumber(state[1]) or 0
local reset_at = tonumber(state[2]) or 0
local violations = tonumber(state[3]) or 0
local banned_until = tonumber(state[4]) or 0

if now < banned_until then
  local wait = banned_until - now
  return {0, 1, 0, wait, wait}
end

if reset_at == 0 or now >= reset_at then
  count = 0
  violations = 0
  reset_at = now + window
end

count = count + 1
local reset_after = reset_at - now

local function save()
  redis.call('HSET', key, 'count', count, 'reset_at', reset_at,
    'violations', violations, 'banned_until', banned_until)
  redis.call('PEXPIREAT', key, math.max(reset_at, banned_until))
end

if count <= max then
  save()
  return {1, 0, max - count, 0, reset_after}
end

violations = violations + 1
if ban_after > 0 and violations >= ban_after then
  banned_until = now + ban_ms
  save()
  return {0, 1, 0, ban_ms, ban_ms}
end

save()
return {0, 0, 0, reset_after, reset_after}
`)

// RateLimiter implements ratelimit.RateLimiter on Redis.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter wraps an existing client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Dial parses rawURL (redis:// or rediss://), connects and pings.
func Dial(ctx context.Context, rawURL string) (*RateLimiter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRateLimiter(client), nil
}

// Allow records one request for key and reports whether it is allowed.
func (r *RateLimiter) Allow(ctx context.Context, key string, config ratelimit.RateLimitConfig) (ratelimit.RateLimitResult, error) {
	res, err := takeScript.Run(ctx, r.client, []string{key},
		config.Max,
		config.Window.Milliseconds(),
		config.BanAfter,
		config.BanDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return ratelimit.RateLimitResult{}, fmt.Errorf("running rate limit script: %w", err)
	}
	return decodeResult(res, config.Max)
}

// decodeResult converts the script reply into a RateLimitResult.
func decodeResult(res []int64, limit int) (ratelimit.RateLimitResult, error) {
	if len(res) != 5 {
		return ratelimit.RateLimitResult{}, fmt.Errorf("unexpected rate limit reply of length %d", len(res))
	}
	return ratelimit.RateLimitResult{
		Allowed:    res[0] == 1,
		Banned:     res[1] == 1,
		Limit:      limit,
		Remaining:  int(res[2]),
		RetryAfter: time.Duration(res[3]) * time.Millisecond,
		ResetAfter: time.Duration(res[4]) * time.Millisecond,
	}, nil
}

// Reset deletes the bucket for key.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting rate limit key: %w", err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (r *RateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RateLimiter) Close() error {
	return r.client.Close()
}

// Compile-time interface verification.
var _ ratelimit.RateLimiter = (*RateLimiter)(nil)
