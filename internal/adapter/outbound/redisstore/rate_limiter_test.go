package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

// newTestLimiter runs the limiter against an in-process Redis whose clock
// starts at a fixed instant.
func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis, time.Time) {
	t.Helper()
	m := miniredis.RunT(t)
	start := time.Unix(1_700_000_000, 0)
	m.SetTime(start)

	limiter := NewRateLimiter(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, m, start
}

func TestRateLimiter_ThresholdAndReset(t *testing.T) {
	t.Parallel()

	limiter, m, start := newTestLimiter(t)
	ctx := context.Background()
	key := ratelimit.FormatKey("default", "192.0.2.1")
	cfg := ratelimit.RateLimitConfig{Max: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, key, cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed || res.Remaining != 3-i || res.Limit != 3 {
			t.Fatalf("request %d = %+v, want allowed with %d remaining", i, res, 3-i)
		}
	}
	if ttl := m.TTL(key); ttl != time.Minute {
		t.Errorf("TTL = %v, want the window", ttl)
	}

	m.SetTime(start.Add(10 * time.Second))
	res, err := limiter.Allow(ctx, key, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed || res.Banned {
		t.Fatalf("request 4 = %+v, want rejected", res)
	}
	if res.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", res.RetryAfter)
	}

	m.SetTime(start.Add(time.Minute))
	res, err = limiter.Allow(ctx, key, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Remaining != 2 {
		t.Errorf("after window = %+v, want allowed with 2 remaining", res)
	}
	if got := m.HGet(key, "violations"); got != "0" {
		t.Errorf("violations after window = %q, want 0", got)
	}
}

func TestRateLimiter_BanOutlivesWindow(t *testing.T) {
	t.Parallel()

	limiter, m, start := newTestLimiter(t)
	ctx := context.Background()
	key := ratelimit.FormatKey("auth", "192.0.2.1")
	cfg := ratelimit.RateLimitConfig{Max: 1, Window: time.Minute, BanAfter: 2, BanDuration: 10 * time.Minute}

	allow := func() ratelimit.RateLimitResult {
		t.Helper()
		res, err := limiter.Allow(ctx, key, cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		return res
	}

	if !allow().Allowed {
		t.Fatal("first request rejected")
	}
	if res := allow(); res.Allowed || res.Banned {
		t.Fatalf("first violation = %+v, want rejected without ban", res)
	}
	res := allow()
	if res.Allowed || !res.Banned || res.RetryAfter != 10*time.Minute {
		t.Fatalf("second violation = %+v, want banned for 10m", res)
	}
	if ttl := m.TTL(key); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want the ban duration", ttl)
	}

	m.SetTime(start.Add(2 * time.Minute))
	res = allow()
	if res.Allowed || !res.Banned || res.RetryAfter != 8*time.Minute {
		t.Errorf("during ban = %+v, want banned with 8m left", res)
	}

	m.SetTime(start.Add(10 * time.Minute))
	if res := allow(); !res.Allowed {
		t.Errorf("after ban = %+v, want allowed", res)
	}
}

func TestRateLimiter_NoBanWhenDisabled(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newTestLimiter(t)
	ctx := context.Background()
	key := ratelimit.FormatKey("default", "192.0.2.2")
	cfg := ratelimit.RateLimitConfig{Max: 1, Window: time.Minute}

	for i := range 5 {
		res, err := limiter.Allow(ctx, key, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if res.Banned {
			t.Fatalf("request %d banned with BanAfter=0", i+1)
		}
		if want := i == 0; res.Allowed != want {
			t.Errorf("request %d Allowed = %v, want %v", i+1, res.Allowed, want)
		}
	}
}

func TestRateLimiter_KeysAreIndependentAndResettable(t *testing.T) {
	t.Parallel()

	limiter, m, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.RateLimitConfig{Max: 1, Window: time.Minute}
	a := ratelimit.FormatKey("default", "192.0.2.1")
	b := ratelimit.FormatKey("default", "192.0.2.2")

	for _, key := range []string{a, b} {
		if res, _ := limiter.Allow(ctx, key, cfg); !res.Allowed {
			t.Fatalf("first request for %s rejected", key)
		}
	}
	if res, _ := limiter.Allow(ctx, a, cfg); res.Allowed {
		t.Fatal("second request for a allowed")
	}

	if err := limiter.Reset(ctx, a); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if m.Exists(a) {
		t.Error("key still present after Reset")
	}
	if res, _ := limiter.Allow(ctx, a, cfg); !res.Allowed {
		t.Error("request after Reset rejected")
	}
	if err := limiter.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestRateLimiter_ServerDown(t *testing.T) {
	t.Parallel()

	m, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := m.Addr()
	m.Close()

	limiter := NewRateLimiter(redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}))
	defer limiter.Close()
	if _, err := limiter.Allow(context.Background(), "ratelimit:default:x", ratelimit.RateLimitConfig{Max: 1, Window: time.Minute}); err == nil {
		t.Error("Allow() against a stopped server should fail")
	}
}

func TestDecodeResult(t *testing.T) {
	t.Parallel()

	res, err := decodeResult([]int64{1, 0, 4, 0, 30000}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Banned || res.Remaining != 4 || res.Limit != 5 {
		t.Errorf("decodeResult() = %+v", res)
	}
	if res.ResetAfter != 30*time.Second {
		t.Errorf("ResetAfter = %v, want 30s", res.ResetAfter)
	}

	res, _ = decodeResult([]int64{0, 1, 0, 600000, 600000}, 5)
	if res.Allowed || !res.Banned || res.RetryAfter != 10*time.Minute {
		t.Errorf("banned decodeResult() = %+v", res)
	}

	if _, err := decodeResult([]int64{1, 0}, 5); err == nil {
		t.Error("expected error for short reply")
	}
}

func TestDial_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := Dial(context.Background(), "not a url"); err == nil {
		t.Error("Dial() with invalid URL should fail")
	}
}

// TestRateLimiter_Live runs against a real server when
// VOLTIG_TEST_REDIS_URL is set.
func TestRateLimiter_Live(t *testing.T) {
	url := os.Getenv("VOLTIG_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VOLTIG_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	limiter, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer func() { _ = limiter.Close() }()

	key := ratelimit.FormatKey("test", time.Now().Format(time.RFC3339Nano))
	defer func() { _ = limiter.Reset(ctx, key) }()

	config := ratelimit.RateLimitConfig{Max: 2, Window: time.Minute, BanAfter: 2, BanDuration: time.Minute}
	var results []ratelimit.RateLimitResult
	for i := 0; i < 4; i++ {
		res, err := limiter.Allow(ctx, key, config)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		results = append(results, res)
	}

	if !results[0].Allowed || !results[1].Allowed {
		t.Errorf("first two requests should be allowed: %+v", results[:2])
	}
	if results[2].Allowed || results[2].Banned {
		t.Errorf("third request: %+v, want rejected without ban", results[2])
	}
	if !results[3].Banned {
		t.Errorf("fourth request: %+v, want banned", results[3])
	}

	if err := limiter.Reset(ctx, key); err != nil {
		t.Fatal(err)
	}
	if res, _ := limiter.Allow(ctx, key, config); !res.Allowed {
		t.Errorf("after Reset: %+v, want allowed", res)
	}
}
