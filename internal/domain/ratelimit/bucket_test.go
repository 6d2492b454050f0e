package ratelimit

import (
	"testing"
	"time"
)

func TestBucket_Take_ThresholdAndReset(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{Max: 3, Window: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	var b Bucket

	for i := 1; i <= 3; i++ {
		res := b.Take(now, cfg)
		if !res.Allowed {
			t.Fatalf("request %d rejected, want allowed", i)
		}
		if res.Remaining != 3-i {
			t.Errorf("request %d Remaining = %d, want %d", i, res.Remaining, 3-i)
		}
		if res.Limit != 3 {
			t.Errorf("Limit = %d, want 3", res.Limit)
		}
	}

	res := b.Take(now.Add(10*time.Second), cfg)
	if res.Allowed {
		t.Fatal("request 4 allowed, want rejected")
	}
	if res.RetryAfter != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", res.RetryAfter)
	}

	res = b.Take(now.Add(time.Minute), cfg)
	if !res.Allowed || res.Remaining != 2 {
		t.Errorf("after window: Allowed=%v Remaining=%d, want true 2", res.Allowed, res.Remaining)
	}
	if b.Count != 1 || b.Violations != 0 {
		t.Errorf("after window: Count=%d Violations=%d, want 1 0", b.Count, b.Violations)
	}
}

func TestBucket_Take_Ban(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{Max: 1, Window: time.Minute, BanAfter: 2, BanDuration: 10 * time.Minute}
	now := time.Unix(1_700_000_000, 0)
	var b Bucket

	if !b.Take(now, cfg).Allowed {
		t.Fatal("first request rejected")
	}
	if res := b.Take(now, cfg); res.Allowed || res.Banned {
		t.Fatalf("first violation: %+v, want rejected without ban", res)
	}
	res := b.Take(now, cfg)
	if res.Allowed || !res.Banned {
		t.Fatalf("second violation: %+v, want banned", res)
	}
	if res.RetryAfter != 10*time.Minute {
		t.Errorf("RetryAfter = %v, want 10m", res.RetryAfter)
	}

	// The ban outlives the window.
	res = b.Take(now.Add(2*time.Minute), cfg)
	if res.Allowed || !res.Banned {
		t.Errorf("during ban: %+v, want banned", res)
	}
	if res.RetryAfter != 8*time.Minute {
		t.Errorf("RetryAfter during ban = %v, want 8m", res.RetryAfter)
	}

	if !b.Take(now.Add(10*time.Minute), cfg).Allowed {
		t.Error("request after ban expiry rejected")
	}
}

func TestBucket_Take_NoBanWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{Max: 1, Window: time.Minute}
	now := time.Unix(1_700_000_000, 0)
	var b Bucket

	for i := 0; i < 50; i++ {
		if res := b.Take(now, cfg); res.Banned {
			t.Fatalf("request %d banned with BanAfter=0", i)
		}
	}
}

func TestBucket_Expired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := Bucket{ResetAt: now.Add(time.Second)}
	if b.Expired(now) {
		t.Error("Expired() = true inside window")
	}
	if !b.Expired(now.Add(time.Second)) {
		t.Error("Expired() = false at window end")
	}
	b.BannedUntil = now.Add(time.Hour)
	if b.Expired(now.Add(time.Minute)) {
		t.Error("Expired() = true while banned")
	}
}

func TestFormatKey(t *testing.T) {
	t.Parallel()

	if got := FormatKey(NamespaceAuthStrict, "10.0.0.1"); got != "ratelimit:auth-strict:10.0.0.1" {
		t.Errorf("FormatKey() = %q", got)
	}
}
