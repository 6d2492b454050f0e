// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// RateLimitConfig defines the rate limiting parameters of one tier.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int

	// Window is the fixed window length.
	Window time.Duration

	// BanAfter bans the key once this many requests were rejected within
	// one window. Zero disables bans.
	BanAfter int

	// BanDuration is how long a banned key is rejected.
	BanDuration time.Duration
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Banned indicates the key is (or just became) banned.
	Banned bool

	// Limit is the configured Max, reported in x-ratelimit-limit.
	Limit int

	// Remaining is the number of remaining requests in the current window.
	Remaining int

	// RetryAfter is the duration until the next request will be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the duration until the window rolls over.
	ResetAfter time.Duration
}

// Namespaces of the built-in tiers.
const (
	NamespaceDefault    = "default"
	NamespaceAuth       = "auth"
	NamespaceAuthStrict = "auth-strict"
)

// KeyPrefix starts every key produced by FormatKey.
const KeyPrefix = "ratelimit:"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{namespace}:{value}"
// Examples:
//   - FormatKey("default", "192.168.1.1") -> "ratelimit:default:192.168.1.1"
//   - FormatKey("auth-strict", "10.0.0.1") -> "ratelimit:auth-strict:10.0.0.1"
func FormatKey(namespace, value string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, namespace, value)
}
