// Package config provides configuration types for the Voltig Turbo API server.
//
// Configuration comes from an optional voltig-turbo.yaml file, a .env file and
// the process environment. The variables documented for the server
// (NODE_ENV, PORT, API_SECRET_KEY, BASE_URL, DATABASE_URL, AUTH_SECRET,
// RATE_LIMIT_MAX, RATE_LIMIT_WINDOW, ENABLE_SECURITY_HEADERS, LOG_LEVEL,
// REDIS_URL) are bound by name; every other key can be set with the VOLTIG_
// prefix, e.g. VOLTIG_SERVER_REQUEST_TIMEOUT=10s.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names accepted in NODE_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// ProductionBaseURL is the public API origin used when BASE_URL is unset in production.
const ProductionBaseURL = "https://api.voltig.dev"

// DefaultMaxBodyBytes is the request size cap (1 MiB).
const DefaultMaxBodyBytes int64 = 1 << 20

// DevDatabaseURL is used in development when DATABASE_URL is not set.
const DevDatabaseURL = "sqlite://voltig-dev.db"

// devAuthSecret signs tokens in development when AUTH_SECRET is not set.
const devAuthSecret = "voltig-development-secret-do-not-use-in-production"

// Config is the top-level server configuration.
type Config struct {
	// Env is the NODE_ENV value: "development", "production" or empty.
	// Empty is treated as "not development" for API key checks and
	// "not production" for cookies, CORS and the RPC latency injection.
	Env string `yaml:"env" mapstructure:"env" validate:"omitempty,oneof=development production"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the SQL connection.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Auth configures the email/password auth provider and the API key check.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// RateLimit configures the tiered rate limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// CORS configures cross-origin access.
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`

	// Security configures security headers and request size limits.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Telemetry configures tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host is the interface to bind. Defaults to "0.0.0.0".
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the TCP port (PORT). Defaults to 4000.
	Port int `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`

	// LogLevel sets the minimum log level (LOG_LEVEL).
	// Valid values: "debug", "info", "warn", "error". Development forces "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// RequestTimeout bounds the work done for one request (e.g., "30s").
	// The deadline is propagated to database and auth provider calls.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// DatabaseConfig configures the SQL database.
type DatabaseConfig struct {
	// URL is the connection string (DATABASE_URL).
	// postgres:// and postgresql:// use PostgreSQL; sqlite:// uses embedded SQLite.
	URL string `yaml:"url" mapstructure:"url" validate:"required,database_url"`

	// MaxOpenConns caps the connection pool. Defaults to 10.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"omitempty,min=1"`

	// MaxIdleConns caps idle pooled connections. Defaults to 5.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"omitempty,min=0"`

	// ConnMaxLifetime recycles connections older than this (e.g., "30m").
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime" validate:"omitempty,duration"`

	// AutoMigrate applies pending migrations on start. Defaults to true in development.
	AutoMigrate bool `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// AuthConfig configures authentication.
type AuthConfig struct {
	// Secret signs session cookies and verification tokens (AUTH_SECRET).
	// Required in production.
	Secret string `yaml:"secret" mapstructure:"secret"`

	// BaseURL overrides the computed public base URL (BASE_URL).
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// APISecretKey is compared against the x-api-key header outside development
	// (API_SECRET_KEY). It may be a plain value, "sha256:<hex>" or an argon2id hash.
	APISecretKey string `yaml:"api_secret_key" mapstructure:"api_secret_key"`

	// SessionExpiresIn is the session lifetime. Defaults to "168h" (7 days).
	SessionExpiresIn string `yaml:"session_expires_in" mapstructure:"session_expires_in" validate:"omitempty,duration"`

	// SessionUpdateAge is how old a session must be before use extends it. Defaults to "24h".
	SessionUpdateAge string `yaml:"session_update_age" mapstructure:"session_update_age" validate:"omitempty,duration"`

	// CookieCacheMaxAge is the lifetime of the signed session cache cookie. Defaults to "5m".
	CookieCacheMaxAge string `yaml:"cookie_cache_max_age" mapstructure:"cookie_cache_max_age" validate:"omitempty,duration"`

	// MinPasswordLength defaults to 8.
	MinPasswordLength int `yaml:"min_password_length" mapstructure:"min_password_length" validate:"omitempty,min=1"`

	// MaxPasswordLength defaults to 20.
	MaxPasswordLength int `yaml:"max_password_length" mapstructure:"max_password_length" validate:"omitempty,gtefield=MinPasswordLength"`

	// CookieDomain is set on auth cookies in production. Defaults to ".voltig.dev".
	CookieDomain string `yaml:"cookie_domain" mapstructure:"cookie_domain"`

	// TrustedOrigins may call state-changing auth endpoints from a browser.
	// The base URL origin is always trusted.
	TrustedOrigins []string `yaml:"trusted_origins" mapstructure:"trusted_origins"`
}

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Store selects the bucket store: "memory" or "redis".
	// Defaults to "redis" when RedisURL is set, otherwise "memory".
	Store string `yaml:"store" mapstructure:"store" validate:"omitempty,oneof=memory redis"`

	// RedisURL is the Redis connection URL (REDIS_URL).
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url" validate:"required_if=Store redis,omitempty,url"`

	// Max is the default tier threshold (RATE_LIMIT_MAX). Defaults to 100.
	Max int `yaml:"max" mapstructure:"max" validate:"omitempty,min=1"`

	// Window is the default tier window (RATE_LIMIT_WINDOW), e.g. "1m" or "1 minute".
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty,duration"`

	// BanAfter is the number of violations within a window before a key is banned.
	// Defaults to 10 for the default tier.
	BanAfter int `yaml:"ban_after" mapstructure:"ban_after" validate:"omitempty,min=1"`

	// BanDuration is how long a banned key is rejected. Defaults to "10m".
	BanDuration string `yaml:"ban_duration" mapstructure:"ban_duration" validate:"omitempty,duration"`

	// CleanupInterval is how often expired memory buckets are removed. Defaults to "5m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// Tiers are checked in order; the first exceeded tier rejects the request.
	// Defaults to the default, auth and auth-strict tiers.
	Tiers []TierConfig `yaml:"tiers" mapstructure:"tiers" validate:"omitempty,dive"`
}

// TierConfig defines one rate limit namespace.
type TierConfig struct {
	// Name is the namespace used in bucket keys and metrics.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Max is the number of requests allowed per window.
	Max int `yaml:"max" mapstructure:"max" validate:"required,min=1"`

	// Window is the bucket window (e.g., "1m", "5 minutes").
	Window string `yaml:"window" mapstructure:"window" validate:"required,duration"`

	// BanAfter bans a key after this many violations in one window. Zero disables bans.
	BanAfter int `yaml:"ban_after" mapstructure:"ban_after" validate:"omitempty,min=1"`

	// Match is a CEL expression over request.path, request.method and request.ip
	// selecting the requests this tier applies to.
	Match string `yaml:"match" mapstructure:"match" validate:"required"`
}

// CORSConfig configures cross-origin resource sharing.
type CORSConfig struct {
	// AllowedOrigins defaults to the Voltig app origins in production and
	// localhost:3000-3002 otherwise.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,url"`

	// MaxAge is the preflight cache lifetime in seconds. Defaults to 86400.
	MaxAge int `yaml:"max_age" mapstructure:"max_age" validate:"omitempty,min=0"`
}

// SecurityConfig configures response hardening and request guards.
type SecurityConfig struct {
	// Headers enables the security header set (ENABLE_SECURITY_HEADERS). Defaults to true.
	Headers bool `yaml:"headers" mapstructure:"headers"`

	// MaxBodyBytes rejects requests whose Content-Length exceeds it. Defaults to 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"omitempty,min=1"`

	// SuspiciousLogRate caps suspicious-request warnings per client per second. Defaults to 1.
	SuspiciousLogRate float64 `yaml:"suspicious_log_rate" mapstructure:"suspicious_log_rate" validate:"omitempty,gt=0"`
}

// TelemetryConfig configures OpenTelemetry tracing and metrics.
type TelemetryConfig struct {
	// Traces selects the span exporter: "none" or "stdout". Defaults to "none".
	Traces string `yaml:"traces" mapstructure:"traces" validate:"omitempty,oneof=none stdout"`

	// Metrics selects the OpenTelemetry metric exporter: "none" or "stdout".
	// Prometheus metrics on /metrics are always available. Defaults to "none".
	Metrics string `yaml:"metrics" mapstructure:"metrics" validate:"omitempty,oneof=none stdout"`

	// MetricInterval is how often OpenTelemetry metrics are exported. Defaults to 60s.
	MetricInterval string `yaml:"metric_interval" mapstructure:"metric_interval"`
}

// IsDevelopment reports whether NODE_ENV is "development".
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction reports whether NODE_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// ResolvedBaseURL returns the public base URL used for auth callbacks:
// BASE_URL when set, the production API origin in production, or
// http://localhost:{PORT} otherwise.
func (c *Config) ResolvedBaseURL() string {
	if c.Auth.BaseURL != "" {
		return strings.TrimRight(c.Auth.BaseURL, "/")
	}
	if c.IsProduction() {
		return ProductionBaseURL
	}
	port := c.Server.Port
	if port == 0 {
		port = 4000
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.IsDevelopment() {
		return
	}

	if c.Auth.Secret == "" {
		c.Auth.Secret = devAuthSecret
	}
	if c.Database.URL == "" {
		c.Database.URL = DevDatabaseURL
	}
	if !viper.IsSet("database.auto_migrate") {
		c.Database.AutoMigrate = true
	}
	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = "none"
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = "none"
	}
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == "" {
		c.Database.ConnMaxLifetime = "30m"
	}

	if c.Auth.SessionExpiresIn == "" {
		c.Auth.SessionExpiresIn = "168h"
	}
	if c.Auth.SessionUpdateAge == "" {
		c.Auth.SessionUpdateAge = "24h"
	}
	if c.Auth.CookieCacheMaxAge == "" {
		c.Auth.CookieCacheMaxAge = "5m"
	}
	if c.Auth.MinPasswordLength == 0 {
		c.Auth.MinPasswordLength = 8
	}
	if c.Auth.MaxPasswordLength == 0 {
		c.Auth.MaxPasswordLength = 20
	}
	if c.Auth.CookieDomain == "" {
		c.Auth.CookieDomain = ".voltig.dev"
	}
	if len(c.Auth.TrustedOrigins) == 0 {
		c.Auth.TrustedOrigins = []string{
			"voltig://",
			"http://localhost:3000",
			"http://localhost:3001",
			"http://localhost:3002",
		}
	}

	// Rate limiting is enabled unless explicitly turned off in YAML/env.
	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
		if c.RateLimit.RedisURL != "" {
			c.RateLimit.Store = "redis"
		}
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 100
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.RateLimit.BanAfter == 0 {
		c.RateLimit.BanAfter = 10
	}
	if c.RateLimit.BanDuration == "" {
		c.RateLimit.BanDuration = "10m"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if len(c.RateLimit.Tiers) == 0 {
		c.RateLimit.Tiers = DefaultTiers(c.RateLimit.Max, c.RateLimit.Window, c.RateLimit.BanAfter)
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		if c.IsProduction() {
			c.CORS.AllowedOrigins = []string{
				"https://admin.voltig.dev",
				"https://turbo.voltig.dev",
				"https://merchant.voltig.dev",
			}
		} else {
			c.CORS.AllowedOrigins = []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://localhost:3002",
			}
		}
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = 86400
	}

	if !viper.IsSet("security.headers") {
		c.Security.Headers = true
	}
	if c.Security.MaxBodyBytes == 0 {
		c.Security.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Security.SuspiciousLogRate == 0 {
		c.Security.SuspiciousLogRate = 1
	}

	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = "none"
	}
	if c.Telemetry.Metrics == "" {
		c.Telemetry.Metrics = "none"
	}
}

// Tier match expressions for the built-in namespaces.
const (
	MatchAll        = `true`
	MatchAuth       = `request.path.startsWith("/api/auth/")`
	MatchAuthStrict = `request.path.startsWith("/api/auth/") && ` +
		`(request.path.contains("/sign-in") || request.path.contains("/sign-up") || request.path.contains("/verify-email"))`
)

// DefaultTiers returns the default, auth and auth-strict tiers.
// max, window and banAfter configure the default tier only.
func DefaultTiers(max int, window string, banAfter int) []TierConfig {
	return []TierConfig{
		{Name: "default", Max: max, Window: window, BanAfter: banAfter, Match: MatchAll},
		{Name: "auth", Max: 10, Window: "1m", Match: MatchAuth},
		{Name: "auth-strict", Max: 5, Window: "5m", Match: MatchAuthStrict},
	}
}

// ParseDuration parses Go durations ("90s", "5m") and the human form used by
// RATE_LIMIT_WINDOW ("1 minute", "5 minutes", "2 hours"). A bare integer is
// read as milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}

	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "millisecond", "ms":
		unit = time.Millisecond
	case "second", "sec":
		unit = time.Second
	case "minute", "min":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid duration unit in %q", s)
	}
	return time.Duration(n * float64(unit)), nil
}

// MustDuration parses s with ParseDuration, returning fallback when s is
// empty or invalid. Validate rejects invalid values before this is used.
func MustDuration(s string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
