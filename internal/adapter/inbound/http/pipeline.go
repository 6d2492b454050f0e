package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Pipeline is an ordered list of middleware. The first entry sees the
// request first; any stage may answer the request and stop the chain.
type Pipeline []Middleware

// Then wraps h with every stage of the pipeline.
func (p Pipeline) Then(h http.Handler) http.Handler {
	for i := len(p) - 1; i >= 0; i-- {
		h = p[i](h)
	}
	return h
}

// PipelineObserver receives pipeline events for metrics.
type PipelineObserver interface {
	RateLimited(tier string, banned bool)
	Suspicious(pattern string)
}

// MultiObserver fans pipeline events out to every non-nil observer.
func MultiObserver(observers ...PipelineObserver) PipelineObserver {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []PipelineObserver

func (m multiObserver) RateLimited(tier string, banned bool) {
	for _, o := range m {
		o.RateLimited(tier, banned)
	}
}

func (m multiObserver) Suspicious(pattern string) {
	for _, o := range m {
		o.Suspicious(pattern)
	}
}

// PipelineOptions configures NewPipeline.
type PipelineOptions struct {
	Development     bool
	SecurityHeaders bool
	// Limiter and Tiers enable rate limiting when both are set.
	Limiter      ratelimit.RateLimiter
	Tiers        []ratelimit.Tier
	MaxBodyBytes int64
	// SuspiciousLogRate caps suspicious-request warnings per client per second.
	SuspiciousLogRate float64
	Observer          PipelineObserver
}

// NewPipeline builds the request pipeline: security headers, the rate
// limit tiers, the size guard and suspicious pattern logging, in that
// order. Request logging wraps the pipeline in HTTPTransport.Handler so
// short-circuited responses are logged too.
func NewPipeline(opts PipelineOptions) Pipeline {
	var p Pipeline
	if opts.SecurityHeaders {
		p = append(p, SecurityHeaders(opts.Development))
	}
	if opts.Limiter != nil && len(opts.Tiers) > 0 {
		p = append(p, RateLimit(opts.Limiter, opts.Tiers, opts.Observer))
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodyBytes
	}
	p = append(p,
		SizeGuard(maxBody),
		SuspiciousPatterns(validation.NewDetector(), opts.SuspiciousLogRate, opts.Observer),
	)
	return p
}

// ContentSecurityPolicy returns the CSP header value. Development also
// allows connections to localhost over http and ws.
func ContentSecurityPolicy(development bool) string {
	connect := "'self' " + config.ProductionBaseURL
	if development {
		connect += " http://localhost:* ws://localhost:*"
	}
	directives := []string{
		"default-src 'self'",
		"base-uri 'self'",
		"font-src 'self'",
		"form-action 'self'",
		"frame-ancestors 'self'",
		"img-src 'self' data: https:",
		"object-src 'none'",
		"script-src 'self'",
		"script-src-attr 'none'",
		"style-src 'self' 'unsafe-inline'",
		"connect-src " + connect,
		"media-src 'self'",
		"frame-src 'none'",
		"upgrade-insecure-requests",
	}
	return strings.Join(directives, ";")
}

// SecurityHeaders sets a static set of hardening headers on every response.
// Cross-Origin-Embedder-Policy is left unset so the API can be embedded.
func SecurityHeaders(development bool) Middleware {
	headers := map[string]string{
		"Content-Security-Policy":           ContentSecurityPolicy(development),
		"Cross-Origin-Opener-Policy":        "same-origin",
		"Cross-Origin-Resource-Policy":      "same-origin",
		"Origin-Agent-Cluster":              "?1",
		"Referrer-Policy":                   "no-referrer",
		"Strict-Transport-Security":         "max-age=15552000; includeSubDomains",
		"X-Content-Type-Options":            "nosniff",
		"X-Dns-Prefetch-Control":            "off",
		"X-Download-Options":                "noopen",
		"X-Frame-Options":                   "SAMEORIGIN",
		"X-Permitted-Cross-Domain-Policies": "none",
		"X-Xss-Protection":                  "0",
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range headers {
				h.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit checks the tiers in order against the client IP. A tier whose
// matcher does not select the request is skipped. The first tier that
// rejects answers 429; banned clients get RATE_LIMIT_BANNED. Limiter
// failures let the request through.
func RateLimit(limiter ratelimit.RateLimiter, tiers []ratelimit.Tier, observer PipelineObserver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := LoggerFromContext(r.Context())
			ip := ClientIP(r)
			info := ratelimit.RequestInfo{Path: r.URL.Path, Method: r.Method, IP: ip}

			for _, tier := range tiers {
				matched, err := tier.Match.Matches(info)
				if err != nil {
					logger.Error("rate limit tier match failed", "tier", tier.Name, "error", err)
					continue
				}
				if !matched {
					continue
				}

				res, err := limiter.Allow(r.Context(), ratelimit.FormatKey(tier.Name, ip), tier.Config)
				if err != nil {
					logger.Error("rate limit check failed", "tier", tier.Name, logging.ErrorAttrs(err, false))
					continue
				}
				setRateLimitHeaders(w, res)
				if res.Allowed {
					continue
				}

				if observer != nil {
					observer.RateLimited(tier.Name, res.Banned)
				}
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(res.RetryAfter)))
				if res.Banned {
					logger.Warn("client banned", "ip", ip, "tier", tier.Name, "url", r.URL.String())
					writeError(w, http.StatusTooManyRequests,
						"Too many requests, you have been temporarily banned", CodeRateLimitBanned)
					return
				}
				logger.Warn("rate limit exceeded", "ip", ip, "tier", tier.Name, "url", r.URL.String())
				writeError(w, http.StatusTooManyRequests,
					"Too many requests, please try again later", CodeTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.RateLimitResult) {
	h := w.Header()
	h.Set("X-Ratelimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-Ratelimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-Ratelimit-Reset", strconv.Itoa(ceilSeconds(res.ResetAfter)))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// SizeGuard rejects requests whose declared Content-Length exceeds max with
// 413 and caps every body at max bytes.
func SizeGuard(max int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				LoggerFromContext(r.Context()).Warn("request entity too large",
					"ip", ClientIP(r),
					"url", r.URL.String(),
					"content_length", r.ContentLength,
					"max", max)
				writeError(w, http.StatusRequestEntityTooLarge, "Request entity too large", CodePayloadTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SuspiciousPatterns logs requests whose URL or User-Agent match a
// suspicious signature and lets them continue. Warnings are throttled per
// client IP to perSecond (burst 5).
func SuspiciousPatterns(detector *validation.Detector, perSecond float64, observer PipelineObserver) Middleware {
	if perSecond <= 0 {
		perSecond = 1
	}
	throttle := newLogThrottle(rate.Limit(perSecond), 5)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.RequestURI()
			decoded, err := url.QueryUnescape(raw)
			if err != nil {
				decoded = raw
			}
			ua := r.UserAgent()

			pattern, found := detector.Match(raw, ua)
			if !found && decoded != raw {
				pattern, found = detector.Match(decoded, ua)
			}
			if found {
				if observer != nil {
					observer.Suspicious(pattern)
				}
				ip := ClientIP(r)
				if throttle.allow(ip) {
					logging.Security(LoggerFromContext(r.Context()), "suspicious-request", "").
						Warn("Suspicious request detected",
							"ip", ip,
							"url", raw,
							"user_agent", ua,
							"pattern", pattern)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxThrottledClients bounds the throttle map; it is cleared when full.
const maxThrottledClients = 10_000

// logThrottle holds one token bucket per client.
type logThrottle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newLogThrottle(limit rate.Limit, burst int) *logThrottle {
	return &logThrottle{limit: limit, burst: burst, clients: make(map[string]*rate.Limiter)}
}

func (t *logThrottle) allow(key string) bool {
	t.mu.Lock()
	l, ok := t.clients[key]
	if !ok {
		if len(t.clients) >= maxThrottledClients {
			t.clients = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(t.limit, t.burst)
		t.clients[key] = l
	}
	t.mu.Unlock()
	return l.Allow()
}

// RequestLogging logs every request on arrival and on completion. The
// completion record is a warning for status >= 400. In development the
// request headers are logged at debug level.
func RequestLogging(development bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := LoggerFromContext(r.Context())
			ip := ClientIP(r)

			logger.Info("incoming request",
				"method", r.Method,
				"url", r.URL.String(),
				"ip", ip,
				"user_agent", r.UserAgent())
			if development {
				logger.Debug("request headers", "headers", redactHeaders(r.Header))
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request completed",
				"method", r.Method,
				"url", r.URL.String(),
				"ip", ip,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// redactHeaders copies h with credentials replaced.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		switch http.CanonicalHeaderKey(name) {
		case "Authorization", "Cookie", "X-Api-Key":
			out[name] = "[REDACTED]"
		default:
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}
