package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
)

// Metrics holds all Prometheus metrics for the API server.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal *prometheus.CounterVec
	SuspiciousTotal  *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	RateLimitKeys    prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	DatabaseUp       prometheus.Gauge
}

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg in the Prometheus exposition format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voltig",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"}, // status=2xx/4xx/5xx
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voltig",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voltig",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by a rate limit tier",
			},
			[]string{"tier", "banned"},
		),
		SuspiciousTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "voltig",
				Name:      "suspicious_requests_total",
				Help:      "Requests matching a suspicious pattern",
			},
			[]string{"pattern"},
		),
		RPCDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "voltig",
				Name:      "rpc_duration_seconds",
				Help:      "RPC procedure duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "code"},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "voltig",
				Name:      "rate_limit_keys",
				Help:      "Number of active rate limit keys",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "voltig",
				Name:      "active_sessions",
				Help:      "Number of unexpired auth sessions",
			},
		),
		DatabaseUp: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "voltig",
				Name:      "database_up",
				Help:      "1 if the last database ping succeeded",
			},
		),
	}
}

// ObserveRPC implements rpc.Observer.
func (m *Metrics) ObserveRPC(path string, code string, elapsed time.Duration) {
	m.RPCDuration.WithLabelValues(path, code).Observe(elapsed.Seconds())
}

// RateLimited implements PipelineObserver.
func (m *Metrics) RateLimited(tier string, banned bool) {
	label := "false"
	if banned {
		label = "true"
	}
	m.RateLimitedTotal.WithLabelValues(tier, label).Inc()
}

// Suspicious implements PipelineObserver.
func (m *Metrics) Suspicious(pattern string) {
	m.SuspiciousTotal.WithLabelValues(pattern).Inc()
}

var (
	_ rpc.Observer     = (*Metrics)(nil)
	_ PipelineObserver = (*Metrics)(nil)
)
