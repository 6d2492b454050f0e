package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/trpc/todo.createTodo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "voltig_http_request_duration_seconds" {
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "route" && lp.GetValue() == "/api/trpc/*" {
						if m.GetHistogram().GetSampleCount() != 1 {
							t.Errorf("expected 1 observation, got %d", m.GetHistogram().GetSampleCount())
						}
						found = true
					}
				}
			}
		}
	}
	if !found {
		t.Error("expected to find http_request_duration_seconds metric with route=/api/trpc/*")
	}
}

func TestMetricsMiddleware_StatusClasses(t *testing.T) {
	tests := []struct {
		status int
		label  string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusNoContent, "2xx"},
		{http.StatusTooManyRequests, "4xx"},
		{http.StatusInternalServerError, "5xx"},
	}
	for _, tt := range tests {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)

		handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		var m dto.Metric
		if err := metrics.RequestsTotal.WithLabelValues("GET", "/", tt.label).Write(&m); err != nil {
			t.Fatal(err)
		}
		if m.Counter.GetValue() != 1 {
			t.Errorf("status %d: expected count 1 for %s, got %f", tt.status, tt.label, m.Counter.GetValue())
		}
	}
}

func TestMetricsMiddleware_SkipsMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/metrics", "/health"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() == "voltig_http_requests_total" && len(mf.GetMetric()) > 0 {
			t.Errorf("expected no request metrics, got %v", mf.GetMetric())
		}
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/":                       "/",
		"/api/auth/sign-in/email": "/api/auth/*",
		"/api/trpc/todo.getTodos": "/api/trpc/*",
		"/api/admin/stats":        "/api/admin/*",
		"/wp-login.php":           "other",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
