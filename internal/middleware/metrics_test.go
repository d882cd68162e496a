package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"podcast-web/internal/metrics"
)

func requestLabels(t *testing.T, m *metrics.Metrics, match func(map[string]string) bool) map[string]string {
	t.Helper()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "podcast_web_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if match(labels) {
				return labels
			}
		}
	}
	return nil
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/v1/status", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "/api/v1"))
	if got != 1 {
		t.Errorf("counter value = %v, want 1", got)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/app.js", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/app.js", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "podcast_web_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected podcast_web_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/proxy/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed")
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy/http://feeds.example.com/rss", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	labels := requestLabels(t, m, func(l map[string]string) bool {
		return l["path_prefix"] == "/proxy"
	})
	if labels == nil {
		t.Fatal("expected podcast_web_http_requests_total with path_prefix=/proxy")
	}
	if labels["status_code"] != "502" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "502")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/api/v1/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/api/v1/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	labels := requestLabels(t, m, func(l map[string]string) bool {
		return l["path_prefix"] == "/api/v1"
	})
	if labels == nil {
		t.Fatal("expected podcast_web_http_requests_total with path_prefix=/api/v1")
	}
	if labels["method"] != "other" {
		t.Errorf("method = %q, want %q", labels["method"], "other")
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	labels := requestLabels(t, m, func(l map[string]string) bool {
		return l["path_prefix"] == "static" && l["method"] == "GET"
	})
	if labels == nil {
		t.Fatal("expected podcast_web_http_requests_total with path_prefix=static, method=GET")
	}
	if labels["status_code"] != "404" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "404")
	}
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	var during float64
	e.GET("/", func(c echo.Context) error {
		during = testutil.ToFloat64(m.RequestsInFlight)
		return c.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if during != 1 {
		t.Errorf("in flight during request = %v, want 1", during)
	}
	if after := testutil.ToFloat64(m.RequestsInFlight); after != 0 {
		t.Errorf("in flight after request = %v, want 0", after)
	}
}
