package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"podcast-web/internal/config"
	"podcast-web/internal/metrics"
	"podcast-web/internal/service"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Prefix
// routes take precedence over the catch-all, so each request reaches exactly
// one of proxy, API, metrics or the SPA fallback. The metrics parameter is
// optional.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, api *APIHandler, spa *SPAHandler) {
	readOnly := []string{http.MethodGet, http.MethodHead}

	e.Match(readOnly, service.Prefix+"*", proxy.Handle)

	api.Register(e.Group(APIPrefix))

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
	}

	e.Any("/*", spa.Fallback)
}
