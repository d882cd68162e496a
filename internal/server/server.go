// Package server assembles the Echo middleware pipeline.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"podcast-web/internal/config"
	"podcast-web/internal/handler"
	"podcast-web/internal/metrics"
	"podcast-web/internal/middleware"
	"podcast-web/internal/service"
)

// New builds the Echo instance with the middleware pipeline fixed for the
// process lifetime:
//
//	recover → request id → request logger* → metrics* → body limit →
//	security headers → HTTPS redirect* → rate limit* → gzip → static files
//
// followed by the routes and the terminal error handler. Stages marked * are
// included depending on cfg. The metrics parameter is optional.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays disabled: enclosure downloads stream for as long
	// as the upstream keeps sending.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	var errLogger *slog.Logger
	if cfg.Env.Logging() {
		errLogger = logger.With("component", "error_handler")
	}
	e.HTTPErrorHandler = middleware.ErrorHandler(errLogger)

	// Panics become ordinary errors so the error handler logs them, or
	// stays silent in test mode.
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(_ echo.Context, err error, _ []byte) error { return err },
	}))
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	if cfg.Env.Logging() {
		e.Use(middleware.RequestLogger(logger.With("component", "http"), quietPath(cfg)))
	}
	if m != nil {
		e.Use(middleware.MetricsMiddleware(m))
	}

	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders(cfg.Server.HSTSMaxAge))

	if cfg.Env.EnforceHTTPS() {
		e.Use(echomw.HTTPSRedirect())
	}

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		if cfg.Env.Logging() {
			logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
		}
	}

	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Level:   cfg.Server.GzipLevel,
		Skipper: isRangeRequest,
	}))

	e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
		Root:    cfg.Assets.Root,
		Index:   cfg.Assets.Index,
		Skipper: dynamicRoute(cfg),
	}))

	return e
}

// isRangeRequest keeps partial responses byte-exact for audio seeking.
func isRangeRequest(c echo.Context) bool {
	return c.Request().Header.Get("Range") != ""
}

// quietPath marks probe and scrape traffic, which would otherwise drown out
// real requests at info level.
func quietPath(cfg *config.Config) func(string) bool {
	healthz := handler.APIPrefix + "/healthz"
	return func(p string) bool {
		return p == healthz || (cfg.Metrics.Enabled && p == cfg.Metrics.Path)
	}
}

// dynamicRoute reports whether a path belongs to a handler rather than the
// asset root.
func dynamicRoute(cfg *config.Config) echomw.Skipper {
	return func(c echo.Context) bool {
		p := c.Request().URL.Path
		if strings.HasPrefix(p, service.Prefix) {
			return true
		}
		if p == handler.APIPrefix || strings.HasPrefix(p, handler.APIPrefix+"/") {
			return true
		}
		if cfg.Metrics.Enabled && p == cfg.Metrics.Path {
			return true
		}
		return c.Request().Method != http.MethodGet && c.Request().Method != http.MethodHead
	}
}
