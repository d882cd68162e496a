// Package middleware provides Echo middleware for logging, metrics, security
// and error rendering.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that writes one record per
// request. The level follows the final status: Error for 5xx, Warn for 4xx,
// Info otherwise. Paths for which quiet reports true (probes, scrapes) drop
// to Debug when they succeed. quiet may be nil.
func RequestLogger(logger *slog.Logger, quiet func(path string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			status := responseStatus(c, err)

			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case quiet != nil && quiet(req.URL.Path):
				level = slog.LevelDebug
			}
			if !logger.Enabled(req.Context(), level) {
				return err
			}

			logger.LogAttrs(context.Background(), level, "request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("route", c.Path()),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				slog.String("remote_ip", c.RealIP()),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("bytes_out", c.Response().Size),
			)

			return err
		}
	}
}
