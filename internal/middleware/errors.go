package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler returns the terminal stage of the pipeline: it turns any error
// a handler or middleware returned into a JSON {"error": "..."} response with
// a 4xx/5xx status. A nil logger disables logging.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code < http.StatusBadRequest {
			code = http.StatusInternalServerError
		}

		req := c.Request()
		if logger != nil {
			level := slog.LevelWarn
			if code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(context.Background(), level, "request error",
				"err", err,
				"status", code,
				"method", req.Method,
				"path", req.URL.Path,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
		}

		if c.Response().Committed {
			return
		}

		var werr error
		if req.Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"error": msg})
		}
		if werr != nil && logger != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}
