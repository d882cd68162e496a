package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"podcast-web/internal/client"
	"podcast-web/internal/model"
	"podcast-web/internal/service"
)

// ProxyHandler relays /proxy/<url> requests to arbitrary upstreams so the SPA
// can read feeds and enclosures that do not send CORS headers.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request upstream and streams the response back with
// the upstream status code. Failures are returned as *echo.HTTPError so the
// central error handler logs and renders them.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Target: service.TargetFromRequestURI(requestURI(req)),
		Header: req.Header,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is sent a mid-stream failure can only truncate the
	// body; it is logged at debug level since it is usually a client
	// abandoning an enclosure download.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Debug("streaming response body",
			"err", err,
			"target", pr.Target,
		)
	}

	return nil
}

// requestURI prefers the raw request target so the upstream URL is used
// exactly as the caller sent it.
func requestURI(req *http.Request) string {
	if req.RequestURI != "" {
		return req.RequestURI
	}
	return req.URL.RequestURI()
}

func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusBadRequest, "proxy target must be an absolute http(s) URL").SetInternal(err)
	case errors.Is(err, client.ErrBlockedAddress):
		return echo.NewHTTPError(http.StatusForbidden, "upstream address not allowed").SetInternal(err)
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream request timed out").SetInternal(err)
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusBadGateway, "client disconnected").SetInternal(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream host unreachable").SetInternal(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "upstream request timed out").SetInternal(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream connection failed").SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed").SetInternal(err)
}
