// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"podcast-web/internal/client"
	"podcast-web/internal/config"
	"podcast-web/internal/model"
)

// Prefix is the inbound path prefix that marks a proxied request.
const Prefix = "/proxy/"

// ErrInvalidTarget is returned when the requested upstream is not an absolute
// URL with an allowed scheme and a host. No outbound call is made.
var ErrInvalidTarget = errors.New("invalid proxy target")

// forwardableRequestHeaders are the only request headers forwarded upstream.
// Accept-Encoding is left to the transport so compressed bodies are decoded
// before they reach the response compressor.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Range",
	"If-None-Match",
	"If-Modified-Since",
}

// forwardableResponseHeaders are the only response headers relayed to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":   true,
	"Content-Length": true,
	"Content-Range":  true,
	"Accept-Ranges":  true,
	"Cache-Control":  true,
	"Etag":           true,
	"Last-Modified":  true,
	"Expires":        true,
	"Date":           true,
}

const userAgent = "podcast-web/1.0"

// ProxyService resolves /proxy/ targets and forwards them upstream.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	schemes map[string]bool
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	schemes := make(map[string]bool, len(cfg.Proxy.AllowedSchemes))
	for _, s := range cfg.Proxy.AllowedSchemes {
		schemes[strings.ToLower(s)] = true
	}
	if len(schemes) == 0 {
		schemes["http"] = true
		schemes["https"] = true
	}

	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		schemes: schemes,
	}
}

// TargetFromRequestURI returns everything after the proxy prefix in the raw
// request URI, query string included, without decoding it.
func TargetFromRequestURI(requestURI string) string {
	if i := strings.Index(requestURI, Prefix); i >= 0 {
		return requestURI[i+len(Prefix):]
	}
	return ""
}

// Forward sends a ProxyRequest upstream and returns the response.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if err := s.validateTarget(pr.Target); err != nil {
		return nil, err
	}

	method := http.MethodGet
	if pr.Method == http.MethodHead {
		method = http.MethodHead
	}

	s.logger.Debug("forwarding request",
		"method", method,
		"target", pr.Target,
	)

	resp, err := s.client.Fetch(pr.Ctx, method, pr.Target, s.filterRequestHeaders(pr.Header))
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

func (s *ProxyService) validateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if !s.schemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return nil
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
