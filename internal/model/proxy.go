// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ProxyRequest represents an inbound /proxy/ request. Target is the raw,
// caller-supplied upstream URL and is not trusted.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Target string
	Header http.Header
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Timings    Timings
}

// Timings holds the phase durations of one outbound request. Phases that did
// not happen (reused connection, plain HTTP) stay zero.
type Timings struct {
	Wait      time.Duration // until a connection was obtained
	DNS       time.Duration
	TCP       time.Duration
	TLS       time.Duration
	FirstByte time.Duration // request start to first response byte
	Total     time.Duration // request start to response headers
}

// LogValue renders the timings as a group of millisecond values.
func (t Timings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("wait_ms", ms(t.Wait)),
		slog.Float64("dns_ms", ms(t.DNS)),
		slog.Float64("tcp_ms", ms(t.TCP)),
		slog.Float64("tls_ms", ms(t.TLS)),
		slog.Float64("first_byte_ms", ms(t.FirstByte)),
		slog.Float64("total_ms", ms(t.Total)),
	)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
