// Package client provides the outbound HTTP client used by /proxy/.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/netip"
	"strconv"
	"sync"
	"syscall"
	"time"

	"podcast-web/internal/config"
	"podcast-web/internal/metrics"
	"podcast-web/internal/model"
)

// ErrBlockedAddress is returned when the upstream resolves to a loopback,
// private, link-local or unspecified address and private networks are blocked.
var ErrBlockedAddress = errors.New("upstream address is not publicly routable")

// UpstreamClient performs single-shot requests against arbitrary upstreams.
// It never retries; redirects follow the net/http default policy.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	logTimings bool
}

// NewUpstreamClient creates an UpstreamClient with connection pooling. The
// configured timeout bounds the wait for response headers only; enclosure
// bodies may stream for as long as the caller keeps reading. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.Upstream.BlockPrivateNetworks {
		dialer.Control = denyPrivate
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		DialContext:           dialer.DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
		logTimings: cfg.Env.Logging(),
	}
}

// Fetch issues exactly one request to uri and returns the raw response.
// The caller is responsible for closing the response body. The context
// controls the lifetime of the upstream request: when it is canceled (e.g.
// the client disconnects), the upstream request is canceled as well.
func (c *UpstreamClient) Fetch(ctx context.Context, method, uri string, header http.Header) (*model.ProxyResponse, error) {
	tr := &tracer{}
	ctx = httptrace.WithClientTrace(ctx, tr.clientTrace())

	req, err := http.NewRequestWithContext(ctx, method, uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	tr.start()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	timings := tr.finish()

	c.record(req.Method, resp, timings)
	c.logRequest(uri, resp, err, timings)

	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Timings:    timings,
	}, nil
}

func (c *UpstreamClient) record(method string, resp *http.Response, t model.Timings) {
	if c.metrics == nil {
		return
	}
	method = metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(t.Total.Seconds())

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
}

// logRequest emits one record per outbound request, including failed ones.
func (c *UpstreamClient) logRequest(uri string, resp *http.Response, err error, t model.Timings) {
	if !c.logTimings {
		return
	}
	if err != nil {
		c.logger.Warn("request", "uri", uri, "err", err, "timings", t)
		return
	}
	c.logger.Info("request", "uri", uri, "status", resp.StatusCode, "timings", t)
}

// denyPrivate runs after DNS resolution, so address is always an IP literal.
func denyPrivate(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	ip := ap.Addr().Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// tracer collects httptrace callbacks. Dials can finish after Do returns
// (a losing happy-eyeballs attempt), so every field is guarded.
type tracer struct {
	mu sync.Mutex

	begin        time.Time
	gotConn      time.Time
	dnsStart     time.Time
	dnsDone      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	firstByte    time.Time
}

func (t *tracer) set(field *time.Time) {
	t.mu.Lock()
	if field.IsZero() {
		*field = time.Now()
	}
	t.mu.Unlock()
}

func (t *tracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn:              func(httptrace.GotConnInfo) { t.set(&t.gotConn) },
		DNSStart:             func(httptrace.DNSStartInfo) { t.set(&t.dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { t.set(&t.dnsDone) },
		ConnectStart:         func(string, string) { t.set(&t.connectStart) },
		ConnectDone:          func(string, string, error) { t.set(&t.connectDone) },
		TLSHandshakeStart:    func() { t.set(&t.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.set(&t.tlsDone) },
		GotFirstResponseByte: func() { t.set(&t.firstByte) },
	}
}

func (t *tracer) start() {
	t.mu.Lock()
	t.begin = time.Now()
	t.mu.Unlock()
}

// finish snapshots the phase durations. Only the first connection of a
// redirect chain is measured; Total covers the whole chain.
func (t *tracer) finish() model.Timings {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	return model.Timings{
		Wait:      span(t.begin, t.gotConn),
		DNS:       span(t.dnsStart, t.dnsDone),
		TCP:       span(t.connectStart, t.connectDone),
		TLS:       span(t.tlsStart, t.tlsDone),
		FirstByte: span(t.begin, t.firstByte),
		Total:     now.Sub(t.begin),
	}
}

func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}
