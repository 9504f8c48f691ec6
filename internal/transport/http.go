package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"telemetryagent/internal/config"
	"telemetryagent/internal/event"
	"telemetryagent/internal/network"
)

const (
	payloadContentType = "application/json; charset=utf-8"
	defaultPoolSize    = 50
	defaultHTTPTimeout = 10 * time.Second
)

// HTTPOptions configures an HTTP transport.
type HTTPOptions struct {
	Path     string        // appended to the endpoint, e.g. the tracker POST path
	PoolSize int           // max connections per destination, default 50
	Timeout  time.Duration // per request, default 10s
	Compress bool          // gzip request bodies
	SOCKS    config.SOCKSConfig
}

// HTTP posts batches to a collector over a pooled HTTP client.
type HTTP struct {
	client   *http.Client
	rt       *http.Transport
	endpoint string
	target   string
	compress bool
	now      func() time.Time
}

// NewHTTP creates an HTTP transport for endpoint (scheme://host[:port]).
// A missing scheme defaults to http.
func NewHTTP(endpoint string, opts HTTPOptions) (*HTTP, error) {
	u, err := parseHTTPEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	rt := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxIdleConns:        poolSize,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	dial, err := network.DialContextFunc(opts.SOCKS)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for collector: %w", err)
	}
	if dial != nil {
		rt.Proxy = nil
		rt.DialContext = dial
	}

	base := strings.TrimRight(u.String(), "/")
	target := base
	if opts.Path != "" {
		target = base + "/" + strings.TrimLeft(opts.Path, "/")
	}

	return &HTTP{
		client:   &http.Client{Transport: rt, Timeout: timeout},
		rt:       rt,
		endpoint: base,
		target:   target,
		compress: opts.Compress,
		now:      time.Now,
	}, nil
}

func parseHTTPEndpoint(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}
	return u, nil
}

// Endpoint returns the collector base URL.
func (h *HTTP) Endpoint() string {
	return h.endpoint
}

// Send posts the batch as one tracker payload. A transport error or a
// non-2xx status fails every event of the batch.
func (h *HTTP) Send(ctx context.Context, batch event.Batch) event.Outcome {
	if len(batch) == 0 {
		return event.Outcome{}
	}

	body, err := event.MarshalPayload(batch, h.now())
	if err != nil {
		return event.FailedAll(batch, err)
	}

	if err := h.post(ctx, body); err != nil {
		return event.FailedAll(batch, err)
	}
	return event.Succeeded(batch)
}

func (h *HTTP) post(ctx context.Context, body []byte) error {
	var encoding string
	if h.compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return fmt.Errorf("failed to compress payload: %w", err)
		}
		body = compressed
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", payloadContentType)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func gzipBytes(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close drops idle pooled connections. Requests in flight keep their
// connections until they complete.
func (h *HTTP) Close() error {
	h.rt.CloseIdleConnections()
	return nil
}
