// Package backend performs single outbound calls to a named backend and
// classifies each outcome as success or failure.
package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
)

// DefaultCallTimeout bounds a single backend call.
const DefaultCallTimeout = 10 * time.Second

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Request is the forwardable part of an inbound request. The body is
// buffered so the same request can be replayed against the fallback
// backend after a failed primary call.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       []byte
	Host       string
	RemoteAddr string
	TLS        bool
}

// NewRequest buffers an inbound HTTP request into a replayable Request.
func NewRequest(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = data
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Header:     r.Header.Clone(),
		Body:       body,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		TLS:        r.TLS != nil,
	}, nil
}

// Result is a successful backend response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
}

// Client performs calls against one backend base URL. A call is
// synchronous from the caller's point of view and is never retried
// here; fallback decisions belong to the routing layer.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     observability.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport sets the HTTP transport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// NewClient creates a client for the named backend.
func NewClient(name, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultCallTimeout,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call forwards the request to {baseURL}{path} with the same method and
// classifies the outcome. Any 2xx response is a success; everything
// else, including connection failures and timeouts, is returned as a
// *CallError.
func (c *Client) Call(ctx context.Context, req *Request) (*Result, error) {
	target := c.baseURL + req.Path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	outbound, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, &CallError{Backend: c.name, Kind: KindUnreachable, Cause: err}
	}

	c.prepareHeaders(outbound, req)
	observability.InjectTraceContext(ctx, outbound)

	start := time.Now()
	resp, err := c.httpClient.Do(outbound)
	latency := time.Since(start)

	if err != nil {
		callErr := &CallError{Backend: c.name, Kind: classify(err), Cause: err}
		c.logger.Warn("backend call failed",
			observability.String("backend", c.name),
			observability.String("path", req.Path),
			observability.String("kind", string(callErr.Kind)),
			observability.Duration("latency", latency),
			observability.Error(err),
		)
		return nil, callErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Backend: c.name, Kind: KindUnreachable, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend returned non-success status",
			observability.String("backend", c.name),
			observability.String("path", req.Path),
			observability.Int("status", resp.StatusCode),
		)
		return nil, &CallError{Backend: c.name, Kind: KindStatus, Status: resp.StatusCode}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Latency:    latency,
	}, nil
}

// prepareHeaders copies forwardable headers and sets the X-Forwarded
// set on the outbound request.
func (c *Client) prepareHeaders(outbound *http.Request, req *Request) {
	for key, values := range req.Header {
		for _, value := range values {
			outbound.Header.Add(key, value)
		}
	}

	for _, h := range hopHeaders {
		outbound.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		outbound.Header.Set("X-Forwarded-For", clientIP)
	}

	if req.TLS {
		outbound.Header.Set("X-Forwarded-Proto", "https")
	} else {
		outbound.Header.Set("X-Forwarded-Proto", "http")
	}

	if req.Host != "" {
		outbound.Header.Set("X-Forwarded-Host", req.Host)
	}
}

// classify maps a transport error to an error kind. Timeouts are kept
// distinct from connection failures for breaker accounting, though both
// count as failures.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindUnreachable
}
