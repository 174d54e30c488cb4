// Package remote provides the rate-limited, retrying HTTP client shared by the
// citation-index and metadata-registry clients.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default sustained requests per second.
	DefaultRateLimit = 5.0

	// DefaultUserAgent identifies the tool to remote services.
	DefaultUserAgent = "doi-corrector/1.0 (+https://github.com/opencitations/doi-corrector)"

	// maxBodySize bounds how much of a response body is read.
	maxBodySize = 32 << 20
)

// Recorder receives per-request outcomes, typically for metrics.
type Recorder interface {
	RequestDone(service, outcome string)
	RequestRetried(service string)
}

// Config configures a Client.
type Config struct {
	// Service names the remote API in errors, logs and metrics.
	Service string

	// Timeout applies to each HTTP request, not to the whole retry sequence.
	Timeout time.Duration

	// RateLimit is the maximum requests per second; Burst the bucket size.
	RateLimit float64
	Burst     int

	// Retry bounds retries of transient failures.
	Retry RetryPolicy

	// UserAgent is sent with every request.
	UserAgent string

	// Header holds static headers (credentials, mailto) added to every request.
	Header http.Header
}

// Client is a rate-limited HTTP client with bounded retries.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
	logger     zerolog.Logger
	recorder   Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRecorder sets the request outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// New creates a new Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	cfg.Retry = cfg.Retry.withDefaults()

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		cfg:        cfg,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the configured service name.
func (c *Client) Service() string {
	return c.cfg.Service
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts is how many requests were needed, 1 when the first one succeeded.
	Attempts int
}

// Get issues a GET with the given Accept header, retrying transient failures.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	var resp *Response
	attempts, err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		r, err := c.do(ctx, rawURL, accept)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("service", c.cfg.Service).Dur("wait", wait).Msg("retrying request")
		if c.recorder != nil {
			c.recorder.RequestRetried(c.cfg.Service)
		}
	})
	c.record(err)
	if err != nil {
		return nil, &AttemptError{Attempts: attempts, Err: err}
	}
	resp.Attempts = attempts
	return resp, nil
}

// AttemptError reports how many attempts a failed call made.
type AttemptError struct {
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%v (after %d attempts)", e.Err, e.Attempts)
	}
	return e.Err.Error()
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Attempts extracts the attempt count from an error returned by Get, or 0.
func Attempts(err error) int {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	return 0
}

// do performs a single rate-limited request and classifies the outcome.
func (c *Client) do(ctx context.Context, rawURL, accept string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isUnreachable(err) {
			return nil, fmt.Errorf("%w: %w: %v", ErrTransient, ErrUnreachable, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransient, c.cfg.Service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &RateLimitError{Service: c.cfg.Service, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrTransient, c.cfg.Service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Service:    c.cfg.Service,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), 200),
			URL:        rawURL,
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) record(err error) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsNotFound(err):
		outcome = "not_found"
	case IsRateLimited(err):
		outcome = "rate_limited"
	case IsMalformed(err):
		outcome = "malformed"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	c.recorder.RequestDone(c.cfg.Service, outcome)
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// isUnreachable reports connection-level failures (DNS, refused) as opposed to timeouts.
func isUnreachable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
