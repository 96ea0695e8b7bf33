// Package upstream holds the HTTP and streaming adapters for the TON data
// feeds. Every adapter returns records in the source's native order.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tonbuy-alerts/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
	maxBodyBytes       = 8 << 20
)

// Record is one opaque upstream JSON object. Numbers stay json.Number.
type Record = map[string]any

// ErrStatus matches any StatusError via errors.Is.
var ErrStatus = errors.New("upstream returned non-success status")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, body)
}

// Is makes errors.Is(err, ErrStatus) true for every StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Client performs JSON GET calls against one upstream with retries,
// exponential backoff and a request rate limit.
type Client struct {
	name        string
	base        string
	client      *http.Client
	timeout     time.Duration // bounds a whole call, retries included
	limiter     *rate.Limiter
	header      http.Header
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout bounds a whole GetJSON call. Retries and backoff share the
// deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithRateLimit caps requests per second. Zero or negative disables limiting.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the upstream named name rooted at base.
func NewClient(name, base string, opts ...ClientOption) *Client {
	c := &Client{
		name:        name,
		base:        strings.TrimRight(base, "/"),
		client:      &http.Client{},
		timeout:     DefaultTimeout,
		header:      http.Header{"Accept": []string{"application/json"}},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("upstream", name))
	return c
}

// Name returns the upstream name used in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches base+path with query and decodes the body.
// 429, 5xx and transport errors are retried; other statuses are returned as *StatusError.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, header http.Header) (any, error) {
	start := time.Now()
	v, err := c.get(ctx, path, query, header)
	observability.RecordUpstream(c.name, time.Since(start).Seconds(), err)
	return v, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, header http.Header) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.base + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			c.logger.Debug("retrying upstream call", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, vs := range c.header {
			req.Header[k] = vs
		}
		for k, vs := range header {
			req.Header[k] = vs
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, Body: string(body)}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Client errors are not retried
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		v, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s response: %w", c.name, err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// records extracts a list of objects from a bare array or from the first
// listed key holding an array. Non-object elements are skipped.
func records(v any, keys ...string) []Record {
	var arr []any
	switch t := v.(type) {
	case []any:
		arr = t
	case map[string]any:
		for _, k := range keys {
			if a, ok := t[k].([]any); ok {
				arr = a
				break
			}
		}
	}

	out := make([]Record, 0, len(arr))
	for _, item := range arr {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}
