package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matthewbaird/mobi/internal/types"
)

const analyzePath = "/analyze-step"

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles calls to rps requests per second. Zero disables it.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between retries. It doubles per attempt.
func WithBackoff(base time.Duration) ClientOption {
	return func(c *Client) {
		c.backoffBase = base
	}
}

// Client calls the analysis service over HTTP. Transport errors, 429 and 5xx
// responses are retried with exponential backoff; other 4xx are not.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
}

var _ Analyzer = (*Client)(nil)

// NewClient creates a Client for the service at baseURL. By default calls are
// throttled to 5 req/s and retried twice.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(5, 5),
		maxRetries:  2,
		backoffBase: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze posts req to the service and decodes the manifest.
func (c *Client) Analyze(ctx context.Context, req Request) (*types.Manifest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CurrentData == nil {
		req.CurrentData = map[string]types.Value{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: encode request")
	}

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: analyze step")
	}
	defer resp.Body.Close() //nolint:errcheck

	var m types.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, eris.Wrap(err, "analysis: decode manifest")
	}
	if m.ExtractedData == nil {
		m.ExtractedData = map[string]types.Value{}
	}
	return &m, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	url := c.baseURL + analyzePath

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, eris.Wrap(err, "backoff")
			}
		}
		if err := c.wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "request cancelled")
			}
			lastErr = err
			zap.L().Warn("analysis request failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = eris.Errorf("http %d from %s: %s", resp.StatusCode, url, readSnippet(resp))
			zap.L().Warn("analysis service error, retrying",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, eris.Errorf("http %d from %s: %s", resp.StatusCode, url, readSnippet(resp))
		}
		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	if c.backoffBase <= 0 {
		return ctx.Err()
	}
	d := time.Duration(float64(c.backoffBase) * math.Pow(2, float64(attempt)))
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int63n(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readSnippet drains and closes resp.Body, returning at most 512 bytes of it.
func readSnippet(resp *http.Response) string {
	defer resp.Body.Close() //nolint:errcheck
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)
	return strings.TrimSpace(string(b))
}
