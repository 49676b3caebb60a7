package httpretry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	maxBodyBytes    = 8 << 20
	snippetMaxBytes = 256
)

// StatusError is a non-2xx response, carrying the status code and a capped
// body snippet for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth retrying: rate limiting and
// server-side failures only.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client issues GET requests with backoff on retryable failures. It is the
// single HTTP path for every non-RPC upstream (explorer, price API).
type Client struct {
	http   *http.Client
	policy Policy
	logger *zap.Logger
}

// NewClient builds a retrying HTTP client with the given request timeout.
func NewClient(timeout time.Duration, policy Policy, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		policy: policy,
		logger: logger,
	}
}

// HTTPClient exposes the underlying client so tests can intercept transport.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get fetches rawURL with the given query parameters, retrying on 429/5xx
// and transient transport failures. Other statuses fail immediately with the
// response body attached.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	var body []byte
	err := Do(ctx, c.logger, c.policy, IsRetryable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode, Body: snippet(data)}
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetJSON fetches and decodes a JSON response. A body that is not valid
// JSON is a terminal malformed-response error carrying the raw text snippet.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	body, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed response from %s: %w (body: %s)", rawURL, err, snippet(body))
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetMaxBytes {
		s = s[:snippetMaxBytes] + "..."
	}
	return s
}
