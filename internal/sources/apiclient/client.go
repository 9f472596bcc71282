// Package apiclient provides the shared HTTP client used by all post
// sources: a single transport with a polite rate limit, a fixed user agent,
// and helpers for the JSON and HTML endpoints the platforms expose.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second

	// One request per second with a small burst keeps us well under every
	// platform's anonymous thresholds.
	requestsPerSecond = 1
	requestBurst      = 3

	maxResponseBytes = 10 << 20 // 10 MiB
)

// Client is a rate-limited HTTP client for platform endpoints.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// New creates a client with the given user agent.
func New(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		userAgent:  userAgent,
	}
}

// UserAgent returns the user agent the client sends.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Request describes one upstream call.
type Request struct {
	URL     string
	Headers map[string]string
	Query   url.Values
	Cookies []*http.Cookie
}

// Get performs a GET and returns the raw body. Non-200 statuses are errors.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target := req.URL
	if len(req.Query) > 0 {
		target = target + "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.userAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	for _, cookie := range req.Cookies {
		httpReq.AddCookie(cookie)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// GetJSON performs a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL, err)
	}
	return nil
}

// ReadFixture decodes a local JSON file into out. Sources use this instead of
// the network when a fixture path is configured.
func ReadFixture(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode fixture %s: %w", path, err)
	}
	return nil
}
