// Package transport is the HTTP client used to talk to a light strip.
//
// It is HTTP-only with no caching: every call is a single request against the
// device's base URL, bounded by the configured timeout. Failures surface as
// *Error (connection, timeout, non-2xx) or *ParseError (malformed body).
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a request when no timeout is configured
const DefaultTimeout = 5 * time.Second

// maxBodySize caps how much of a response body is read
const maxBodySize = 64 << 10

// Client issues requests against a single device
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the device at address ("host" or "host:port").
// A rateLimitRPS of 0 disables pacing.
func NewClient(address string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}

	return &Client{
		baseURL:    BaseURL(address),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// BaseURL returns the device URL for an address. Addresses that already carry
// a scheme are used as-is.
func BaseURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimRight(address, "/")
	}
	return "http://" + address
}

// BaseURL returns the device base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close closes idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Get performs a GET and returns the response body
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// GetJSON performs a GET and decodes the JSON response into v
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	body, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ParseError{URL: c.baseURL + path, Err: err}
	}
	return nil
}

// PostForm performs a POST with a form-encoded body. The response body is discarded.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) error {
	_, err := c.do(ctx, http.MethodPost, path, form)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	target := c.baseURL + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Method: method, URL: target, Err: err}
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Method: method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Device request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(data))),
		}
	}

	return data, nil
}
