// ABOUTME: HTTP GET layer for the remote content API with size and time limits
// ABOUTME: Returns opaque JSON bodies plus response headers for pagination

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxResponseSize caps response bodies (DoS protection).
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

const userAgent = "lessonstore/1.0"

// Result contains the response from an HTTP fetch operation. Body is opaque
// beyond being JSON; Header carries the pagination totals the remote API
// communicates out of band.
type Result struct {
	Body   []byte
	Header http.Header
}

// Client performs raw GETs against the content API.
type Client struct {
	http *http.Client
}

// NewClient creates a fetch client. timeout <= 0 takes 30 seconds.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Fetch retrieves a URL. Returns an error for any non-200 status; network
// failures come back classified as CategoryNetwork.
func (c *Client) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Category: CategoryNetwork, URL: urlStr, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Category: CategoryNetwork,
			URL:      urlStr,
			Err:      fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &Error{Category: CategoryNetwork, URL: urlStr, Err: err}
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response too large (exceeds %d bytes)", MaxResponseSize)
	}

	return &Result{Body: body, Header: resp.Header}, nil
}
