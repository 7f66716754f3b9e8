// Package fetch provides the HTTP RemoteFetcher used by the upstream tools.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"intel-mcp/internal/mcp"
)

// DefaultMaxBody caps how much of an upstream body is read.
const DefaultMaxBody = 8 << 20

// Client is a minimal HTTP GET client for upstream JSON APIs.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	MaxBody   int64
}

// New returns a new client. If httpClient is nil, a default with 15s timeout is used.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{HTTP: httpClient, UserAgent: "intel-mcp/1.0", MaxBody: DefaultMaxBody}
}

// Get performs a GET honouring ctx and returns status and body. Non-2xx
// statuses are not errors; only transport failures are.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*mcp.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := c.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &mcp.FetchResponse{Status: resp.StatusCode, Body: body}, nil
}
