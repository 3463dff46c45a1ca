package gns3

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const topologiesPath = "/topologies/"

// Client talks to the AE3GIS topology service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a client for baseURL. An empty baseURL is accepted; every
// call then fails with KindConfiguration. A zero timeout means no client-side
// deadline beyond the caller's context.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSpace(baseURL),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a base URL was provided.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// TopologiesURL is the endpoint ListTopologies calls.
func (c *Client) TopologiesURL() string {
	return strings.TrimRight(c.baseURL, "/") + topologiesPath
}

// ListTopologies fetches the topology list and returns the upstream JSON
// document untouched.
func (c *Client) ListTopologies(ctx context.Context) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, &Error{Kind: KindConfiguration, Err: ErrNotConfigured}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TopologiesURL(), nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("read GNS3 API response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindUpstreamStatus,
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}

	var payload json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindUpstreamParse, Err: err}
	}

	return payload, nil
}
