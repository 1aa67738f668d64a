// Package upstream provides the shared JSON-over-HTTP plumbing for the
// gateway's upstream API adapters. It normalises every failure mode into the
// dispatch taxonomy: non-2xx responses, transport failures, and malformed
// bodies surface as upstream faults, and deadline expiry surfaces as a
// timeout.
//
// Each adapter owns its own Client (and therefore its own connection pool);
// adapters for distinct upstreams share no mutable state.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/observe"
	"github.com/bananabit/fluxgate/internal/resilience"
)

// maxErrorBody bounds how much of an upstream error body is captured into
// error messages.
const maxErrorBody = 2048

// Client is a minimal JSON API client bound to one upstream.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *observe.Metrics
	breaker    *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying [http.Client]. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics injects a metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker guards the client with a circuit breaker. Transport failures
// and 5xx responses trip it; while open, calls fail fast without reaching
// the upstream.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a client for the named upstream. name appears in error
// messages and metric attributes. The client carries no request timeout of
// its own; the per-invocation deadline arrives via context.
func NewClient(name, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// do issues the request, routed through the breaker when one is configured.
// Only transport failures and 5xx responses count against the breaker; 4xx
// responses are the caller's problem, not a sign of upstream ill health.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}
	var resp *http.Response
	err := c.breaker.Do(func() error {
		var derr error
		resp, derr = c.httpClient.Do(req)
		if derr != nil {
			return derr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// PostJSON issues exactly one POST to baseURL+path with payload as the JSON
// body and decodes a 2xx response body into out (skipped when out is nil).
// The adapter contract holds here: no retries, one outbound call per
// invocation.
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return dispatch.Errorf(dispatch.KindInternal, "upstream %s: encode request: %v", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return dispatch.Errorf(dispatch.KindInternal, "upstream %s: build request: %v", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.do(req)
	c.metrics.UpstreamDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("upstream", c.name)),
	)
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return dispatch.Errorf(dispatch.KindUpstream, "upstream %s: %s: circuit open", c.name, path)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dispatch.Errorf(dispatch.KindTimeout, "upstream %s: %s: deadline elapsed after %s", c.name, path, time.Since(start).Round(time.Millisecond))
		}
		return dispatch.Errorf(dispatch.KindUpstream, "upstream %s: %s: %v", c.name, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return dispatch.Errorf(dispatch.KindUpstream, "upstream %s: %s returned HTTP %d: %s", c.name, path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dispatch.Errorf(dispatch.KindUpstream, "upstream %s: %s: malformed response body: %v", c.name, path, err)
	}
	return nil
}

// GetBytes fetches a URL and returns the raw body. Used by the image save
// tool to download generated artifacts.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dispatch.Errorf(dispatch.KindInternal, "upstream %s: build request: %v", c.name, err)
	}
	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return nil, dispatch.Errorf(dispatch.KindUpstream, "upstream %s: GET %s: circuit open", c.name, url)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, dispatch.Errorf(dispatch.KindTimeout, "upstream %s: GET %s: deadline elapsed", c.name, url)
		}
		return nil, dispatch.Errorf(dispatch.KindUpstream, "upstream %s: GET %s: %v", c.name, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, dispatch.Errorf(dispatch.KindUpstream, "upstream %s: GET %s returned HTTP %d", c.name, url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dispatch.Errorf(dispatch.KindUpstream, "upstream %s: GET %s: read body: %v", c.name, url, err)
	}
	return data, nil
}

// Name returns the upstream's identifier.
func (c *Client) Name() string { return c.name }
