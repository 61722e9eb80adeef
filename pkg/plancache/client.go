package plancache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/habitkit/habitkit/pkg/entitlement"
)

// Client fetches a fresh plan decision from the resolver endpoint.
type Client interface {
	FetchDecision(ctx context.Context) (*entitlement.Decision, error)
}

// TokenSource supplies the bearer token for resolver calls. Implementations
// typically wrap the auth session and refresh expired tokens themselves.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPClient is the production Client talking to the billing module over
// HTTP. A 401 maps to entitlement.ErrUnauthenticated so the cache can tell
// a dead session apart from a flaky network.
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPDoer replaces the underlying http.Client, mostly for tests.
func WithHTTPDoer(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// NewHTTPClient creates a resolver client against the given base URL.
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...HTTPClientOption) *HTTPClient {
	if baseURL == "" {
		panic("plancache: base URL is required")
	}
	if tokens == nil {
		panic("plancache: token source is required")
	}

	c := &HTTPClient{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchDecision calls POST /billing/plan and decodes the decision.
func (c *HTTPClient) FetchDecision(ctx context.Context) (*entitlement.Decision, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Join(entitlement.ErrUnauthenticated, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/billing/plan", bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to build plan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plan request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, entitlement.ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("plan request returned %d: %s", resp.StatusCode, body)
	}

	var dec entitlement.Decision
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		return nil, fmt.Errorf("failed to decode plan decision: %w", err)
	}
	return &dec, nil
}
