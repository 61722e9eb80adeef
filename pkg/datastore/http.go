package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/habitkit/habitkit/pkg/datasync"
	"github.com/habitkit/habitkit/pkg/entitlement"
)

// BearerTokenSource supplies the bearer token for sync requests.
type BearerTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPStore is the client-side CloudStore talking to the sync endpoints. The
// user ID is implied by the bearer token; the userID argument only has to
// match the signed-in session.
type HTTPStore struct {
	baseURL string
	tokens  BearerTokenSource
	http    *http.Client
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPStoreDoer replaces the underlying http.Client, mostly for tests.
func WithHTTPStoreDoer(c *http.Client) HTTPStoreOption {
	return func(h *HTTPStore) {
		h.http = c
	}
}

// NewHTTPStore creates a sync client against the given base URL.
func NewHTTPStore(baseURL string, tokens BearerTokenSource, opts ...HTTPStoreOption) *HTTPStore {
	if baseURL == "" {
		panic("datastore: base URL is required")
	}
	if tokens == nil {
		panic("datastore: token source is required")
	}

	s := &HTTPStore{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStore) Upload(ctx context.Context, _ uuid.UUID, agg datasync.Aggregate) error {
	body, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPut, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return s.statusError(resp, ErrUploadFailed)
	}
	return nil
}

func (s *HTTPStore) Download(ctx context.Context, _ uuid.UUID) (datasync.Aggregate, bool, error) {
	resp, err := s.do(ctx, http.MethodGet, nil)
	if err != nil {
		return datasync.Aggregate{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return datasync.Aggregate{}, false, nil
	case http.StatusOK:
	default:
		return datasync.Aggregate{}, false, s.statusError(resp, ErrDownloadFailed)
	}

	var agg datasync.Aggregate
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		return datasync.Aggregate{}, false, fmt.Errorf("failed to decode aggregate: %w", err)
	}
	return agg, true, nil
}

func (s *HTTPStore) do(ctx context.Context, method string, body io.Reader) (*http.Response, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, errors.Join(entitlement.ErrUnauthenticated, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/sync/data", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, entitlement.ErrUnauthenticated
	}
	return resp, nil
}

func (s *HTTPStore) statusError(resp *http.Response, sentinel error) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, body)
}
