package plancache_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitkit/habitkit/pkg/entitlement"
	"github.com/habitkit/habitkit/pkg/plancache"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) {
	return string(s), nil
}

func TestHTTPClientFetchDecision(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/billing/plan", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"plan":"trial","status":"trial_active","subscribed":false,"trialEndsAt":"2025-06-08T10:00:00Z"}`))
	}))
	defer srv.Close()

	client := plancache.NewHTTPClient(srv.URL, staticTokens("tok"))
	dec, err := client.FetchDecision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanTrial, dec.Plan)
	assert.False(t, dec.Subscribed)
	require.NotNil(t, dec.TrialEndsAt)
}

func TestHTTPClientMapsUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"auth/invalid-token"}`))
	}))
	defer srv.Close()

	client := plancache.NewHTTPClient(srv.URL, staticTokens("expired"))
	_, err := client.FetchDecision(context.Background())
	require.ErrorIs(t, err, entitlement.ErrUnauthenticated)
}

func TestHTTPClientServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error"}`))
	}))
	defer srv.Close()

	client := plancache.NewHTTPClient(srv.URL, staticTokens("tok"))
	_, err := client.FetchDecision(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, entitlement.ErrUnauthenticated)
}

func TestFileDecisionStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "plan.json")
	store := plancache.NewFileDecisionStore(path)
	ctx := context.Background()

	// Missing file reads as no decision, not an error.
	dec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, dec)

	want := &entitlement.Decision{Plan: entitlement.PlanPro, Status: entitlement.StatusActive, Subscribed: true}
	require.NoError(t, store.Save(ctx, want))

	dec, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, want, dec)
}
