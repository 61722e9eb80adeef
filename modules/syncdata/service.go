package syncdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/habitkit/habitkit/pkg/datasync"
	"github.com/habitkit/habitkit/pkg/entitlement"
	"github.com/habitkit/habitkit/pkg/jwt"
)

// maxAggregateBody bounds uploads. Aggregates are a few hundred KB for
// heavy users; anything near this limit is malformed or abusive.
const maxAggregateBody = 8 << 20

// TokenVerifier validates a bearer token and returns the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (entitlement.Identity, error)
}

// Service serves the sync endpoints over any CloudStore backend.
type Service struct {
	store    datasync.CloudStore
	verifier TokenVerifier
	log      *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates the sync data service.
func NewService(store datasync.CloudStore, verifier TokenVerifier, opts ...Option) *Service {
	if store == nil {
		panic("syncdata: cloud store is required")
	}
	if verifier == nil {
		panic("syncdata: token verifier is required")
	}

	s := &Service{
		store:    store,
		verifier: verifier,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the sync router, mounted by the caller under /sync.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/data", s.handleDownload)
	r.Put("/data", s.handleUpload)
	return r
}

func (s *Service) authenticate(w http.ResponseWriter, r *http.Request) (entitlement.Identity, bool) {
	token, err := jwt.BearerTokenExtractor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth/invalid-token")
		return entitlement.Identity{}, false
	}

	id, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth/invalid-token")
		return entitlement.Identity{}, false
	}
	return id, true
}

func (s *Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	agg, found, err := s.store.Download(r.Context(), id.UserID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "aggregate download failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeJSON(w, http.StatusOK, agg)
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var agg datasync.Aggregate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAggregateBody))
	if err := dec.Decode(&agg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if err := s.store.Upload(r.Context(), id.UserID, agg); err != nil {
		s.log.ErrorContext(r.Context(), "aggregate upload failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
