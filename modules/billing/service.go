package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/habitkit/habitkit/pkg/entitlement"
)

// PlanResolver resolves the caller's plan decision.
type PlanResolver interface {
	Resolve(ctx context.Context, id entitlement.Identity) (*entitlement.Decision, error)
}

// WebhookIngestor processes one raw provider delivery.
type WebhookIngestor interface {
	Ingest(ctx context.Context, payload []byte, signature string) (*entitlement.Receipt, error)
}

// CheckoutProvider creates hosted checkout and portal sessions.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req entitlement.CheckoutParams) (string, error)
	PortalLink(ctx context.Context, customerID, returnURL string) (string, error)
}

// RecordReader looks up the stored plan record, used to find the provider
// customer for portal links.
type RecordReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*entitlement.Record, error)
}

// Service wires the billing HTTP surface.
type Service struct {
	resolver PlanResolver
	verifier TokenVerifier
	stripe   WebhookIngestor
	paddle   WebhookIngestor
	checkout CheckoutProvider
	records  RecordReader
	log      *slog.Logger
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithStripeIngestor mounts the Stripe webhook endpoint.
func WithStripeIngestor(ing WebhookIngestor) Option {
	return func(s *Service) {
		s.stripe = ing
	}
}

// WithPaddleIngestor mounts the Paddle webhook endpoint.
func WithPaddleIngestor(ing WebhookIngestor) Option {
	return func(s *Service) {
		s.paddle = ing
	}
}

// WithCheckout mounts the checkout and portal endpoints.
func WithCheckout(provider CheckoutProvider, records RecordReader) Option {
	return func(s *Service) {
		s.checkout = provider
		s.records = records
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates the billing service. Resolver and verifier are
// required; webhook and checkout endpoints mount only when configured.
func NewService(resolver PlanResolver, verifier TokenVerifier, opts ...Option) (*Service, error) {
	if resolver == nil {
		return nil, ErrMissingResolver
	}
	if verifier == nil {
		return nil, ErrMissingAuth
	}

	s := &Service{
		resolver: resolver,
		verifier: verifier,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
