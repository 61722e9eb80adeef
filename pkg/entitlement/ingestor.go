package entitlement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// UserDirectory resolves an application user from an email address. It is
// the last-resort identity lookup for webhook events that carry neither a
// checkout reference nor a known provider customer ID.
type UserDirectory interface {
	// UserIDByEmail returns the user owning the email, or ErrUserNotResolved.
	UserIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// Receipt is the processing outcome of a webhook delivery. Verification
// failure is the only outcome reported as an error from Ingest; everything
// on the receipt has already been logged and deliberately swallowed so the
// provider's delivery pipeline is never blocked by our processing bugs.
type Receipt struct {
	Kind          EventKind
	ProviderEvent string
	UserID        uuid.UUID
	Handled       bool
	DropReason    string
	Err           error
}

// Ingestor consumes billing events pushed by the payment provider and
// upserts the plan record store. It runs independently of the Resolver and
// may race with it; every write is a conditional upsert keyed by user ID,
// never by event ID, so redelivery is naturally idempotent.
type Ingestor struct {
	store   Store
	parser  WebhookParser
	catalog *Catalog
	users   UserDirectory
	log     *slog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithUserDirectory enables email-based user resolution.
func WithUserDirectory(users UserDirectory) IngestorOption {
	return func(i *Ingestor) { i.users = users }
}

// WithIngestorLogger sets the logger; defaults to slog.Default.
func WithIngestorLogger(log *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if log != nil {
			i.log = log
		}
	}
}

// NewIngestor creates an Ingestor. Panics when store, parser, or catalog is
// nil to fail fast during initialization.
func NewIngestor(store Store, parser WebhookParser, catalog *Catalog, opts ...IngestorOption) *Ingestor {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if parser == nil {
		panic("entitlement: WebhookParser is required")
	}
	if catalog == nil {
		panic("entitlement: Catalog is required")
	}

	i := &Ingestor{
		store:   store,
		parser:  parser,
		catalog: catalog,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest verifies, parses, and applies one raw webhook delivery.
//
// The returned error is non-nil only for signature verification failure; the
// HTTP layer maps it to 400 so the provider stops retrying a forged or
// misconfigured delivery. Every post-verification failure lands on the
// receipt and still yields a success response upstream: a later resolver
// call self-heals from the provider's authoritative state.
func (i *Ingestor) Ingest(ctx context.Context, payload []byte, signature string) (*Receipt, error) {
	event, err := i.parser.Parse(payload, signature)
	if err != nil {
		if errors.Is(err, ErrSignatureVerification) {
			return nil, err
		}
		// Authentic but unreadable. Swallow.
		i.log.ErrorContext(ctx, "failed to parse webhook event", slog.Any("error", err))
		return &Receipt{Err: errors.Join(ErrMalformedEvent, err)}, nil
	}

	receipt := &Receipt{Kind: event.Kind, ProviderEvent: event.ProviderEvent}

	if event.Kind == KindUnknown {
		receipt.DropReason = "unhandled event kind"
		return receipt, nil
	}

	userID, err := i.resolveUser(ctx, event)
	if err != nil {
		// No record is fabricated for an unresolvable event.
		i.log.WarnContext(ctx, "webhook event dropped: no owning user",
			slog.String("provider_event", event.ProviderEvent),
			slog.String("customer_id", event.CustomerID))
		receipt.DropReason = "user not resolved"
		receipt.Err = err
		return receipt, nil
	}
	receipt.UserID = userID

	if err := i.process(ctx, userID, event); err != nil {
		i.log.ErrorContext(ctx, "webhook event processing failed",
			slog.String("provider_event", event.ProviderEvent),
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		receipt.Err = err
		return receipt, nil
	}

	receipt.Handled = true
	i.log.InfoContext(ctx, "webhook event applied",
		slog.String("provider_event", event.ProviderEvent),
		slog.String("user_id", userID.String()))
	return receipt, nil
}

// resolveUser finds the owning user, in priority order: the reference ID
// attached at checkout, event metadata, a reverse lookup by stored provider
// customer ID, and finally the provider's notion of customer email.
func (i *Ingestor) resolveUser(ctx context.Context, event *Event) (uuid.UUID, error) {
	if event.ReferenceID != "" {
		if id, err := uuid.Parse(event.ReferenceID); err == nil {
			return id, nil
		}
	}
	if raw, ok := event.Metadata["user_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
	}
	if event.CustomerID != "" {
		if rec, err := i.store.ByProviderCustomerID(ctx, event.CustomerID); err == nil {
			return rec.UserID, nil
		}
	}
	if i.users != nil && event.CustomerEmail != "" {
		if id, err := i.users.UserIDByEmail(ctx, event.CustomerEmail); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, ErrUserNotResolved
}

func (i *Ingestor) process(ctx context.Context, userID uuid.UUID, event *Event) error {
	switch event.Kind {
	case KindCheckoutCompleted:
		return i.applyCheckout(ctx, userID, event)
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindInvoicePaid:
		return i.applySubscriptionState(ctx, userID, event)
	case KindSubscriptionDeleted:
		return i.applyDeletion(ctx, userID, event)
	case KindPaymentFailed:
		return i.applyPaymentFailure(ctx, userID, event)
	}
	return nil
}

// applyCheckout grants pro on a completed checkout. The purchase plan comes
// from the catalog price mapping; a lifetime price makes the grant terminal.
func (i *Ingestor) applyCheckout(ctx context.Context, userID uuid.UUID, event *Event) error {
	purchase := i.catalog.PurchasePlanFor(event.PriceID, event.Interval)
	change := Change{
		Plan:                   PlanPro,
		Status:                 StatusActive,
		PurchasePlan:           purchase,
		ProviderCustomerID:     event.CustomerID,
		ProviderSubscriptionID: event.SubscriptionID,
		CurrentPeriodEnd:       event.CurrentPeriodEnd,
	}
	_, err := i.store.Apply(ctx, userID, change)
	return err
}

// applySubscriptionState derives entitlement from the subscription status,
// never from the invoice amount: a fully discounted subscription is still
// active and still grants pro.
func (i *Ingestor) applySubscriptionState(ctx context.Context, userID uuid.UUID, event *Event) error {
	plan := PlanFree
	if Status(event.Status).Entitled() {
		plan = PlanPro
	}
	change := Change{
		Plan:                   plan,
		Status:                 Status(event.Status),
		PurchasePlan:           i.catalog.PurchasePlanFor(event.PriceID, event.Interval),
		ProviderCustomerID:     event.CustomerID,
		ProviderSubscriptionID: event.SubscriptionID,
		CurrentPeriodEnd:       event.CurrentPeriodEnd,
		// Trial timestamps are filled only when the provider reported one;
		// the store additionally refuses to touch non-null columns.
		TrialEnd: event.TrialEnd,
	}
	_, err := i.store.Apply(ctx, userID, change)
	return err
}

// applyDeletion downgrades to free unless the record holds a lifetime
// purchase; lifetime is never revoked by an automated process.
func (i *Ingestor) applyDeletion(ctx context.Context, userID uuid.UUID, event *Event) error {
	rec, err := i.store.Get(ctx, userID)
	if err == nil && rec.Lifetime() {
		i.log.InfoContext(ctx, "ignoring deletion event for lifetime record",
			slog.String("user_id", userID.String()))
		return nil
	}
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return err
	}

	_, err = i.store.Apply(ctx, userID, Change{
		Plan:   PlanFree,
		Status: StatusCanceled,
	})
	return err
}

func (i *Ingestor) applyPaymentFailure(ctx context.Context, userID uuid.UUID, event *Event) error {
	_, err := i.store.Apply(ctx, userID, Change{
		Plan:   PlanFree,
		Status: StatusPastDue,
	})
	return err
}
