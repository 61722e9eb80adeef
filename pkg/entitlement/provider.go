package entitlement

import (
	"context"
	"time"
)

// Provider is the read-only query surface of the billing provider. All
// queries key on the provider's customer identifier, never on the
// application's user ID; translating between the two is the resolver's job.
//
// Query failures are expected operational events, not fatal ones: the
// resolver falls through to trial logic when the provider is unreachable so
// that a billing outage never blocks a user from at least their trial.
type Provider interface {
	// CustomerByEmail returns the provider customer ID for an email, or
	// ErrCustomerNotFound.
	CustomerByEmail(ctx context.Context, email string) (string, error)

	// ActiveSubscription returns the customer's active or trialing
	// subscription, or ErrNoActiveSubscription.
	ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)

	// LifetimePayment returns the customer's completed one-time lifetime
	// purchase, or ErrNoLifetimePayment.
	LifetimePayment(ctx context.Context, customerID string) (*Payment, error)
}

// Subscription is a normalized view of a provider subscription.
type Subscription struct {
	ID               string
	CustomerID       string
	Status           string // provider status verbatim: active, trialing, ...
	PriceID          string
	Interval         string // billing interval verbatim: month, year, ...
	CurrentPeriodEnd *time.Time
}

// Payment is a normalized view of a completed one-time payment.
type Payment struct {
	ID         string
	CustomerID string
	PriceID    string
	Amount     int64 // smallest currency unit; informational only
	PaidAt     time.Time
}

// WebhookParser verifies and normalizes a raw webhook delivery.
//
// Verification must run over the exact raw bytes before any parsing; a
// parser that unmarshals first is a spoofing hole. A verification failure is
// reported as ErrSignatureVerification (wrapped or not); any other error
// means the payload was authentic but unreadable.
type WebhookParser interface {
	Parse(payload []byte, signature string) (*Event, error)
}

// EventKind is a provider-neutral billing event classification.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindSubscriptionCreated EventKind = "subscription_created"
	KindSubscriptionUpdated EventKind = "subscription_updated"
	KindSubscriptionDeleted EventKind = "subscription_deleted"
	KindInvoicePaid         EventKind = "invoice_paid"
	KindPaymentFailed       EventKind = "payment_failed"
	KindUnknown             EventKind = "unknown"
)

// Event is a normalized billing event as fed to the Ingestor.
type Event struct {
	Kind          EventKind
	ProviderEvent string // original provider event name, for logs

	// User resolution inputs, in priority order: ReferenceID is the value
	// attached at checkout time, Metadata may carry "user_id", CustomerID
	// and CustomerEmail feed the reverse lookups.
	ReferenceID   string
	Metadata      map[string]string
	CustomerID    string
	CustomerEmail string

	SubscriptionID   string
	Status           string
	PriceID          string
	Interval         string
	CurrentPeriodEnd *time.Time

	// TrialEnd is set only when the provider event itself carries one.
	TrialEnd *time.Time

	// AmountTotal is informational; entitlement never gates on it.
	AmountTotal int64
}
