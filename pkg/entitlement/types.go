package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the entitlement tier a user is currently on.
// The three values are mutually exclusive; Subscribed in a Decision is
// derived from Plan alone, never from Status.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanTrial Plan = "trial"
	PlanPro   Plan = "pro"
)

// Status mirrors the billing provider's subscription status (plus the two
// trial states managed locally). It exists for display and auditing;
// entitlement logic keys on Plan.
type Status string

const (
	StatusNone         Status = ""
	StatusTrialActive  Status = "trial_active"
	StatusTrialExpired Status = "trial_expired"
	StatusActive       Status = "active"
	StatusTrialing     Status = "trialing"
	StatusPastDue      Status = "past_due"
	StatusCanceled     Status = "canceled"
)

// Entitled reports whether a provider status grants the pro plan.
// Status-based gating is deliberate: a fully discounted subscription has a
// zero invoice amount but is still active, so amount checks would reject it.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// PurchasePlan is the billing shape of a paid plan. Lifetime is terminal:
// once granted it survives every automated downgrade, cancellation webhooks
// included.
type PurchasePlan string

const (
	PurchaseNone     PurchasePlan = ""
	PurchaseMonthly  PurchasePlan = "monthly"
	PurchaseYearly   PurchasePlan = "yearly"
	PurchaseLifetime PurchasePlan = "lifetime"
)

// Record is the durable per-user plan row. It is the only mutable state
// shared between the resolver and the webhook ingestor, which is why every
// write to it goes through the Store's conditional operations.
type Record struct {
	UserID uuid.UUID
	Plan   Plan
	Status Status

	// TrialStart and TrialEnd are written exactly once, at trial creation,
	// and are read-only forever after. A webhook may fill them only when the
	// provider event itself carries a trial end and they are still null.
	TrialStart *time.Time
	TrialEnd   *time.Time

	PurchasePlan           PurchasePlan
	ProviderCustomerID     string
	ProviderSubscriptionID string

	// CurrentPeriodEnd is null for lifetime purchases.
	CurrentPeriodEnd *time.Time

	UpdatedAt time.Time
}

// TrialStarted reports whether the one-time trial creation already happened.
func (r *Record) TrialStarted() bool {
	return r.TrialStart != nil || r.TrialEnd != nil
}

// Lifetime reports whether the record holds an irrevocable lifetime purchase.
func (r *Record) Lifetime() bool {
	return r.PurchasePlan == PurchaseLifetime
}

// Decision is the transient result of a resolution call. It is returned to
// the client on every call and never stored as such.
type Decision struct {
	Plan            Plan         `json:"plan"`
	Status          Status       `json:"status"`
	PurchasePlan    PurchasePlan `json:"purchasePlan,omitempty"`
	TrialStartedAt  *time.Time   `json:"trialStartedAt,omitempty"`
	TrialEndsAt     *time.Time   `json:"trialEndsAt,omitempty"`
	SubscriptionEnd *time.Time   `json:"subscriptionEnd,omitempty"`
	Subscribed      bool         `json:"subscribed"`
	TrialExpired    bool         `json:"trialExpired,omitempty"`
}

// decisionFrom projects a record into the client-facing decision shape.
func decisionFrom(r *Record) *Decision {
	return &Decision{
		Plan:            r.Plan,
		Status:          r.Status,
		PurchasePlan:    r.PurchasePlan,
		TrialStartedAt:  r.TrialStart,
		TrialEndsAt:     r.TrialEnd,
		SubscriptionEnd: r.CurrentPeriodEnd,
		Subscribed:      r.Plan == PlanPro,
	}
}

// Identity is the authenticated caller of a resolution request.
type Identity struct {
	UserID uuid.UUID
	Email  string
}
