package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Change describes a conditional update to a plan record. Zero values leave
// the stored field untouched, so concurrent writers can each apply only the
// fields they actually know about instead of blindly overwriting the row.
type Change struct {
	Plan   Plan
	Status Status

	// PurchasePlan is ignored when empty and never replaces lifetime.
	PurchasePlan PurchasePlan

	// Provider identifiers are ignored when empty.
	ProviderCustomerID     string
	ProviderSubscriptionID string

	// CurrentPeriodEnd is ignored when nil and forced to null when the
	// effective purchase plan is lifetime.
	CurrentPeriodEnd *time.Time

	// TrialStart and TrialEnd only ever fill null columns; non-null trial
	// timestamps are immutable no matter what a change carries.
	TrialStart *time.Time
	TrialEnd   *time.Time
}

// Store persists plan records, one row per user.
//
// Implementations must express every write as a conditional upsert keyed by
// user ID. Two invariants are enforced at this layer rather than trusted to
// callers: non-null trial timestamps are never overwritten or cleared, and a
// lifetime record is never downgraded to free.
type Store interface {
	// Get returns the record for a user or ErrRecordNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// ByProviderCustomerID reverse-looks-up a record by the billing
	// provider's customer identifier. Returns ErrRecordNotFound when no
	// record carries that identifier.
	ByProviderCustomerID(ctx context.Context, customerID string) (*Record, error)

	// BeginTrial performs the one-time trial creation atomically. When the
	// record already has trial timestamps, or is already pro, the write is a
	// no-op and the existing record is returned: a losing racer gets the
	// winner's values, never its own.
	BeginTrial(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Record, error)

	// Apply upserts the record with the given conditional change and
	// returns the resulting row.
	Apply(ctx context.Context, userID uuid.UUID, change Change) (*Record, error)
}

// applyChange merges a change into a record in-memory, honoring the same
// conditional rules PGStore expresses in SQL. Shared by MemoryStore and by
// tests that assert invariant behavior.
func applyChange(rec *Record, change Change, now time.Time) {
	lifetimeGuard := rec.Lifetime() && change.Plan == PlanFree

	if change.Plan != "" && !lifetimeGuard {
		rec.Plan = change.Plan
	}
	if change.Status != "" && !lifetimeGuard {
		rec.Status = change.Status
	}
	if change.PurchasePlan != "" && !rec.Lifetime() {
		rec.PurchasePlan = change.PurchasePlan
	}
	if change.ProviderCustomerID != "" {
		rec.ProviderCustomerID = change.ProviderCustomerID
	}
	if change.ProviderSubscriptionID != "" {
		rec.ProviderSubscriptionID = change.ProviderSubscriptionID
	}
	if rec.Lifetime() {
		rec.CurrentPeriodEnd = nil
	} else if change.CurrentPeriodEnd != nil {
		rec.CurrentPeriodEnd = change.CurrentPeriodEnd
	}
	if rec.TrialStart == nil {
		rec.TrialStart = change.TrialStart
	}
	if rec.TrialEnd == nil {
		rec.TrialEnd = change.TrialEnd
	}
	rec.UpdatedAt = now
}
