package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const defaultProviderTimeout = 10 * time.Second

// Resolver computes the authoritative plan decision for a user. Resolve is
// idempotent and safe to call concurrently and repeatedly; all state lives
// in the Store.
type Resolver struct {
	store           Store
	provider        Provider
	catalog         *Catalog
	log             *slog.Logger
	now             func() time.Time
	providerTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock injects a clock for tests; defaults to time.Now.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithResolverLogger sets the logger; defaults to slog.Default.
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithProviderTimeout bounds each provider query. On timeout the resolver
// falls through toward the trial branch instead of hanging.
func WithProviderTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.providerTimeout = d
		}
	}
}

// NewResolver creates a Resolver. Panics when store, provider, or catalog is
// nil to fail fast during initialization.
func NewResolver(store Store, provider Provider, catalog *Catalog, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if provider == nil {
		panic("entitlement: Provider is required")
	}
	if catalog == nil {
		panic("entitlement: Catalog is required")
	}

	r := &Resolver{
		store:           store,
		provider:        provider,
		catalog:         catalog,
		log:             slog.Default(),
		now:             time.Now,
		providerTimeout: defaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the precedence order and returns the current decision,
// writing back to the store where a step says so. First match wins:
//
//  1. Webhook-written pro record: return pro without contacting the provider.
//  2. Active or trialing subscription at the provider: upsert pro, return.
//  3. Completed lifetime payment at the provider: upsert pro, return.
//  4. Existing trial window: read-only; active trial or computed expiry.
//  5. No trial yet (including no record at all): one-time trial creation.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*Decision, error) {
	if id.UserID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	rec, err := r.store.Get(ctx, id.UserID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	// Step 1: a webhook write is authoritative once it lands. Returning
	// here is what makes resolver/webhook races converge.
	if rec != nil && rec.Plan == PlanPro && rec.Status.Entitled() &&
		(rec.ProviderCustomerID != "" || rec.Lifetime()) {
		return decisionFrom(rec), nil
	}

	// Steps 2 and 3 consult the provider as ground truth, self-healing a
	// stale or missing record. Failures are logged and fall through; they
	// are never retried inline.
	if dec := r.resolveFromProvider(ctx, id, rec); dec != nil {
		return dec, nil
	}

	// Step 4: the trial branch is read-only once timestamps exist.
	if rec != nil && rec.TrialStarted() {
		return r.resolveTrial(ctx, rec)
	}

	// Step 5: one-time trial creation, atomic in the store. A losing racer
	// receives the winner's record here.
	start := r.now().UTC()
	end := start.Add(r.catalog.TrialDuration)
	rec, err = r.store.BeginTrial(ctx, id.UserID, start, end)
	if err != nil {
		return nil, err
	}
	if rec.TrialStarted() && rec.Plan != PlanPro {
		return r.resolveTrial(ctx, rec)
	}
	return decisionFrom(rec), nil
}

func (r *Resolver) resolveFromProvider(ctx context.Context, id Identity, rec *Record) *Decision {
	qctx, cancel := context.WithTimeout(ctx, r.providerTimeout)
	defer cancel()

	customerID := r.customerID(qctx, id, rec)
	if customerID == "" {
		return nil
	}

	sub, err := r.provider.ActiveSubscription(qctx, customerID)
	if err == nil {
		change := Change{
			Plan:                   PlanPro,
			Status:                 Status(sub.Status),
			PurchasePlan:           r.catalog.PurchasePlanFor(sub.PriceID, sub.Interval),
			ProviderCustomerID:     customerID,
			ProviderSubscriptionID: sub.ID,
			CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		}
		updated, err := r.store.Apply(ctx, id.UserID, change)
		if err != nil {
			r.log.ErrorContext(ctx, "failed to persist provider subscription",
				slog.String("user_id", id.UserID.String()), slog.Any("error", err))
			return nil
		}
		return decisionFrom(updated)
	}
	if !errors.Is(err, ErrNoActiveSubscription) {
		r.log.WarnContext(ctx, "provider subscription query failed",
			slog.String("user_id", id.UserID.String()), slog.Any("error", err))
	}

	_, err = r.provider.LifetimePayment(qctx, customerID)
	if err == nil {
		change := Change{
			Plan:               PlanPro,
			Status:             StatusActive,
			PurchasePlan:       PurchaseLifetime,
			ProviderCustomerID: customerID,
		}
		updated, err := r.store.Apply(ctx, id.UserID, change)
		if err != nil {
			r.log.ErrorContext(ctx, "failed to persist lifetime payment",
				slog.String("user_id", id.UserID.String()), slog.Any("error", err))
			return nil
		}
		return decisionFrom(updated)
	}
	if !errors.Is(err, ErrNoLifetimePayment) {
		r.log.WarnContext(ctx, "provider payment query failed",
			slog.String("user_id", id.UserID.String()), slog.Any("error", err))
	}

	return nil
}

// customerID resolves the provider customer identity: identity lookup by
// email first, then whatever customer ID an earlier write stored.
func (r *Resolver) customerID(ctx context.Context, id Identity, rec *Record) string {
	if id.Email != "" {
		customerID, err := r.provider.CustomerByEmail(ctx, id.Email)
		if err == nil && customerID != "" {
			return customerID
		}
		if err != nil && !errors.Is(err, ErrCustomerNotFound) {
			r.log.WarnContext(ctx, "provider customer lookup failed",
				slog.String("user_id", id.UserID.String()), slog.Any("error", err))
		}
	}
	if rec != nil {
		return rec.ProviderCustomerID
	}
	return ""
}

// resolveTrial computes the decision from an existing trial window without
// ever writing the trial timestamps again.
func (r *Resolver) resolveTrial(ctx context.Context, rec *Record) (*Decision, error) {
	if rec.TrialEnd != nil && r.now().UTC().Before(*rec.TrialEnd) {
		dec := decisionFrom(rec)
		dec.Plan = PlanTrial
		dec.Status = StatusTrialActive
		return dec, nil
	}

	// Expired. Update plan/status to reflect it if they don't already, but
	// leave the trial timestamps alone.
	if rec.Plan != PlanFree || rec.Status != StatusTrialExpired {
		updated, err := r.store.Apply(ctx, rec.UserID, Change{
			Plan:   PlanFree,
			Status: StatusTrialExpired,
		})
		if err != nil {
			return nil, err
		}
		rec = updated
	}

	dec := decisionFrom(rec)
	dec.TrialExpired = true
	return dec, nil
}
