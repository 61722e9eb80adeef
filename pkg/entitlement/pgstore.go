package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production Store backed by PostgreSQL. The trial-create-once
// and lifetime invariants are expressed directly in the upsert SQL so they
// hold across any number of concurrent resolver and ingestor instances, not
// just within one process.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("entitlement: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const planRecordColumns = `user_id, plan, status, trial_start, trial_end, purchase_plan,
	provider_customer_id, provider_subscription_id, current_period_end, updated_at`

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+planRecordColumns+` FROM plan_records WHERE user_id = $1`, userID)
	return scanRecord(row)
}

func (s *PGStore) ByProviderCustomerID(ctx context.Context, customerID string) (*Record, error) {
	if customerID == "" {
		return nil, ErrRecordNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+planRecordColumns+` FROM plan_records WHERE provider_customer_id = $1`, customerID)
	return scanRecord(row)
}

// BeginTrial inserts the trial window atomically. The DO UPDATE is gated on
// the trial columns still being null and the plan not already being pro, so
// a losing racer's statement updates nothing; it then re-reads and returns
// the winner's row instead of its own values.
func (s *PGStore) BeginTrial(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO plan_records (user_id, plan, status, trial_start, trial_end, updated_at)
		VALUES ($1, 'trial', 'trial_active', $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			plan = 'trial',
			status = 'trial_active',
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			updated_at = now()
		WHERE plan_records.trial_start IS NULL
			AND plan_records.trial_end IS NULL
			AND plan_records.plan <> 'pro'
		RETURNING `+planRecordColumns,
		userID, start.UTC(), end.UTC())

	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	// Conditional update skipped: someone else already settled the record.
	return s.Get(ctx, userID)
}

// Apply upserts one record with the conditional field semantics of Change.
// Empty strings mean "leave as is"; trial columns only fill nulls; a
// lifetime record ignores downgrades and keeps a null period end.
func (s *PGStore) Apply(ctx context.Context, userID uuid.UUID, change Change) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO plan_records (
			user_id, plan, status, purchase_plan,
			provider_customer_id, provider_subscription_id,
			current_period_end, trial_start, trial_end, updated_at
		)
		VALUES ($1, COALESCE(NULLIF($2, ''), 'free'), $3, $4, $5, $6,
			CASE WHEN $4 = 'lifetime' THEN NULL ELSE $7::timestamptz END, $8, $9, now())
		ON CONFLICT (user_id) DO UPDATE SET
			plan = CASE
				WHEN plan_records.purchase_plan = 'lifetime' AND $2 = 'free' THEN plan_records.plan
				WHEN $2 = '' THEN plan_records.plan
				ELSE $2 END,
			status = CASE
				WHEN plan_records.purchase_plan = 'lifetime' AND $2 = 'free' THEN plan_records.status
				WHEN $3 = '' THEN plan_records.status
				ELSE $3 END,
			purchase_plan = CASE
				WHEN plan_records.purchase_plan = 'lifetime' THEN plan_records.purchase_plan
				WHEN $4 = '' THEN plan_records.purchase_plan
				ELSE $4 END,
			provider_customer_id = CASE
				WHEN $5 = '' THEN plan_records.provider_customer_id
				ELSE $5 END,
			provider_subscription_id = CASE
				WHEN $6 = '' THEN plan_records.provider_subscription_id
				ELSE $6 END,
			current_period_end = CASE
				WHEN plan_records.purchase_plan = 'lifetime' OR $4 = 'lifetime' THEN NULL
				ELSE COALESCE($7, plan_records.current_period_end) END,
			trial_start = COALESCE(plan_records.trial_start, $8),
			trial_end = COALESCE(plan_records.trial_end, $9),
			updated_at = now()
		RETURNING `+planRecordColumns,
		userID,
		string(change.Plan),
		string(change.Status),
		string(change.PurchasePlan),
		change.ProviderCustomerID,
		change.ProviderSubscriptionID,
		utcOrNil(change.CurrentPeriodEnd),
		utcOrNil(change.TrialStart),
		utcOrNil(change.TrialEnd),
	)

	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.UserID,
		&rec.Plan,
		&rec.Status,
		&rec.TrialStart,
		&rec.TrialEnd,
		&rec.PurchasePlan,
		&rec.ProviderCustomerID,
		&rec.ProviderSubscriptionID,
		&rec.CurrentPeriodEnd,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
