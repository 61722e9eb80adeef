package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitkit/habitkit/pkg/entitlement"
)

func TestMemoryStoreBeginTrialOnce(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	start1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rec, err := store.BeginTrial(ctx, userID, start1, start1.Add(168*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanTrial, rec.Plan)

	// A second creation attempt with a different window returns the first.
	start2 := start1.Add(48 * time.Hour)
	rec, err = store.BeginTrial(ctx, userID, start2, start2.Add(168*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, start1, *rec.TrialStart)
	assert.Equal(t, start1.Add(168*time.Hour), *rec.TrialEnd)
}

func TestMemoryStoreBeginTrialConcurrent(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	const workers = 32
	results := make([]*entitlement.Record, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
			results[i], errs[i] = store.BeginTrial(ctx, userID, start, start.Add(168*time.Hour))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	want := *results[0].TrialEnd
	for _, rec := range results {
		assert.Equal(t, want, *rec.TrialEnd, "all racers converge on one trial window")
	}
}

func TestMemoryStoreBeginTrialSkipsProRecord(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	_, err := store.Apply(ctx, userID, entitlement.Change{
		Plan:   entitlement.PlanPro,
		Status: entitlement.StatusActive,
	})
	require.NoError(t, err)

	start := time.Now().UTC()
	rec, err := store.BeginTrial(ctx, userID, start, start.Add(168*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanPro, rec.Plan)
	assert.Nil(t, rec.TrialStart, "pro records never gain a trial window")
}

func TestMemoryStoreApplyConditionalFields(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	_, err := store.Apply(ctx, userID, entitlement.Change{
		Plan:                   entitlement.PlanPro,
		Status:                 entitlement.StatusActive,
		PurchasePlan:           entitlement.PurchaseMonthly,
		ProviderCustomerID:     "cus_1",
		ProviderSubscriptionID: "sub_1",
	})
	require.NoError(t, err)

	// Empty fields leave stored values alone.
	rec, err := store.Apply(ctx, userID, entitlement.Change{Status: entitlement.StatusPastDue})
	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanPro, rec.Plan)
	assert.Equal(t, entitlement.StatusPastDue, rec.Status)
	assert.Equal(t, "cus_1", rec.ProviderCustomerID)
	assert.Equal(t, "sub_1", rec.ProviderSubscriptionID)
}

func TestMemoryStoreLifetimeGuard(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	periodEnd := time.Now().Add(time.Hour).UTC()
	_, err := store.Apply(ctx, userID, entitlement.Change{
		Plan:             entitlement.PlanPro,
		Status:           entitlement.StatusActive,
		PurchasePlan:     entitlement.PurchaseLifetime,
		CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, rec.CurrentPeriodEnd, "lifetime forces a null period end")

	// Downgrade attempts bounce off.
	rec, err = store.Apply(ctx, userID, entitlement.Change{
		Plan:         entitlement.PlanFree,
		Status:       entitlement.StatusCanceled,
		PurchasePlan: entitlement.PurchaseMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, entitlement.PlanPro, rec.Plan)
	assert.Equal(t, entitlement.StatusActive, rec.Status)
	assert.Equal(t, entitlement.PurchaseLifetime, rec.PurchasePlan)
}

func TestMemoryStoreByProviderCustomerID(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	ctx := context.Background()

	_, err := store.Apply(ctx, userID, entitlement.Change{ProviderCustomerID: "cus_find"})
	require.NoError(t, err)

	rec, err := store.ByProviderCustomerID(ctx, "cus_find")
	require.NoError(t, err)
	assert.Equal(t, userID, rec.UserID)

	_, err = store.ByProviderCustomerID(ctx, "cus_missing")
	require.ErrorIs(t, err, entitlement.ErrRecordNotFound)

	_, err = store.ByProviderCustomerID(ctx, "")
	require.ErrorIs(t, err, entitlement.ErrRecordNotFound, "empty id never matches rows with no provider customer")
}
