package datasync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitkit/habitkit/pkg/datasync"
	"github.com/habitkit/habitkit/pkg/entitlement"
)

type fakeCloud struct {
	mu        sync.Mutex
	agg       datasync.Aggregate
	present   bool
	uploads   int
	downloads int
	uploadErr error

	// gate, when non-nil, holds Upload open until closed.
	gate chan struct{}
}

func (c *fakeCloud) Upload(_ context.Context, _ uuid.UUID, agg datasync.Aggregate) error {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads++
	if c.uploadErr != nil {
		return c.uploadErr
	}
	c.agg = agg.Clone()
	c.present = true
	return nil
}

func (c *fakeCloud) Download(context.Context, uuid.UUID) (datasync.Aggregate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads++
	return c.agg.Clone(), c.present, nil
}

func (c *fakeCloud) snapshot() (datasync.Aggregate, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Clone(), c.uploads
}

func proDecision() *entitlement.Decision {
	return &entitlement.Decision{Plan: entitlement.PlanPro, Subscribed: true}
}

func freeDecision() *entitlement.Decision {
	return &entitlement.Decision{Plan: entitlement.PlanFree}
}

func seedLocal(t *testing.T, local datasync.LocalStore, names ...string) []datasync.Habit {
	t.Helper()
	habits := make([]datasync.Habit, 0, len(names))
	for _, name := range names {
		habits = append(habits, datasync.Habit{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()})
	}
	require.NoError(t, local.Set(datasync.Aggregate{Habits: habits}))
	return habits
}

func TestTransitionLocalOnlyNeverContactsCloud(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	seedLocal(t, local, "read")
	cloud := &fakeCloud{present: true, agg: datasync.Aggregate{Habits: []datasync.Habit{{ID: uuid.New(), Name: "cloud"}}}}
	engine := datasync.NewEngine(local, cloud)

	strategy, err := engine.Transition(context.Background(), uuid.Nil, false, nil)
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyLocalOnly, strategy)

	agg := engine.Aggregate()
	require.Len(t, agg.Habits, 1)
	assert.Equal(t, "read", agg.Habits[0].Name)

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	assert.Zero(t, cloud.downloads)
	assert.Zero(t, cloud.uploads)
}

func TestTransitionPendingServesLocalProvisionally(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	seedLocal(t, local, "run")
	cloud := &fakeCloud{present: true}
	engine := datasync.NewEngine(local, cloud)

	strategy, err := engine.Transition(context.Background(), uuid.New(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyPending, strategy)

	cloud.mu.Lock()
	defer cloud.mu.Unlock()
	assert.Zero(t, cloud.downloads, "no sync commitment before the plan arrives")
}

func TestTransitionCloudOwnedCloudWins(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	seedLocal(t, local, "local-habit")
	cloudHabit := datasync.Habit{ID: uuid.New(), Name: "cloud-habit"}
	cloud := &fakeCloud{present: true, agg: datasync.Aggregate{Habits: []datasync.Habit{cloudHabit}}}
	engine := datasync.NewEngine(local, cloud)

	strategy, err := engine.Transition(context.Background(), uuid.New(), true, proDecision())
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyCloudOwned, strategy)

	agg := engine.Aggregate()
	require.Len(t, agg.Habits, 1, "cloud replaces local wholesale, no merge")
	assert.Equal(t, cloudHabit.ID, agg.Habits[0].ID)

	persisted, err := local.Get()
	require.NoError(t, err)
	require.Len(t, persisted.Habits, 1)
	assert.Equal(t, cloudHabit.ID, persisted.Habits[0].ID)
}

func TestTransitionCloudOwnedMigratesLocalOnce(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	habits := seedLocal(t, local, "read", "run")
	cloud := &fakeCloud{}
	engine := datasync.NewEngine(local, cloud)

	strategy, err := engine.Transition(context.Background(), uuid.New(), true, proDecision())
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyCloudOwned, strategy)

	uploaded, uploads := cloud.snapshot()
	assert.Equal(t, 1, uploads)
	require.Len(t, uploaded.Habits, 2)
	assert.Equal(t, habits[0].ID, uploaded.Habits[0].ID)

	agg := engine.Aggregate()
	assert.Len(t, agg.Habits, 2, "local content survives the upgrade")
}

func TestTransitionCloudOwnedBothEmpty(t *testing.T) {
	t.Parallel()

	engine := datasync.NewEngine(datasync.NewMemoryLocal(), &fakeCloud{})

	strategy, err := engine.Transition(context.Background(), uuid.New(), true, proDecision())
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyCloudOwned, strategy)
	assert.True(t, engine.Aggregate().Empty())
}

func TestTransitionLocalOwnedMergesCloud(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	localHabits := seedLocal(t, local, "meditate")
	cloudHabit := datasync.Habit{ID: uuid.New(), Name: "stretch"}
	cloud := &fakeCloud{present: true, agg: datasync.Aggregate{Habits: []datasync.Habit{cloudHabit}}}
	engine := datasync.NewEngine(local, cloud)

	strategy, err := engine.Transition(context.Background(), uuid.New(), true, freeDecision())
	require.NoError(t, err)
	assert.Equal(t, datasync.StrategyLocalOwned, strategy)

	agg := engine.Aggregate()
	require.Len(t, agg.Habits, 2)
	assert.Equal(t, localHabits[0].ID, agg.Habits[0].ID, "local-only data survives")
}

func TestTransitionLocalOwnedEmptyCloudLeavesLocalAlone(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	seedLocal(t, local, "meditate")
	engine := datasync.NewEngine(local, &fakeCloud{})

	_, err := engine.Transition(context.Background(), uuid.New(), true, freeDecision())
	require.NoError(t, err)
	assert.Len(t, engine.Aggregate().Habits, 1)
}

func TestMutatePersistsLocallyBeforeReturning(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	cloud := &fakeCloud{}
	engine := datasync.NewEngine(local, cloud)
	ctx := context.Background()

	_, err := engine.Transition(ctx, uuid.New(), true, freeDecision())
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: id, Name: "write"})
	}))

	persisted, err := local.Get()
	require.NoError(t, err)
	require.Len(t, persisted.Habits, 1)
	assert.Equal(t, id, persisted.Habits[0].ID)

	_, uploads := cloud.snapshot()
	assert.Zero(t, uploads, "non-entitled mutations never upload")
}

func TestMutateUploadsImmediatelyWhenCloudOwned(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	cloud := &fakeCloud{}
	engine := datasync.NewEngine(local, cloud)
	ctx := context.Background()

	_, err := engine.Transition(ctx, uuid.New(), true, proDecision())
	require.NoError(t, err)

	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: uuid.New(), Name: "write"})
	}))
	require.NoError(t, engine.Flush())

	uploaded, uploads := cloud.snapshot()
	assert.Equal(t, 1, uploads)
	assert.Len(t, uploaded.Habits, 1)

	status, lastErr := engine.Status()
	assert.Equal(t, datasync.SyncStatusSynced, status)
	assert.NoError(t, lastErr)
}

func TestMutateDuringUploadTriggersOneFollowUp(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	cloud := &fakeCloud{gate: make(chan struct{})}
	engine := datasync.NewEngine(local, cloud)
	ctx := context.Background()

	_, err := engine.Transition(ctx, uuid.New(), true, proDecision())
	require.NoError(t, err)

	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: uuid.New(), Name: "first"})
	}))

	// Two more mutations land while the first upload is gated. They must
	// coalesce into a single follow-up carrying the newest state.
	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: uuid.New(), Name: "second"})
	}))
	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: uuid.New(), Name: "third"})
	}))

	cloud.mu.Lock()
	gate := cloud.gate
	cloud.gate = nil
	cloud.mu.Unlock()
	close(gate)

	require.NoError(t, engine.Flush())

	uploaded, uploads := cloud.snapshot()
	assert.Equal(t, 2, uploads, "one in-flight plus one follow-up, never a queue")
	assert.Len(t, uploaded.Habits, 3, "the latest full snapshot wins")

	status, _ := engine.Status()
	assert.Equal(t, datasync.SyncStatusSynced, status)
}

func TestUploadFailureSurfacesAsStatusNotDataLoss(t *testing.T) {
	t.Parallel()

	local := datasync.NewMemoryLocal()
	cloud := &fakeCloud{uploadErr: errors.New("cloud down")}
	engine := datasync.NewEngine(local, cloud)
	ctx := context.Background()

	_, err := engine.Transition(ctx, uuid.New(), true, proDecision())
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: id, Name: "write"})
	}), "a failed upload must not fail the mutation")

	flushErr := engine.Flush()
	require.Error(t, flushErr)

	status, lastErr := engine.Status()
	assert.Equal(t, datasync.SyncStatusError, status)
	assert.Error(t, lastErr)

	persisted, err := local.Get()
	require.NoError(t, err)
	assert.Len(t, persisted.Habits, 1, "local persistence already succeeded")

	// The next mutation naturally retries with fresher data.
	cloud.mu.Lock()
	cloud.uploadErr = nil
	cloud.mu.Unlock()
	require.NoError(t, engine.Mutate(ctx, func(agg *datasync.Aggregate) {
		agg.Habits = append(agg.Habits, datasync.Habit{ID: uuid.New(), Name: "again"})
	}))
	require.NoError(t, engine.Flush())

	uploaded, _ := cloud.snapshot()
	assert.Len(t, uploaded.Habits, 2)
}

func TestMutateBeforeTransition(t *testing.T) {
	t.Parallel()

	engine := datasync.NewEngine(datasync.NewMemoryLocal(), &fakeCloud{})
	err := engine.Mutate(context.Background(), func(*datasync.Aggregate) {})
	require.ErrorIs(t, err, datasync.ErrNotInitialized)
}

func TestFileLocalRoundTrip(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/data/habits.json"
	store := datasync.NewFileLocal(path)

	agg, err := store.Get()
	require.NoError(t, err)
	assert.True(t, agg.Empty(), "missing file reads as empty")

	id := uuid.New()
	require.NoError(t, store.Set(datasync.Aggregate{Habits: []datasync.Habit{{ID: id, Name: "read"}}}))

	agg, err = store.Get()
	require.NoError(t, err)
	require.Len(t, agg.Habits, 1)
	assert.Equal(t, id, agg.Habits[0].ID)
}
