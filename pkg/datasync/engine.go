package datasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/habitkit/habitkit/pkg/async"
	"github.com/habitkit/habitkit/pkg/entitlement"
)

// SyncStatus is the non-blocking indicator surfaced to the UI. Upload
// failures land here instead of failing the mutation, since the local
// persist has already succeeded by the time an upload runs.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

var ErrNotInitialized = errors.New("datasync: engine has not been initialized")

// Engine applies mutations to the in-memory aggregate, keeps the local store
// in step synchronously, and pushes to the cloud when the active strategy is
// cloud-owned.
type Engine struct {
	local LocalStore
	cloud CloudStore
	log   *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	strategy Strategy
	userID   uuid.UUID
	agg      Aggregate
	ready    bool

	// generation counts mutations; uploadedGen is the newest generation the
	// cloud has confirmed. Their gap is what drives the follow-up upload
	// after an in-flight one completes.
	generation  uint64
	uploadedGen uint64
	uploading   bool

	status  SyncStatus
	lastErr error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSyncLogger sets the logger.
func WithSyncLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates an engine over the given stores. Transition must run
// before the first Mutate.
func NewEngine(local LocalStore, cloud CloudStore, opts ...EngineOption) *Engine {
	if local == nil {
		panic("datasync: local store is required")
	}
	if cloud == nil {
		panic("datasync: cloud store is required")
	}

	e := &Engine{
		local:  local,
		cloud:  cloud,
		log:    slog.Default(),
		status: SyncStatusIdle,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transition re-evaluates data ownership for an auth or plan change and runs
// the chosen strategy's initialization. It returns the strategy it settled
// on; on error the engine keeps serving the local copy without committing to
// a sync strategy.
func (e *Engine) Transition(ctx context.Context, userID uuid.UUID, authenticated bool, dec *entitlement.Decision) (Strategy, error) {
	strategy := Decide(authenticated, dec)

	local, err := e.local.Get()
	if err != nil {
		return strategy, fmt.Errorf("failed to read local store: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.userID = userID
	e.agg = local
	e.ready = true
	e.strategy = StrategyPending

	switch strategy {
	case StrategyLocalOnly, StrategyPending:
		e.strategy = strategy
		e.status = SyncStatusIdle
		return strategy, nil

	case StrategyCloudOwned:
		if err := e.initCloudOwnedLocked(ctx, local); err != nil {
			e.status = SyncStatusError
			e.lastErr = err
			return strategy, err
		}
		e.strategy = StrategyCloudOwned
		e.status = SyncStatusSynced
		return strategy, nil

	default: // StrategyLocalOwned
		if err := e.initLocalOwnedLocked(ctx, local); err != nil {
			e.status = SyncStatusError
			e.lastErr = err
			return strategy, err
		}
		e.strategy = StrategyLocalOwned
		e.status = SyncStatusIdle
		return strategy, nil
	}
}

// initCloudOwnedLocked makes the cloud copy authoritative. A non-empty cloud
// snapshot wholesale replaces the local cache. An empty cloud with local
// content is the first-time upgrade: local content migrates up once.
func (e *Engine) initCloudOwnedLocked(ctx context.Context, local Aggregate) error {
	cloud, found, err := e.cloud.Download(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("failed to download cloud data: %w", err)
	}

	if found && !cloud.Empty() {
		e.agg = cloud
		if err := e.local.Set(cloud); err != nil {
			return fmt.Errorf("failed to cache cloud data: %w", err)
		}
		e.uploadedGen = e.generation
		return nil
	}

	if !local.Empty() {
		if err := e.cloud.Upload(ctx, e.userID, local); err != nil {
			return fmt.Errorf("failed to migrate local data to cloud: %w", err)
		}
		e.log.InfoContext(ctx, "migrated local data to cloud", "user_id", e.userID)
	}
	e.uploadedGen = e.generation
	return nil
}

// initLocalOwnedLocked keeps the device primary and folds any cloud snapshot
// in additively.
func (e *Engine) initLocalOwnedLocked(ctx context.Context, local Aggregate) error {
	cloud, found, err := e.cloud.Download(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("failed to download cloud data: %w", err)
	}
	if !found || cloud.Empty() {
		return nil
	}

	merged := Merge(local, cloud)
	e.agg = merged
	if err := e.local.Set(merged); err != nil {
		return fmt.Errorf("failed to persist merged data: %w", err)
	}
	return nil
}

// Aggregate returns a copy of the current in-memory aggregate.
func (e *Engine) Aggregate() Aggregate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Clone()
}

// Strategy returns the active strategy.
func (e *Engine) Strategy() Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// Status returns the sync indicator and the last upload error, if any.
func (e *Engine) Status() (SyncStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastErr
}

// Mutate applies fn to the aggregate and persists the result to the local
// store before returning. Under the cloud-owned strategy it also starts an
// immediate upload of the full snapshot; if one is already in flight, the
// newer state is uploaded right after it completes. Uploads are never
// queued beyond that one follow-up, so the latest snapshot always wins.
func (e *Engine) Mutate(ctx context.Context, fn func(agg *Aggregate)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return ErrNotInitialized
	}

	next := e.agg.Clone()
	fn(&next)

	if err := e.local.Set(next); err != nil {
		return fmt.Errorf("failed to persist mutation: %w", err)
	}
	e.agg = next
	e.generation++

	if e.strategy == StrategyCloudOwned {
		e.startUploadLocked(ctx)
	}
	return nil
}

// startUploadLocked launches one upload of the current snapshot unless one
// is already running. Caller holds e.mu.
func (e *Engine) startUploadLocked(ctx context.Context) {
	if e.uploading {
		return
	}
	e.uploading = true
	e.status = SyncStatusSyncing

	snapshot := e.agg.Clone()
	gen := e.generation
	userID := e.userID

	async.Async(context.WithoutCancel(ctx), snapshot, func(ctx context.Context, snap Aggregate) (struct{}, error) {
		err := e.cloud.Upload(ctx, userID, snap)

		e.mu.Lock()
		defer e.mu.Unlock()
		e.uploading = false

		if err != nil {
			e.status = SyncStatusError
			e.lastErr = err
			e.log.ErrorContext(ctx, "cloud upload failed", "user_id", userID, "error", err)
			e.cond.Broadcast()
			return struct{}{}, err
		}

		if gen > e.uploadedGen {
			e.uploadedGen = gen
		}
		e.lastErr = nil
		if e.generation > e.uploadedGen && e.strategy == StrategyCloudOwned {
			// A mutation landed mid-upload; push the newest snapshot.
			e.startUploadLocked(ctx)
		} else {
			e.status = SyncStatusSynced
		}
		e.cond.Broadcast()
		return struct{}{}, nil
	})
}

// Flush blocks until no upload is in flight. It does not retry a failed
// upload; callers check Status afterwards.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.uploading {
		e.cond.Wait()
	}
	return e.lastErr
}
