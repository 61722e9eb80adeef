package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and single-node
// deployments. It enforces the same conditional-write invariants as PGStore
// under a single mutex, which makes it a faithful model for race tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects a clock; defaults to time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) ByProviderCustomerID(ctx context.Context, customerID string) (*Record, error) {
	if customerID == "" {
		return nil, ErrRecordNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ProviderCustomerID == customerID {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) BeginTrial(ctx context.Context, userID uuid.UUID, start, end time.Time) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{UserID: userID, Plan: PlanFree}
		s.records[userID] = rec
	}

	// Losing racers and already-pro records keep their values untouched.
	if rec.TrialStarted() || rec.Plan == PlanPro {
		return cloneRecord(rec), nil
	}

	rec.Plan = PlanTrial
	rec.Status = StatusTrialActive
	rec.TrialStart = &start
	rec.TrialEnd = &end
	rec.UpdatedAt = s.now().UTC()
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Apply(ctx context.Context, userID uuid.UUID, change Change) (*Record, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{UserID: userID, Plan: PlanFree}
		s.records[userID] = rec
	}

	applyChange(rec, change, s.now().UTC())
	return cloneRecord(rec), nil
}

func cloneRecord(r *Record) *Record {
	out := *r
	out.TrialStart = cloneTime(r.TrialStart)
	out.TrialEnd = cloneTime(r.TrialEnd)
	out.CurrentPeriodEnd = cloneTime(r.CurrentPeriodEnd)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
