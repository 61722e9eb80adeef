package plancache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/habitkit/habitkit/pkg/entitlement"
)

// Trigger identifies what prompted a refresh attempt. Forced triggers skip
// the cooldown window; none of them skip the single-flight guard.
type Trigger string

const (
	TriggerSignIn       Trigger = "sign_in"
	TriggerTokenRefresh Trigger = "token_refresh"
	TriggerForeground   Trigger = "foreground"
	TriggerPeriodic     Trigger = "periodic"
	TriggerManual       Trigger = "manual"
)

// Forced reports whether the trigger bypasses the cooldown window.
func (t Trigger) Forced() bool {
	switch t {
	case TriggerSignIn, TriggerTokenRefresh, TriggerForeground:
		return true
	}
	return false
}

// DecisionStore persists the last known decision across restarts.
type DecisionStore interface {
	Load(ctx context.Context) (*entitlement.Decision, error)
	Save(ctx context.Context, dec *entitlement.Decision) error
}

// DefaultCooldown is the minimum gap between non-forced refreshes.
const DefaultCooldown = 30 * time.Second

// Cache is the client-side mirror of the server's plan decision.
type Cache struct {
	client    Client
	store     DecisionStore
	cooldown  time.Duration
	onSignOut func()
	log       *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	decision    *entitlement.Decision
	lastRefresh time.Time
	inFlight    bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCooldown overrides the non-forced refresh cooldown.
func WithCooldown(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.cooldown = d
	}
}

// WithDecisionStore persists decisions so a restart starts from the last
// known one instead of none.
func WithDecisionStore(s DecisionStore) CacheOption {
	return func(c *Cache) {
		c.store = s
	}
}

// WithSignOutHandler installs the callback invoked when the resolver rejects
// the session.
func WithSignOutHandler(fn func()) CacheOption {
	return func(c *Cache) {
		c.onSignOut = fn
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

// WithCacheClock overrides the time source for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a plan cache around the given resolver client.
func NewCache(client Client, opts ...CacheOption) *Cache {
	if client == nil {
		panic("plancache: client is required")
	}

	c := &Cache{
		client:   client,
		cooldown: DefaultCooldown,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decision returns the cached decision, or nil when none is known yet.
func (c *Cache) Decision() *entitlement.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

// Warm loads the persisted decision into memory. It does not count as a
// refresh; the next trigger still goes to the resolver.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	dec, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if dec == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decision == nil {
		c.decision = dec
	}
	return nil
}

// Refresh attempts to fetch a fresh decision for the given trigger.
//
// The attempt is dropped, returning the current cached decision, when a
// refresh is already in flight or when a non-forced trigger lands inside the
// cooldown window. Dropped attempts are not queued.
//
// An unauthenticated response clears the cache and invokes the sign-out
// handler; the error is returned alongside a nil decision.
func (c *Cache) Refresh(ctx context.Context, trigger Trigger) (*entitlement.Decision, error) {
	c.mu.Lock()
	if c.inFlight {
		dec := c.decision
		c.mu.Unlock()
		return dec, nil
	}
	if !trigger.Forced() && !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.cooldown {
		dec := c.decision
		c.mu.Unlock()
		return dec, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	dec, err := c.client.FetchDecision(ctx)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		cached := c.decision
		if errors.Is(err, entitlement.ErrUnauthenticated) {
			c.decision = nil
			c.mu.Unlock()
			c.log.WarnContext(ctx, "plan refresh rejected, signing out", "trigger", trigger)
			if c.onSignOut != nil {
				c.onSignOut()
			}
			return nil, err
		}
		c.mu.Unlock()
		c.log.ErrorContext(ctx, "plan refresh failed", "trigger", trigger, "error", err)
		return cached, err
	}
	c.decision = dec
	c.lastRefresh = c.now()
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, dec); err != nil {
			c.log.ErrorContext(ctx, "failed to persist plan decision", "error", err)
		}
	}
	return dec, nil
}

// AutoRefresh issues periodic refreshes until the context is canceled.
// Periodic triggers honor the cooldown, so an interval shorter than the
// cooldown just produces dropped attempts.
func (c *Cache) AutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx, TriggerPeriodic); err != nil && errors.Is(err, entitlement.ErrUnauthenticated) {
				return
			}
		}
	}
}
