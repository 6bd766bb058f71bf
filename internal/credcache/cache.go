// Package credcache is the bounded read-through cache over role
// assignments. A small expiring LRU sits in front of the assignment
// store; the store stays the source of truth, the LRU only absorbs
// repeated lookups on the hot resolve path.
package credcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/snailscoop/modauthority/internal/moderation"
)

const (
	defaultCapacity = 4096
	defaultTTL      = 5 * time.Minute
)

// Cache implements moderation.AssignmentCache.
type Cache struct {
	mem   *expirable.LRU[string, moderation.Assignment]
	store moderation.AssignmentStore
	now   func() time.Time
}

var _ moderation.AssignmentCache = (*Cache)(nil)

// Option configures the cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache of the given capacity and entry TTL over store.
// Zero capacity/ttl select the defaults.
func New(store moderation.AssignmentStore, capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &Cache{
		mem:   expirable.NewLRU[string, moderation.Assignment](capacity, nil, ttl),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(userID, communityID string) string {
	return userID + "/" + communityID
}

// Get returns the active, unexpired assignment for (user, community), or
// nil when none exists. Memory hits are still checked against the
// validity window; the LRU TTL only bounds staleness, it does not model
// credential expiry.
func (c *Cache) Get(ctx context.Context, userID, communityID string) (*moderation.Assignment, error) {
	now := c.now()
	if a, ok := c.mem.Get(cacheKey(userID, communityID)); ok {
		if a.Valid(now) {
			out := a
			return &out, nil
		}
		c.mem.Remove(cacheKey(userID, communityID))
	}

	a, err := c.store.Active(ctx, userID, communityID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: load assignment: %v", moderation.ErrStorage, err)
	}
	if a == nil {
		return nil, nil
	}
	c.mem.Add(cacheKey(userID, communityID), *a)
	return a, nil
}

// Put persists the assignment and refreshes the memory entry. Concurrent
// writers for the same key are last-writer-wins.
func (c *Cache) Put(ctx context.Context, a moderation.Assignment) error {
	if err := c.store.Upsert(ctx, a); err != nil {
		return fmt.Errorf("%w: store assignment: %v", moderation.ErrStorage, err)
	}
	c.mem.Add(cacheKey(a.UserID, a.CommunityID), a)
	return nil
}

// Invalidate deactivates the stored assignment backed by credentialRef
// and drops the memory entry. The assignment row itself is kept for
// audit.
func (c *Cache) Invalidate(ctx context.Context, userID, communityID, credentialRef string) error {
	if err := c.store.DeactivateByCredential(ctx, credentialRef); err != nil {
		return fmt.Errorf("%w: deactivate assignment: %v", moderation.ErrStorage, err)
	}
	c.mem.Remove(cacheKey(userID, communityID))
	return nil
}
