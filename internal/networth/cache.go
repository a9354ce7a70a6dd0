// Package networth caches the per-user net-worth aggregation behind a
// short TTL. The sync orchestrator invalidates entries whenever a run
// changes balance-affecting data, and an explicit invalidation always
// wins over the TTL.
package networth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"finsync/internal/core"
)

// DefaultTTL is how long a snapshot stays servable without invalidation.
const DefaultTTL = 5 * time.Minute

// Snapshot is one user's computed net position.
type Snapshot struct {
	UserID     string
	Total      core.Money
	ComputedAt time.Time
}

// ComputeFunc produces a fresh snapshot, typically by querying the ledger.
type ComputeFunc func(ctx context.Context) (Snapshot, error)

type entry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// Cache is safe for concurrent use from multiple orchestrator runs.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry
	// generations fence the warm/invalidate race: a snapshot computed
	// before an invalidation must not be stored after it.
	generations map[string]uint64

	group singleflight.Group
	now   func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:         ttl,
		entries:     make(map[string]entry),
		generations: make(map[string]uint64),
		now:         time.Now,
	}
}

// Get returns the cached snapshot for the user, if fresh.
func (c *Cache) Get(userID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return Snapshot{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, userID)
		return Snapshot{}, false
	}
	return e.snapshot, true
}

// Invalidate drops the user's snapshot immediately, regardless of TTL.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.generations[userID]++
}

// Warm returns the cached snapshot or computes a fresh one. Concurrent
// warms for the same user share a single computation.
func (c *Cache) Warm(ctx context.Context, userID string, compute ComputeFunc) (Snapshot, error) {
	if s, ok := c.Get(userID); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		// Re-check under the flight: another caller may have warmed the
		// entry between the miss and this callback.
		if s, ok := c.Get(userID); ok {
			return s, nil
		}

		c.mu.Lock()
		gen := c.generations[userID]
		c.mu.Unlock()

		s, err := compute(ctx)
		if err != nil {
			return Snapshot{}, err
		}

		c.mu.Lock()
		if c.generations[userID] == gen {
			c.entries[userID] = entry{snapshot: s, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// CleanExpired removes expired entries and returns how many were dropped.
// Suited for a periodic cleanup ticker.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for userID, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, userID)
			removed++
		}
	}
	return removed
}

// Size returns the number of cached snapshots.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
