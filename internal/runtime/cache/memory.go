package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL matches the 24 hour freshness window drafts are reused for.
	DefaultTTL = 24 * time.Hour
	// DefaultMaxEntries is the occupancy threshold that triggers eviction.
	DefaultMaxEntries = 100
	// DefaultEvictBatch is how many of the oldest entries one eviction drops.
	DefaultEvictBatch = 20
)

type memoryCache struct {
	ttl        time.Duration
	maxEntries int
	evictBatch int

	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemory builds the in-process draft cache. Eviction is batched rather
// than LRU: once occupancy exceeds maxEntries the oldest evictBatch entries
// by StoredAt are dropped in one sweep.
func NewMemory(ttl time.Duration, maxEntries, evictBatch int) DraftCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if evictBatch <= 0 || evictBatch > maxEntries {
		evictBatch = DefaultEvictBatch
	}
	return &memoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		evictBatch: evictBatch,
		entries:    make(map[string]Entry),
	}
}

func (c *memoryCache) Lookup(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *memoryCache) Store(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		entry.ExpiresAt = entry.StoredAt.Add(c.ttl)
	}
	c.entries[key] = entry

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
	return nil
}

// evictOldestLocked drops the evictBatch oldest entries by creation time.
// Callers must hold c.mu.
func (c *memoryCache) evictOldestLocked() {
	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key: key, storedAt: entry.StoredAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })
	for i := 0; i < c.evictBatch && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

func (c *memoryCache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.entries)), nil
}

func (c *memoryCache) Close(_ context.Context) error {
	return nil
}
