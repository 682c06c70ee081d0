package conditions

import (
	"sync"
	"time"

	"satwallet/internal/types"
)

// DefaultCacheTTL is the maximum age of a memoized evaluation result before
// it is treated as absent.
const DefaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	result   bool
	cachedAt time.Time
}

// ResultCache memoizes the last evaluation outcome per raw condition string.
//
// The key is the raw string as supplied by the caller, not the parsed
// condition: two differently-spelled strings that parse identically are
// cached independently. Cache granularity matches user input, not semantic
// equivalence.
//
// Entries are independently overwritable and stale reads are bounded by the
// TTL, so a single mutex around the map is all the synchronization required;
// last-write-wins on the timestamp is acceptable.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewResultCache creates a ResultCache with the given TTL. A non-positive
// ttl falls back to DefaultCacheTTL.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached result for raw if an entry exists and is younger
// than the TTL relative to now. An entry older than the TTL is treated as
// absent.
func (c *ResultCache) Get(raw string, now time.Time) (result bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[raw]
	if !exists {
		return false, false
	}
	if now.Sub(e.cachedAt) >= c.ttl {
		return false, false
	}
	return e.result, true
}

// Put records the evaluation result for raw, overwriting any prior entry.
func (c *ResultCache) Put(raw string, result bool, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[raw] = cacheEntry{result: result, cachedAt: now}
}

// Remove deletes the entry for raw. Used when a rule is unmonitored so a
// stale cached true cannot leak into a later re-activation window.
func (c *ResultCache) Remove(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, raw)
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats returns a snapshot of the cache contents for the management surface.
// Expired entries are excluded from both the size and the entry list.
func (c *ResultCache) Stats(now time.Time) types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := types.CacheStats{Entries: []types.CacheStat{}}
	for raw, e := range c.entries {
		if now.Sub(e.cachedAt) >= c.ttl {
			continue
		}
		stats.Entries = append(stats.Entries, types.CacheStat{
			Condition: raw,
			Result:    e.result,
			CachedAt:  e.cachedAt,
		})
	}
	stats.Size = len(stats.Entries)
	return stats
}
