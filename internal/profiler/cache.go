package profiler

import (
	"sync"
	"sync/atomic"
	"time"

	"robocurse/internal/rcmodel"
)

// Statistics reports cache hit/miss counters (spec §4.1's GetStatistics).
type Statistics struct {
	Hits           int64
	Misses         int64
	HitRatePercent float64
	EntryCount     int
}

// cache is a thread-safe DirectoryProfile cache keyed by normalized path,
// grounded on the teacher's atomic-counter style (worker.go's `processed`
// uint64) generalized from a single run counter to per-cache hit/miss
// counters plus a concurrent map.
type cache struct {
	mu       sync.RWMutex
	entries  map[string]rcmodel.DirectoryProfile
	hits     atomic.Int64
	misses   atomic.Int64
	maxAge   time.Duration
}

func newCache(maxAgeHours int) *cache {
	if maxAgeHours <= 0 {
		maxAgeHours = 24
	}
	return &cache{
		entries: make(map[string]rcmodel.DirectoryProfile),
		maxAge:  time.Duration(maxAgeHours) * time.Hour,
	}
}

// get returns the cached profile for p if present and fresh, recording a
// hit or miss as it goes. A stale entry counts as a miss (spec invariant
// #11: "GetCached(p) returns null iff no entry exists OR
// now-entry.LastScanned > MaxAgeHours").
func (c *cache) get(p string) (rcmodel.DirectoryProfile, bool) {
	key := rcmodel.NormalizePath(p)
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()

	if found && time.Since(entry.LastScanned) <= c.maxAge {
		c.hits.Add(1)
		return entry, true
	}
	c.misses.Add(1)
	return rcmodel.DirectoryProfile{}, false
}

func (c *cache) put(p string, dp rcmodel.DirectoryProfile) {
	key := rcmodel.NormalizePath(p)
	c.mu.Lock()
	c.entries[key] = dp
	c.mu.Unlock()
}

func (c *cache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]rcmodel.DirectoryProfile)
	c.mu.Unlock()
}

func (c *cache) resetStatistics() {
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *cache) statistics() Statistics {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = 100 * float64(hits) / float64(total)
	}

	return Statistics{Hits: hits, Misses: misses, HitRatePercent: rate, EntryCount: count}
}
