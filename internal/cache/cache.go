// Package cache provides composite caching tiers: a concurrent in-process
// LRU with TTL expiration, and a persistent tier backed by the run store.
// Both implement imagery.CompositeCache and can be stacked with Tiered.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terralens/landcover-cli/internal/imagery"
)

// Memory is a concurrent-safe LRU cache for raster composites with TTL
// expiration.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type memoryEntry struct {
	comp      *imagery.RasterComposite
	createdAt time.Time
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMemory creates a Memory cache with the given capacity and TTL.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get retrieves a cached composite. The second return is false on miss or
// expiration.
func (c *Memory) Get(_ context.Context, key string) (*imagery.RasterComposite, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	// Check TTL.
	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.comp, true
}

// Put stores a composite, evicting the oldest entry if at capacity.
func (c *Memory) Put(_ context.Context, key string, comp *imagery.RasterComposite) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// If key already exists, update in place and move to back.
	if _, ok := c.entries[key]; ok {
		c.entries[key] = &memoryEntry{comp: comp, createdAt: time.Now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	// Evict from front if at capacity.
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &memoryEntry{comp: comp, createdAt: time.Now()}
	c.order = append(c.order, key)
}

// Clear drops every cached entry. Hit and miss counters are preserved.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry)
	c.order = nil
}

// Stats returns cache performance statistics.
func (c *Memory) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// removeFromOrder removes a key from the LRU order slice.
func (c *Memory) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
