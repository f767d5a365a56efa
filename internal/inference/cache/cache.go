// Package cache stores successful detection results by request fingerprint.
//
// The cache is bounded but never evicts: once it holds Capacity entries,
// Insert is a no-op until Clear is called. Callers that need fresh results
// must clear it themselves.
package cache

import (
	"sync"

	"github.com/banshee-data/capability-pipeline/internal/inference"
)

// ResultCache maps fingerprints to results with first-writer-wins semantics.
type ResultCache struct {
	mu       sync.RWMutex
	entries  map[string]inference.Result
	capacity int
}

// New returns a cache bounded at capacity entries. A non-positive capacity
// disables caching.
func New(capacity int) *ResultCache {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultCache{
		entries:  make(map[string]inference.Result, capacity),
		capacity: capacity,
	}
}

// Lookup returns a deep copy of the cached result for fingerprint.
func (c *ResultCache) Lookup(fingerprint string) (inference.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.entries[fingerprint]
	if !ok {
		return inference.Result{}, false
	}
	return res.Clone(), true
}

// Insert stores a copy of res under fingerprint. It reports whether the entry
// was added: an existing fingerprint or a full cache leaves state untouched.
func (c *ResultCache) Insert(fingerprint string, res inference.Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; exists {
		return false
	}
	if len(c.entries) >= c.capacity {
		return false
	}
	c.entries[fingerprint] = res.Clone()
	return true
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the configured bound.
func (c *ResultCache) Capacity() int {
	return c.capacity
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]inference.Result, c.capacity)
}
