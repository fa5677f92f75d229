// Package cache provides in-process caches in front of the unit store.
package cache

import (
	"context"
	"strings"
	"sync"

	"unitrack/internal/domain/units"
)

// DefaultPrefixCacheSize bounds the number of cached product lookups.
const DefaultPrefixCacheSize = 4096

// PrefixCache remembers which batch id a product name resolved to per
// facility. Units are never deleted, so a product that had a batch keeps
// its prefix and positive lookups never go stale. Misses and PrefixInUse
// always reach the store.
type PrefixCache struct {
	next units.PrefixRepository
	size int

	mu      sync.RWMutex
	entries map[string]string

	hits, misses uint64
}

var _ units.PrefixRepository = (*PrefixCache)(nil)

// NewPrefixCache wraps next. size <= 0 uses DefaultPrefixCacheSize.
func NewPrefixCache(next units.PrefixRepository, size int) *PrefixCache {
	if size <= 0 {
		size = DefaultPrefixCacheSize
	}
	return &PrefixCache{
		next:    next,
		size:    size,
		entries: make(map[string]string),
	}
}

func cacheKey(facilityID, productName string) string {
	return facilityID + "\x00" + strings.ToLower(strings.TrimSpace(productName))
}

// FindBatchIDByProductName serves repeated lookups from memory.
func (c *PrefixCache) FindBatchIDByProductName(ctx context.Context, facilityID, productName string) (string, error) {
	key := cacheKey(facilityID, productName)

	c.mu.RLock()
	batchID, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return batchID, nil
	}

	batchID, err := c.next.FindBatchIDByProductName(ctx, facilityID, productName)
	if err != nil || batchID == "" {
		return batchID, err
	}

	c.mu.Lock()
	c.misses++
	if len(c.entries) >= c.size {
		// Drop everything rather than track recency; a refill costs one
		// query per product.
		clear(c.entries)
	}
	c.entries[key] = batchID
	c.mu.Unlock()
	return batchID, nil
}

// PrefixInUse is not cached: a free prefix becomes taken on the next insert.
func (c *PrefixCache) PrefixInUse(ctx context.Context, facilityID, prefix string) (bool, error) {
	return c.next.PrefixInUse(ctx, facilityID, prefix)
}

// Stats returns the hit and miss counters.
func (c *PrefixCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached products.
func (c *PrefixCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
