package dataset

import (
	"sync"
	"time"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

// Key identifies one version of a consolidated file on disk.
type Key struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Cache holds parsed datasets keyed by file identity.
type Cache struct {
	mu         sync.RWMutex
	data       map[Key]*cacheItem
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheItem struct {
	value     *model.Dataset
	storedAt  time.Time
	expiresAt time.Time
}

// NewCache creates a cache. A ttl of zero never expires entries.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		data:       make(map[Key]*cacheItem),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a dataset from cache.
func (c *Cache) Get(key Key) (*model.Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return nil, false
	}
	if c.ttl > 0 && c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

// Put stores a dataset, evicting the oldest entry when full.
func (c *Cache) Put(key Key, ds *model.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.data[key] = &cacheItem{
		value:     ds,
		storedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// evictLocked drops expired entries, or the oldest one when none expired.
func (c *Cache) evictLocked(now time.Time) {
	evicted := false
	if c.ttl > 0 {
		for k, v := range c.data {
			if now.After(v.expiresAt) {
				delete(c.data, k)
				evicted = true
			}
		}
	}
	if evicted {
		return
	}

	var oldest Key
	var oldestAt time.Time
	first := true
	for k, v := range c.data {
		if first || v.storedAt.Before(oldestAt) {
			oldest, oldestAt, first = k, v.storedAt, false
		}
	}
	if !first {
		delete(c.data, oldest)
	}
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.data)
	c.data = make(map[Key]*cacheItem)
	return n
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
