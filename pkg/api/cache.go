package api

import (
	"container/list"
	"sync"

	"github.com/vjranagit/sleepfilter/pkg/dashboard"
)

// nightsKey identifies a detail list. A filter change bumps the version, so
// entries never go stale; they only age out of the LRU.
type nightsKey struct {
	version uint64
	n       int
}

// NightsCache is an LRU cache of detail lists
type NightsCache struct {
	capacity int
	mu       sync.Mutex
	cache    map[nightsKey]*list.Element
	lru      *list.List
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	key    nightsKey
	nights []dashboard.Night
}

// NewNightsCache creates a cache holding at most capacity lists
func NewNightsCache(capacity int) *NightsCache {
	if capacity < 1 {
		capacity = 1
	}
	return &NightsCache{
		capacity: capacity,
		cache:    make(map[nightsKey]*list.Element),
		lru:      list.New(),
	}
}

// Get retrieves the list of n nights computed at version
func (c *NightsCache) Get(version uint64, n int) ([]dashboard.Night, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.cache[nightsKey{version, n}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).nights, true
}

// Put stores a list computed at version
func (c *NightsCache) Put(version uint64, n int, nights []dashboard.Night) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := nightsKey{version, n}
	if el, ok := c.cache[key]; ok {
		el.Value.(*cacheEntry).nights = nights
		c.lru.MoveToFront(el)
		return
	}

	c.cache[key] = c.lru.PushFront(&cacheEntry{key: key, nights: nights})

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// Stats returns cache statistics
func (c *NightsCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:     len(c.cache),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// HitRate returns the share of lookups that hit
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
