package resolver

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"fetchbot/internal/media"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// resolutionCache is an LRU bounded by entry count with per-entry expiry.
// A non-positive capacity or ttl disables it.
type resolutionCache struct {
	lru      *expirable.LRU[string, media.Resolution]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func newResolutionCache(capacity int, ttl time.Duration) *resolutionCache {
	c := &resolutionCache{capacity: capacity}
	if capacity > 0 && ttl > 0 {
		c.lru = expirable.NewLRU[string, media.Resolution](capacity, nil, ttl)
	}
	return c
}

func (c *resolutionCache) get(key string) (media.Resolution, bool) {
	if c.lru != nil {
		if value, ok := c.lru.Get(key); ok {
			c.hits.Add(1)
			return cloneResolution(value), true
		}
	}
	c.misses.Add(1)
	return media.Resolution{}, false
}

func (c *resolutionCache) put(key string, value media.Resolution) {
	if c.lru == nil {
		return
	}
	if c.lru.Add(key, cloneResolution(value)) {
		c.evictions.Add(1)
	}
}

func (c *resolutionCache) stats() CacheStats {
	stats := CacheStats{
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	if c.lru != nil {
		stats.Entries = len(c.lru.Keys())
	}
	return stats
}

func cloneResolution(r media.Resolution) media.Resolution {
	r.Options = append([]media.FormatOption(nil), r.Options...)
	return r
}
