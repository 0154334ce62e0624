// Package cache implements the bounded, per-category, TTL-expiring response
// cache shared by the lookup services. Entries are expired lazily on read and
// pruned oldest-first when a category grows past its cap.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/observ"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Metrics tracks cache performance counters.
type Metrics struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Expirations int64 `json:"expirations"`
	Evictions   int64 `json:"evictions"`
}

// ResponseCache is a per-category key/value store with TTL semantics.
// Categories are separate namespaces; the same key never collides across them.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[marketdata.Category]map[string]entry
	maxPerCategory int
	metrics Metrics
	log     zerolog.Logger

	now func() time.Time // overridable in tests
}

// New creates a ResponseCache capping each category at maxPerCategory entries.
func New(maxPerCategory int, log zerolog.Logger) *ResponseCache {
	if maxPerCategory <= 0 {
		maxPerCategory = 100
	}
	return &ResponseCache{
		entries:        make(map[marketdata.Category]map[string]entry),
		maxPerCategory: maxPerCategory,
		log:            log.With().Str("component", "response_cache").Logger(),
		now:            time.Now,
	}
}

// Get returns the cached value for (category, key) if it is younger than ttl.
// An expired entry is deleted as a side effect and reported as a miss.
func (c *ResponseCache) Get(category marketdata.Category, key string, ttl time.Duration) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.entries[category]
	if !ok {
		c.metrics.Misses++
		observ.IncCounter("response_cache_miss_total", map[string]string{"category": string(category)})
		return nil, false
	}
	e, ok := ns[key]
	if !ok {
		c.metrics.Misses++
		observ.IncCounter("response_cache_miss_total", map[string]string{"category": string(category)})
		return nil, false
	}
	if c.now().Sub(e.storedAt) > ttl {
		delete(ns, key)
		c.metrics.Misses++
		c.metrics.Expirations++
		observ.IncCounter("response_cache_expired_total", map[string]string{"category": string(category)})
		return nil, false
	}

	c.metrics.Hits++
	observ.IncCounter("response_cache_hit_total", map[string]string{"category": string(category)})
	return e.value, true
}

// Set stores value under (category, key), overwriting any prior entry, then
// prunes the category's oldest entries while it exceeds the cap.
func (c *ResponseCache) Set(category marketdata.Category, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.entries[category]
	if !ok {
		ns = make(map[string]entry)
		c.entries[category] = ns
	}
	ns[key] = entry{value: value, storedAt: c.now()}

	for len(ns) > c.maxPerCategory {
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, e := range ns {
			if first || e.storedAt.Before(oldestAt) {
				oldestKey, oldestAt, first = k, e.storedAt, false
			}
		}
		delete(ns, oldestKey)
		c.metrics.Evictions++
		observ.IncCounter("response_cache_eviction_total", map[string]string{"category": string(category)})
	}

	c.log.Debug().Str("category", string(category)).Str("key", key).Msg("cached response")
}

// Len returns the live entry count for a category, without expiry checks.
func (c *ResponseCache) Len(category marketdata.Category) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[category])
}

// Metrics returns a copy of the current counters.
func (c *ResponseCache) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}
