package cache

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// SizedCache is a byte-bounded cache backed by ristretto. It serves rendered
// HTTP responses, where the payload size matters more than the entry count
// and exact eviction order does not.
//
// Ristretto zeroes its metrics on Clear, so the counters it owns are
// reported through a carry and a mark: Clear folds the current value into
// the carry and ResetStats marks the current value as zero. Clear therefore
// keeps statistics like Cache.Clear does.
type SizedCache struct {
	name       string
	cache      *ristretto.Cache
	defaultTTL time.Duration
	maxEntries int

	mu        sync.Mutex
	sets      uint64
	deletes   uint64
	removed   uint64 // deletes and expiry drops since the last Clear, for Size
	hits      metricView
	misses    metricView
	evictions metricView
}

// metricView reports a ristretto counter as carry + current - mark.
type metricView struct {
	carry, mark uint64
}

func (v *metricView) value(current uint64) uint64 {
	if current < v.mark {
		return v.carry
	}
	return v.carry + current - v.mark
}

// fold is called right before ristretto zeroes current.
func (v *metricView) fold(current uint64) {
	v.carry = v.value(current)
	v.mark = 0
}

func (v *metricView) reset(current uint64) {
	v.carry = 0
	v.mark = current
}

// sizedItem wraps the data with expiration time.
type sizedItem struct {
	data      []byte
	expiresAt time.Time
}

// NewSized creates a byte-bounded cache.
// maxSizeMB is the maximum size of the cache in megabytes.
// maxEntries sizes ristretto's admission counters.
// defaultTTL is the default time-to-live for entries.
func NewSized(name string, maxSizeMB int64, maxEntries int64, defaultTTL time.Duration) (*SizedCache, error) {
	// NumCounters should be ~10x the number of entries for optimal performance
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	maxCost := maxSizeMB * 1024 * 1024
	if maxCost <= 0 {
		maxCost = 1024 * 1024
	}

	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64, // Number of keys per Get buffer
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &SizedCache{
		name:       name,
		cache:      rc,
		defaultTTL: defaultTTL,
		maxEntries: int(maxEntries),
	}, nil
}

// Name returns the configured cache name.
func (c *SizedCache) Name() string { return c.name }

// Get retrieves a value from the cache by key.
func (c *SizedCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}

	item, ok := val.(*sizedItem)
	if !ok || !time.Now().Before(item.expiresAt) {
		c.drop(key)
		return nil, false
	}

	return item.data, true
}

// Set stores a value with the given key and TTL. A zero TTL selects the
// default TTL.
func (c *SizedCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	item := &sizedItem{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}

	// Set reports false when the admission policy rejects the item; that is
	// a normal outcome for a size-bounded store.
	if c.cache.Set(key, item, int64(len(value))) {
		c.mu.Lock()
		c.sets++
		c.mu.Unlock()
	}

	// Wait for value to pass through buffers so an immediate Get sees it.
	c.cache.Wait()
}

// Delete removes a value from the cache. The presence check goes through
// GetTTL, which does not count as a hit or a miss.
func (c *SizedCache) Delete(key string) bool {
	_, found := c.cache.GetTTL(key)
	c.cache.Del(key)
	if found {
		c.mu.Lock()
		c.deletes++
		c.removed++
		c.mu.Unlock()
	}
	return found
}

// drop removes an expired or unreadable entry found by Get.
func (c *SizedCache) drop(key string) {
	c.cache.Del(key)
	c.mu.Lock()
	c.removed++
	c.mu.Unlock()
}

// Clear removes all values from the cache. Statistics are kept.
func (c *SizedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.cache.Metrics
	c.hits.fold(m.Hits())
	c.misses.fold(m.Misses())
	c.evictions.fold(m.KeysEvicted())
	c.removed = 0
	c.cache.Clear()
}

// ResetStats zeroes the hit/miss/set/delete/eviction counters. Stored
// entries and the size accounting are untouched.
func (c *SizedCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.cache.Metrics
	c.hits.reset(m.Hits())
	c.misses.reset(m.Misses())
	c.evictions.reset(m.KeysEvicted())
	c.sets = 0
	c.deletes = 0
}

// Stats returns cache statistics. Ristretto updates its metrics
// asynchronously, so the numbers are approximate.
func (c *SizedCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.cache.Metrics

	items := int64(m.KeysAdded()) - int64(m.KeysEvicted()) - int64(c.removed)
	if items < 0 {
		items = 0
	}
	size := int64(m.CostAdded()) - int64(m.CostEvicted())
	if size < 0 {
		size = 0
	}

	hits := c.hits.value(m.Hits())
	misses := c.misses.value(m.Misses())
	return Stats{
		Hits:      hits,
		Misses:    misses,
		Sets:      c.sets,
		Deletes:   c.deletes,
		Evictions: c.evictions.value(m.KeysEvicted()),
		Size:      int(items),
		MaxSize:   c.maxEntries,
		HitRate:   formatHitRate(hits, misses),
		Bytes:     size,
	}
}

// Close closes the cache and releases resources.
func (c *SizedCache) Close() {
	c.cache.Close()
}
