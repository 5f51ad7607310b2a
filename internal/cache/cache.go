package cache

import (
	"regexp"
	"strconv"
	"time"
)

// ByteStore defines the interface for caching serialized data with TTL.
type ByteStore interface {
	// Get retrieves a value from the store by key.
	// Returns the value and true if found and not expired, otherwise nil and false.
	Get(key string) ([]byte, bool)

	// Set stores a value with the given key and TTL.
	// TTL of 0 means use the default store TTL.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes a value from the store.
	Delete(key string) bool

	// Clear removes all values from the store.
	Clear()

	// Stats returns store statistics.
	Stats() Stats
}

// Admin is the non-generic view of a cache used by the registry, the admin
// API and the metrics collector.
type Admin interface {
	Name() string
	Stats() Stats
	// ResetStats zeroes the counters and keeps the entries.
	ResetStats()
	// Clear removes every entry and keeps the counters.
	Clear()
}

// KeyAdmin is implemented by caches that can enumerate and remove single keys.
type KeyAdmin interface {
	Admin
	Has(key string) bool
	Delete(key string) bool
	Keys() []string
	InvalidatePattern(re *regexp.Regexp) int
	Sweep() int
}

// Inspector exposes per-entry bookkeeping.
type Inspector interface {
	Inspect(key string) (EntryInfo, bool)
}

// Observable caches accept listeners for every event kind at once.
type Observable interface {
	OnAll(fn Listener) (unsubscribe func())
}

// Stats represents cache statistics.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Sets      uint64 `json:"sets"`
	Deletes   uint64 `json:"deletes"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`            // Current number of items
	MaxSize   int    `json:"maxSize"`         // Configured entry limit, -1 when unbounded
	HitRate   string `json:"hitRate"`         // hits / (hits + misses) as a percentage
	Bytes     int64  `json:"bytes,omitempty"` // Approximate payload size, byte stores only
}

// EntryInfo is a read-only snapshot of an entry's bookkeeping.
type EntryInfo struct {
	Key            string     `json:"key"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	HitCount       uint64     `json:"hitCount"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
}

// formatHitRate renders the hit ratio with two decimals, or "0%" before any access.
func formatHitRate(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	return strconv.FormatFloat(float64(hits)/float64(total)*100, 'f', 2, 64) + "%"
}
