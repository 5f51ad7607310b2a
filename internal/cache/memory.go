package cache

import (
	"container/list"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lolerskatez/jellysso-sub000/internal/logger"
)

const (
	// DefaultTTL applies when Options.DefaultTTL is zero.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxSize applies when Options.MaxSize is zero.
	DefaultMaxSize = 1000
	// NoExpiration marks an entry that never expires. Any negative TTL is
	// treated the same way.
	NoExpiration time.Duration = -1
)

// Options configures a Cache.
type Options struct {
	// Name identifies the cache in logs, metrics and the admin API.
	Name string
	// DefaultTTL is used by Set. Zero selects DefaultTTL, NoExpiration keeps
	// entries until they are deleted or evicted.
	DefaultTTL time.Duration
	// MaxSize bounds the entry count. Zero selects DefaultMaxSize, a negative
	// value disables eviction.
	MaxSize int
	// DisableStats stops the hit/miss/set/delete/eviction counters.
	DisableStats bool
	// Logger receives listener failures. Defaults to the "cache" component logger.
	Logger *slog.Logger
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

type entry[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	expiresAt      time.Time
	hasExpiry      bool
	hitCount       uint64
	lastAccessedAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.hasExpiry && !now.Before(e.expiresAt)
}

type counters struct {
	hits      uint64
	misses    uint64
	sets      uint64
	deletes   uint64
	evictions uint64
}

// Cache is an in-memory key/value cache with per-entry TTL, lazy expiry and
// least-recently-used eviction. It is safe for concurrent use.
//
// Recency is tracked with a list ordered from most to least recently used:
// insertion, overwrite and a successful Get move an entry to the front, Has
// and Inspect do not. When the cache is full, Set evicts the back entry.
type Cache[V any] struct {
	mu           sync.Mutex
	name         string
	defaultTTL   time.Duration
	maxSize      int
	statsEnabled bool
	now          func() time.Time

	items map[string]*list.Element
	order *list.List

	stats  counters
	events *notifier
	flight singleflight.Group

	// generation moves on every Delete, InvalidatePattern and Clear. A
	// computation that started under an older generation does not store
	// its result.
	generation uint64
	// pending counts running single-flight computations per key.
	pending map[string]int
}

// New creates a cache with the given options.
func New[V any](opts Options) *Cache[V] {
	ttl := opts.DefaultTTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("cache")
	}
	if opts.Name != "" {
		log = log.With("cache", opts.Name)
	}

	return &Cache[V]{
		name:         opts.Name,
		defaultTTL:   ttl,
		maxSize:      maxSize,
		statsEnabled: !opts.DisableStats,
		now:          clock,
		items:        make(map[string]*list.Element),
		order:        list.New(),
		events:       newNotifier(log),
		pending:      make(map[string]int),
	}
}

// Name returns the configured cache name.
func (c *Cache[V]) Name() string { return c.name }

// Get returns the value for key. An expired entry is removed and reported as
// a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	v, ok, ev := c.lookupLocked(key, c.now(), true)
	c.mu.Unlock()
	if ev != nil {
		c.emit(*ev)
	}
	return v, ok
}

// Has reports whether an unexpired entry exists for key. It removes an
// expired entry like Get does but leaves statistics and recency untouched.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	_, ok, ev := c.lookupLocked(key, c.now(), false)
	c.mu.Unlock()
	if ev != nil {
		c.emit(*ev)
	}
	return ok
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key. A zero ttl expires the entry
// immediately and a negative ttl (NoExpiration) never expires it.
// When the cache is full and key is new, the least recently used entry is
// evicted first.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.store(key, value, ttl, nil)
}

// store is SetWithTTL that, given gen, only writes while the cache is still
// at that generation. It reports whether the value was stored.
func (c *Cache[V]) store(key string, value V, ttl time.Duration, gen *uint64) bool {
	now := c.now()
	fired := make([]Event, 0, 2)

	c.mu.Lock()
	if gen != nil && *gen != c.generation {
		c.mu.Unlock()
		return false
	}
	el, exists := c.items[key]
	if !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		if ev, ok := c.evictLocked(); ok {
			fired = append(fired, ev)
		}
	}

	e := &entry[V]{
		key:            key,
		value:          value,
		createdAt:      now,
		lastAccessedAt: now,
	}
	if ttl >= 0 {
		e.hasExpiry = true
		e.expiresAt = now.Add(ttl)
	}
	if exists {
		el.Value = e
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(e)
	}
	c.count(&c.stats.sets)
	c.mu.Unlock()

	fired = append(fired, Event{Kind: EventSet, Key: key, Value: value})
	c.emit(fired...)
	return true
}

// Delete removes key and reports whether an entry was removed.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	c.generation++
	_, running := c.pending[key]
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		if running {
			c.flight.Forget(key)
		}
		return false
	}
	e := c.removeLocked(el)
	c.count(&c.stats.deletes)
	c.mu.Unlock()

	c.flight.Forget(key)
	c.emit(Event{Kind: EventDelete, Key: key, Value: e.value})
	return true
}

// Clear removes every entry. Statistics are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.generation++
	c.items = make(map[string]*list.Element)
	c.order.Init()
	running := c.pendingKeysLocked(nil)
	c.mu.Unlock()

	for _, key := range running {
		c.flight.Forget(key)
	}

	c.emit(Event{Kind: EventClear})
}

// InvalidatePattern deletes every key matched by re and returns how many
// were removed. Matching uses regexp.MatchString, so the pattern matches
// anywhere in the key unless anchored with ^ or $. Each removal counts as a
// delete and emits a delete event. Computations already running for a
// matching key still return their value to their callers but do not store it.
func (c *Cache[V]) InvalidatePattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	var fired []Event

	c.mu.Lock()
	c.generation++
	running := c.pendingKeysLocked(re)
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if re.MatchString(e.key) {
			c.removeLocked(el)
			c.count(&c.stats.deletes)
			fired = append(fired, Event{Kind: EventDelete, Key: e.key, Value: e.value})
		}
		el = next
	}
	c.mu.Unlock()

	for _, key := range running {
		c.flight.Forget(key)
	}
	for _, ev := range fired {
		c.flight.Forget(ev.Key)
	}
	c.emit(fired...)
	return len(fired)
}

// Sweep removes every expired entry and returns the number removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	var fired []Event

	c.mu.Lock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[V])
		if e.expired(now) {
			c.removeLocked(el)
			fired = append(fired, Event{Kind: EventExpired, Key: e.key, Value: e.value})
		}
		el = next
	}
	c.mu.Unlock()

	c.emit(fired...)
	return len(fired)
}

// Len returns the number of stored entries, including expired entries that
// have not been observed yet.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the unexpired keys from most to least recently used.
func (c *Cache[V]) Keys() []string {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		if !e.expired(now) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Inspect returns the bookkeeping of an unexpired entry without touching it.
func (c *Cache[V]) Inspect(key string) (EntryInfo, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	e := el.Value.(*entry[V])
	if e.expired(now) {
		return EntryInfo{}, false
	}
	info := EntryInfo{
		Key:            e.key,
		CreatedAt:      e.createdAt,
		HitCount:       e.hitCount,
		LastAccessedAt: e.lastAccessedAt,
	}
	if e.hasExpiry {
		exp := e.expiresAt
		info.ExpiresAt = &exp
	}
	return info, true
}

// Stats returns a snapshot of the counters and the current size.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxSize := c.maxSize
	if maxSize < 0 {
		maxSize = -1
	}
	return Stats{
		Hits:      c.stats.hits,
		Misses:    c.stats.misses,
		Sets:      c.stats.sets,
		Deletes:   c.stats.deletes,
		Evictions: c.stats.evictions,
		Size:      len(c.items),
		MaxSize:   maxSize,
		HitRate:   formatHitRate(c.stats.hits, c.stats.misses),
	}
}

// ResetStats zeroes the counters without touching stored entries.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	c.stats = counters{}
	c.mu.Unlock()
}

// On registers fn for one event kind and returns a function that removes it.
func (c *Cache[V]) On(kind EventKind, fn Listener) (unsubscribe func()) {
	return c.events.on(kind, fn)
}

// OnAll registers fn for every event kind.
func (c *Cache[V]) OnAll(fn Listener) (unsubscribe func()) {
	offs := make([]func(), 0, len(AllEvents))
	for _, kind := range AllEvents {
		offs = append(offs, c.events.on(kind, fn))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// lookupLocked finds a live entry. With track set it records a hit or miss
// and refreshes the entry's recency. An expired entry is removed and the
// resulting event is returned for emission after unlocking.
func (c *Cache[V]) lookupLocked(key string, now time.Time, track bool) (V, bool, *Event) {
	var zero V
	el, ok := c.items[key]
	if !ok {
		if track {
			c.count(&c.stats.misses)
		}
		return zero, false, nil
	}

	e := el.Value.(*entry[V])
	if e.expired(now) {
		c.removeLocked(el)
		if track {
			c.count(&c.stats.misses)
		}
		return zero, false, &Event{Kind: EventExpired, Key: key, Value: e.value}
	}

	if track {
		c.count(&c.stats.hits)
		e.hitCount++
		e.lastAccessedAt = now
		c.order.MoveToFront(el)
	}
	return e.value, true, nil
}

// evictLocked removes the least recently used entry.
func (c *Cache[V]) evictLocked() (Event, bool) {
	el := c.order.Back()
	if el == nil {
		return Event{}, false
	}
	e := c.removeLocked(el)
	c.count(&c.stats.evictions)
	return Event{Kind: EventEvict, Key: e.key, Value: e.value}, true
}

func (c *Cache[V]) removeLocked(el *list.Element) *entry[V] {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
	return e
}

// pendingKeysLocked lists keys with a running computation, filtered by re
// when it is not nil.
func (c *Cache[V]) pendingKeysLocked(re *regexp.Regexp) []string {
	var keys []string
	for key := range c.pending {
		if re == nil || re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *Cache[V]) count(counter *uint64) {
	if c.statsEnabled {
		*counter++
	}
}

func (c *Cache[V]) emit(events ...Event) {
	for _, ev := range events {
		ev.Cache = c.name
		if ev.Time.IsZero() {
			ev.Time = c.now()
		}
		c.events.emit(ev)
	}
}
