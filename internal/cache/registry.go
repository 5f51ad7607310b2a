package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateName is returned when a cache name is registered twice.
	ErrDuplicateName = errors.New("cache name already registered")
	// ErrUnnamed is returned when registering a cache without a name.
	ErrUnnamed = errors.New("cache has no name")
)

// Registry holds the named caches of the process so the admin API, the
// metrics collector and the maintenance jobs can reach them.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Admin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]Admin)}
}

// Register adds c under c.Name().
func (r *Registry) Register(c Admin) error {
	name := c.Name()
	if name == "" {
		return ErrUnnamed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caches[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateName)
	}
	r.caches[name] = c
	return nil
}

// Get returns the cache registered under name.
func (r *Registry) Get(name string) (Admin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the statistics of every registered cache.
func (r *Registry) Snapshot() map[string]Stats {
	out := make(map[string]Stats)
	for _, name := range r.Names() {
		if c, ok := r.Get(name); ok {
			out[name] = c.Stats()
		}
	}
	return out
}

// SweepAll removes expired entries from every cache that supports it and
// returns the total removed.
func (r *Registry) SweepAll() int {
	total := 0
	for _, name := range r.Names() {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		if ka, ok := c.(KeyAdmin); ok {
			total += ka.Sweep()
		}
	}
	return total
}

// Observe registers fn on every observable cache currently registered.
func (r *Registry) Observe(fn Listener) (unsubscribe func()) {
	var offs []func()
	for _, name := range r.Names() {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		if o, ok := c.(Observable); ok {
			offs = append(offs, o.OnAll(fn))
		}
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
