package cache

import (
	"context"
	"fmt"
	"time"
)

// GetOrSet returns the cached value for key, or calls compute, stores its
// result with ttl and returns it. When compute fails nothing is stored, an
// error event is emitted and the error is returned unchanged.
//
// Concurrent misses on the same key may each call compute; the last result
// stored wins. A Delete, InvalidatePattern or Clear while compute runs keeps
// the result out of the cache. Use GetOrSetContext when compute must run
// once per key.
func (c *Cache[V]) GetOrSet(key string, compute func() (V, error), ttl time.Duration) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	gen := c.currentGeneration()
	v, err := compute()
	if err != nil {
		c.emit(Event{Kind: EventError, Key: key, Err: err})
		var zero V
		return zero, err
	}
	c.store(key, v, ttl, &gen)
	return v, nil
}

// GetOrSetContext is GetOrSet with per-key single-flight: concurrent misses
// on key share one call to compute and all receive its result.
//
// compute receives a context that carries ctx's values but is never
// cancelled, so a caller giving up does not abort the computation for the
// other waiters; the result is still stored. A caller whose ctx ends before
// the computation finishes gets ctx.Err().
//
// A Delete, InvalidatePattern or Clear during the computation keeps its
// result out of the cache; the waiters still receive it. A panic in compute
// is returned to every waiter as an error.
func (c *Cache[V]) GetOrSetContext(ctx context.Context, key string, compute func(context.Context) (V, error), ttl time.Duration) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (val any, err error) {
		// A flight that finished between our miss and this call already stored the value.
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		gen := c.beginFlight(key)
		defer c.endFlight(key)
		defer func() {
			if r := recover(); r != nil {
				val, err = nil, fmt.Errorf("cache %s: compute panicked: %v", c.name, r)
				c.emit(Event{Kind: EventError, Key: key, Err: err})
			}
		}()

		v, err := compute(detached)
		if err != nil {
			c.emit(Event{Kind: EventError, Key: key, Err: err})
			return nil, err
		}
		c.store(key, v, ttl, &gen)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// peek is Has plus the value: no statistics, no recency update.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	v, ok, ev := c.lookupLocked(key, c.now(), false)
	c.mu.Unlock()
	if ev != nil {
		c.emit(*ev)
	}
	return v, ok
}

func (c *Cache[V]) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// beginFlight marks key as being computed and returns the generation the
// result must still match to be stored.
func (c *Cache[V]) beginFlight(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key]++
	return c.generation
}

func (c *Cache[V]) endFlight(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key] <= 1 {
		delete(c.pending, key)
		return
	}
	c.pending[key]--
}
