package metrics

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
)

// Collector periodically copies cache statistics into Prometheus gauges
// and counts cache events as they happen.
type Collector struct {
	registry *cache.Registry
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(registry *cache.Registry, interval time.Duration) *Collector {
	return &Collector{
		registry: registry,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the metrics collection loop. It blocks until Stop is called
// or ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	unsubscribe := c.registry.Observe(RecordEvent)
	defer unsubscribe()

	// Collect initial metrics
	c.Collect()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stop)
}

// Collect refreshes the cache gauges once.
func (c *Collector) Collect() {
	for name, stats := range c.registry.Snapshot() {
		CacheEntries.WithLabelValues(name).Set(float64(stats.Size))
		CacheMaxEntries.WithLabelValues(name).Set(float64(stats.MaxSize))
		CacheOperations.WithLabelValues(name, "hit").Set(float64(stats.Hits))
		CacheOperations.WithLabelValues(name, "miss").Set(float64(stats.Misses))
		CacheOperations.WithLabelValues(name, "set").Set(float64(stats.Sets))
		CacheOperations.WithLabelValues(name, "delete").Set(float64(stats.Deletes))
		CacheOperations.WithLabelValues(name, "eviction").Set(float64(stats.Evictions))
		CacheBytes.WithLabelValues(name).Set(float64(stats.Bytes))

		ratio, err := ParseHitRate(stats.HitRate)
		if err != nil {
			logger.Warn("Unparseable cache hit rate", "cache", name, "hit_rate", stats.HitRate, "error", err)
			MetricsCollectionErrors.WithLabelValues("cache").Inc()
			CacheHitRatio.WithLabelValues(name).Set(-1) // Signal stale data
			continue
		}
		CacheHitRatio.WithLabelValues(name).Set(ratio)
	}
}

// RecordEvent counts a cache event. It is registered on every cache by Start.
func RecordEvent(ev cache.Event) {
	CacheEvents.WithLabelValues(ev.Cache, string(ev.Kind)).Inc()
}

// ParseHitRate converts a "66.67%" style hit rate into a 0..1 ratio.
func ParseHitRate(rate string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(rate, "%"), 64)
	if err != nil {
		return 0, err
	}
	return v / 100, nil
}
