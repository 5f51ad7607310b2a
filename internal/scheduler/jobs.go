package scheduler

import (
	"context"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

// Names of the built-in maintenance jobs.
const (
	JobCacheSweep   = "cache-sweep"
	JobSessionPrune = "session-prune"
	JobCacheStats   = "cache-stats"
)

// Pruner removes expired records and reports how many were deleted.
type Pruner interface {
	Prune(ctx context.Context) (int64, error)
}

// CacheSweepJob removes expired entries from every registered cache.
// Reads already drop expired entries lazily; the sweep bounds memory held by
// keys nobody reads again.
func CacheSweepJob(reg *cache.Registry, schedule string) Job {
	return Job{
		Name:     JobCacheSweep,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			removed := reg.SweepAll()
			metrics.CacheSweepRemoved.Add(float64(removed))
			if removed > 0 {
				logger.InfoContext(ctx, "Swept expired cache entries", "removed", removed)
			}
			return nil
		},
	}
}

// SessionPruneJob deletes expired login sessions.
func SessionPruneJob(p Pruner, schedule string) Job {
	return Job{
		Name:     JobSessionPrune,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			removed, err := p.Prune(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.InfoContext(ctx, "Pruned expired sessions", "removed", removed)
			}
			return nil
		},
	}
}

// CacheStatsJob logs a statistics line per registered cache.
func CacheStatsJob(reg *cache.Registry, schedule string) Job {
	return Job{
		Name:     JobCacheStats,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			log := logger.WithComponent("cache")
			for _, name := range reg.Names() {
				c, ok := reg.Get(name)
				if !ok {
					continue
				}
				st := c.Stats()
				log.InfoContext(ctx, "Cache statistics",
					"cache", name,
					"size", st.Size,
					"max_size", st.MaxSize,
					"hits", st.Hits,
					"misses", st.Misses,
					"hit_rate", st.HitRate,
					"evictions", st.Evictions)
			}
			return nil
		},
	}
}
