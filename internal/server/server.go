// Package server wires the caches, stores, Jellyfin client and background
// loops into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/api"
	"github.com/lolerskatez/jellysso-sub000/internal/api/handlers"
	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/db"
	"github.com/lolerskatez/jellysso-sub000/internal/jellyfin"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
	"github.com/lolerskatez/jellysso-sub000/internal/middleware"
	"github.com/lolerskatez/jellysso-sub000/internal/scheduler"
	"github.com/lolerskatez/jellysso-sub000/internal/secrets"
	"github.com/lolerskatez/jellysso-sub000/internal/sessionstore"
)

// ResponsesCacheName is the registry name of the HTTP response cache.
const ResponsesCacheName = "responses"

const metricsInterval = 15 * time.Second

// Server owns every long-lived component.
type Server struct {
	cfg       *config.Config
	DB        *db.DB
	Registry  *cache.Registry
	Jellyfin  *jellyfin.Client // nil when JELLYFIN_URL or JELLYFIN_API_KEY is unset
	Sessions  *sessionstore.Store
	Scheduler *scheduler.Service
	Events    *handlers.EventHub
	responses *cache.SizedCache
	limiter   *middleware.RateLimiter
	collector *metrics.Collector

	http    *http.Server
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New opens the database and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger.Info("Starting companion",
		"listen", cfg.ListenAddr,
		"database", secrets.MaskDSN(cfg.DatabaseURL),
		"jellyfin_url", cfg.JellyfinURL,
		"jellyfin_api_key", secrets.Mask(cfg.JellyfinAPIKey),
		"admin_token", secrets.Mask(cfg.AdminAPIToken),
		"rate_limit", cfg.EnableRateLimit)

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	s, err := build(cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, conn *db.DB) (*Server, error) {
	s := &Server{cfg: cfg, DB: conn, Registry: cache.NewRegistry()}

	jfCache := cache.New[json.RawMessage](cache.Options{
		Name:         jellyfin.CacheName,
		DefaultTTL:   cfg.JellyfinCacheTTL,
		MaxSize:      cfg.CacheMaxSize,
		DisableStats: !cfg.CacheEnableStats,
	})
	sessionCache := cache.New[*sessionstore.Session](cache.Options{
		Name:         sessionstore.CacheName,
		DefaultTTL:   cfg.SessionCacheTTL,
		MaxSize:      cfg.CacheMaxSize,
		DisableStats: !cfg.CacheEnableStats,
	})
	responses, err := cache.NewSized(ResponsesCacheName, cfg.ResponseCacheMB, cfg.ResponseCacheKeys, cfg.ResponseCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	s.responses = responses
	for _, c := range []cache.Admin{jfCache, sessionCache, responses} {
		if err := s.Registry.Register(c); err != nil {
			return nil, err
		}
	}

	s.Jellyfin, err = jellyfin.NewFromConfig(cfg, jfCache)
	if errors.Is(err, jellyfin.ErrNotConfigured) {
		logger.Warn("Jellyfin is not configured; dashboard and user routes will answer 503")
	} else if err != nil {
		return nil, err
	}

	s.Sessions = sessionstore.New(conn, sessionstore.Options{
		DefaultTTL: cfg.SessionTTL,
		Cache:      sessionCache,
		CacheTTL:   cfg.SessionCacheTTL,
	})

	s.Scheduler = scheduler.NewService(cfg.MaintenanceTick)
	for _, job := range []scheduler.Job{
		scheduler.CacheSweepJob(s.Registry, cfg.CacheSweepEvery),
		scheduler.SessionPruneJob(s.Sessions, cfg.SessionPruneEvery),
		scheduler.CacheStatsJob(s.Registry, cfg.CacheStatsEvery),
	} {
		if err := s.Scheduler.Register(job); err != nil {
			return nil, err
		}
	}

	cors := middleware.CORSConfigFromConfig(cfg)
	s.Events = handlers.NewEventHub(func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || cors.Allows(origin)
	}, s.Registry.Names)
	s.collector = metrics.NewCollector(s.Registry, metricsInterval)
	if cfg.EnableRateLimit {
		s.limiter = middleware.NewRateLimiterFromConfig(cfg)
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(s.deps()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

func (s *Server) deps() api.Deps {
	d := api.Deps{
		Config:        s.cfg,
		Registry:      s.Registry,
		Sessions:      s.Sessions,
		Jobs:          s.Scheduler,
		Events:        s.Events,
		ResponseStore: s.responses,
		RateLimiter:   s.limiter,
		ReadyChecks: map[string]handlers.Check{
			"database": func(ctx context.Context) error { return s.DB.PingContext(ctx) },
		},
	}
	// Assigned only when set so a nil *Client never becomes a non-nil interface.
	if s.Jellyfin != nil {
		d.Jellyfin = s.Jellyfin
		d.ReadyChecks["jellyfin"] = func(ctx context.Context) error {
			_, err := s.Jellyfin.SystemInfo(ctx)
			return err
		}
	}
	return d
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start runs the background loops and serves HTTP until Shutdown. It
// returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	ctx, s.cancel = context.WithCancel(ctx)

	unsubscribe := s.Registry.Observe(s.Events.Publish)
	s.goRun(func() { <-ctx.Done(); unsubscribe() })
	s.goRun(func() { s.Events.Run(ctx) })
	s.goRun(func() { s.collector.Start(ctx) })
	s.goRun(func() { s.Scheduler.Start(ctx) })
	s.mu.Unlock()

	logger.Info("HTTP server listening", "addr", s.cfg.ListenAddr, "caches", s.Registry.Names(), "jellyfin", s.Jellyfin != nil)
	return s.http.ListenAndServe()
}

func (s *Server) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Shutdown drains HTTP requests, stops the background loops and closes the
// database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.Scheduler.Stop()
	s.wg.Wait()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.responses.Close()
	if cerr := s.DB.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
