package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lolerskatez/jellysso-sub000/internal/api/handlers"
	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/middleware"
)

// Deps holds everything the router serves. Nil fields disable the routes
// that need them, except Jellyfin, whose routes answer
// JELLYFIN_NOT_CONFIGURED when it is nil.
type Deps struct {
	Config        *config.Config
	Registry      *cache.Registry
	Jellyfin      handlers.JellyfinAPI
	Sessions      handlers.SessionAdmin
	Jobs          handlers.JobRunner
	Events        *handlers.EventHub
	ResponseStore cache.ByteStore
	RateLimiter   *middleware.RateLimiter
	ReadyChecks   map[string]handlers.Check
}

// NewRouter builds the HTTP handler with the full middleware chain.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	reg := d.Registry
	if reg == nil {
		reg = cache.NewRegistry()
	}

	r := mux.NewRouter()
	r.Use(middleware.Instrument)

	// Health and metrics
	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	r.Handle("/health/ready", handlers.Ready(d.ReadyChecks, 5*time.Second)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Dashboard
	jf := handlers.NewJellyfinHandler(d.Jellyfin, cfg.HTTPTimeout)
	var summary http.Handler = http.HandlerFunc(jf.Summary)
	if d.ResponseStore != nil {
		summary = middleware.ResponseCache(d.ResponseStore, cfg.ResponseCacheTTL)(summary)
	}
	r.Handle("/api/dashboard/summary", middleware.ETag(summary)).Methods(http.MethodGet)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.AdminOnly(cfg.AdminAPIToken))

	// Caches
	ca := handlers.NewCacheAdminHandler(reg)
	admin.HandleFunc("/caches", ca.ListCaches).Methods(http.MethodGet)
	admin.HandleFunc("/caches/{name}/stats", ca.GetCacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/caches/{name}/reset-stats", ca.ResetStats).Methods(http.MethodPost)
	admin.HandleFunc("/caches/{name}/clear", ca.ClearCache).Methods(http.MethodPost)
	admin.HandleFunc("/caches/{name}/invalidate", ca.InvalidatePattern).Methods(http.MethodPost)
	admin.HandleFunc("/caches/{name}/sweep", ca.SweepCache).Methods(http.MethodPost)
	admin.HandleFunc("/caches/{name}/keys", ca.ListKeys).Methods(http.MethodGet)
	admin.HandleFunc("/caches/{name}/keys/{key:.+}", ca.GetKey).Methods(http.MethodGet)
	admin.HandleFunc("/caches/{name}/keys/{key:.+}", ca.DeleteKey).Methods(http.MethodDelete)
	if d.Events != nil {
		admin.HandleFunc("/caches/events", d.Events.HandleWebSocket).Methods(http.MethodGet)
	}

	// Jellyfin
	admin.HandleFunc("/jellyfin/users", jf.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/jellyfin/users", jf.CreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/jellyfin/users/{id}", jf.DeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/jellyfin/sessions", jf.ListSessions).Methods(http.MethodGet)

	// Maintenance jobs
	if d.Jobs != nil {
		jobs := handlers.NewJobsHandler(d.Jobs)
		admin.HandleFunc("/jobs", jobs.ListJobs).Methods(http.MethodGet)
		admin.HandleFunc("/jobs/{name}/run", jobs.RunJob).Methods(http.MethodPost)
	}

	// Login sessions
	if d.Sessions != nil {
		sessions := handlers.NewSessionsHandler(d.Sessions)
		admin.HandleFunc("/sessions", sessions.Count).Methods(http.MethodGet)
		admin.HandleFunc("/sessions", sessions.RevokeAll).Methods(http.MethodDelete)
		admin.HandleFunc("/sessions/{sid}", sessions.GetSession).Methods(http.MethodGet)
		admin.HandleFunc("/sessions/{sid}", sessions.Revoke).Methods(http.MethodDelete)
	}

	// Wrapped inside out. RequestID ends up outermost so every log line and
	// error body, including recovered panics, carries the ID.
	var h http.Handler = r
	h = middleware.ValidateRequestBody(h)
	h = middleware.Compress(h)
	if d.RateLimiter != nil {
		h = d.RateLimiter.Limit(h)
	}
	h = middleware.CORS(middleware.CORSConfigFromConfig(cfg))(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RecoverWithSentry(h)
	h = middleware.RequestID(h)
	return h
}
