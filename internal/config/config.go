package config

import (
	"os"
	"strings"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	ListenAddr  string
	DatabaseURL string // postgres:// URL or SQLite path
	// Jellyfin server
	JellyfinURL    string
	JellyfinAPIKey string
	// Outbound HTTP
	HTTPMaxRetries int
	HTTPRetryBase  time.Duration
	HTTPTimeout    time.Duration
	LogHTTPRetries bool
	// Jellyfin circuit breaker
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
	// Cache defaults, applied to every in-memory cache unless overridden
	CacheDefaultTTL  time.Duration // negative disables expiry
	CacheMaxSize     int           // negative disables eviction
	CacheEnableStats bool
	// Per-purpose caches
	JellyfinCacheTTL  time.Duration // Jellyfin API response cache
	SessionsCacheTTL  time.Duration // short-lived active sessions listing
	SessionCacheTTL   time.Duration // session store read-through cache
	SessionTTL        time.Duration // lifetime of a stored login session
	ResponseCacheMB   int64         // byte budget for cached HTTP responses
	ResponseCacheTTL  time.Duration
	ResponseCacheKeys int64
	// Admin API token for gating admin endpoints (Bearer token)
	AdminAPIToken string
	// Browser origins allowed to call the API
	CORSAllowedOrigins []string
	// Rate limiting
	EnableRateLimit      bool
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	// Maintenance schedules
	MaintenanceTick   time.Duration
	CacheSweepEvery   string
	SessionPruneEvery string
	CacheStatsEvery   string
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	LogFormat         string  // text or json
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		ListenAddr:     utils.GetEnvAsString("LISTEN_ADDR", ":8080"),
		DatabaseURL:    utils.GetEnvAsString("DATABASE_URL", "companion.db"),
		JellyfinURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("JELLYFIN_URL")), "/"),
		JellyfinAPIKey: strings.TrimSpace(os.Getenv("JELLYFIN_API_KEY")),

		HTTPMaxRetries: utils.GetEnvAsInt("HTTP_MAX_RETRIES", 3),
		HTTPRetryBase:  utils.GetEnvAsMillis("HTTP_RETRY_BASE_MS", 300*time.Millisecond),
		HTTPTimeout:    utils.GetEnvAsMillis("HTTP_TIMEOUT_MS", 15*time.Second),
		LogHTTPRetries: utils.GetEnvAsBool("LOG_HTTP_RETRIES", false),

		BreakerFailureThreshold: utils.GetEnvAsInt("JELLYFIN_BREAKER_FAILURES", 5),
		BreakerTimeout:          utils.GetEnvAsMillis("JELLYFIN_BREAKER_TIMEOUT_MS", 30*time.Second),

		// Defaults follow the cache's own: 5 minutes, 1000 entries, stats on.
		CacheDefaultTTL:  utils.GetEnvAsMillis("CACHE_DEFAULT_TTL_MS", 5*time.Minute),
		CacheMaxSize:     utils.GetEnvAsInt("CACHE_MAX_SIZE", 1000),
		CacheEnableStats: utils.GetEnvAsBool("CACHE_ENABLE_STATS", true),

		JellyfinCacheTTL:  utils.GetEnvAsMillis("JELLYFIN_CACHE_TTL_MS", 5*time.Minute),
		SessionsCacheTTL:  utils.GetEnvAsMillis("JELLYFIN_SESSIONS_CACHE_TTL_MS", 10*time.Second),
		SessionCacheTTL:   utils.GetEnvAsMillis("SESSION_CACHE_TTL_MS", time.Minute),
		SessionTTL:        utils.GetEnvAsMillis("SESSION_TTL_MS", 24*time.Hour),
		ResponseCacheMB:   utils.GetEnvAsInt64("RESPONSE_CACHE_MB", 16),
		ResponseCacheTTL:  utils.GetEnvAsMillis("RESPONSE_CACHE_TTL_MS", 30*time.Second),
		ResponseCacheKeys: utils.GetEnvAsInt64("RESPONSE_CACHE_KEYS", 1000),

		AdminAPIToken:      strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN")),
		CORSAllowedOrigins: utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}, ","),

		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),

		MaintenanceTick:   utils.GetEnvAsMillis("MAINTENANCE_TICK_MS", time.Minute),
		CacheSweepEvery:   utils.GetEnvAsString("MAINTENANCE_CACHE_SWEEP", "@every 5m"),
		SessionPruneEvery: utils.GetEnvAsString("MAINTENANCE_SESSION_PRUNE", "@hourly"),
		CacheStatsEvery:   utils.GetEnvAsString("MAINTENANCE_CACHE_STATS", "@every 15m"),

		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      utils.GetEnvAsString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// JellyfinConfigured reports whether the Jellyfin URL and API key are set.
func (c *Config) JellyfinConfigured() bool {
	return c.JellyfinURL != "" && c.JellyfinAPIKey != ""
}
