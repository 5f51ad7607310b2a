package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/circuitbreaker"
	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/httpx"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
	"github.com/lolerskatez/jellysso-sub000/internal/tracing"
)

// CacheName is the registry name of the response cache.
const CacheName = "jellyfin"

// Cache keys.
const (
	KeySystemInfo = "system:info"
	KeyUsers      = "users:all"
	KeySessions   = "sessions:active"
	KeyLibraries  = "libraries:all"
	KeyItemCounts = "items:counts"
)

var usersPattern = regexp.MustCompile(`^users:`)

// ErrNotConfigured is returned by NewFromConfig without a URL and API key.
var ErrNotConfigured = errors.New("jellyfin: url and api key are required")

// APIError is a non-2xx response from Jellyfin.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string // truncated response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jellyfin %s %s returned %d", e.Method, e.Path, e.Status)
}

// Temporary reports whether retrying later could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsNotFound reports whether err is a 404 from Jellyfin.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// HTTPClient defaults to an *http.Client with a 15s timeout.
	HTTPClient *http.Client
	Retry      httpx.Options
	// Cache memoizes read endpoints. Defaults to a private cache named CacheName.
	Cache *cache.Cache[json.RawMessage]
	// TTL applies to cached reads except Sessions. Zero uses the cache default.
	TTL time.Duration
	// SessionsTTL applies to the active sessions listing, which changes quickly.
	SessionsTTL time.Duration
	Breaker     *circuitbreaker.CircuitBreaker
}

// Client talks to one Jellyfin server.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	retry       httpx.Options
	cache       *cache.Cache[json.RawMessage]
	ttl         time.Duration
	sessionsTTL time.Duration
	breaker     *circuitbreaker.CircuitBreaker
}

// New builds a client from opts.
func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:      strings.TrimSpace(opts.APIKey),
		http:        opts.HTTPClient,
		retry:       opts.Retry,
		cache:       opts.Cache,
		ttl:         opts.TTL,
		sessionsTTL: opts.SessionsTTL,
		breaker:     opts.Breaker,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.cache == nil {
		c.cache = cache.New[json.RawMessage](cache.Options{Name: CacheName})
	}
	if c.ttl == 0 {
		c.ttl = cache.DefaultTTL
	}
	if c.sessionsTTL == 0 {
		c.sessionsTTL = c.ttl
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:      CacheName,
			IsFailure: isBreakerFailure,
		})
	}
	return c
}

// NewFromConfig builds a client with the JELLYFIN_*, HTTP_* and cache
// settings. respCache is registered by the caller.
func NewFromConfig(cfg *config.Config, respCache *cache.Cache[json.RawMessage]) (*Client, error) {
	if !cfg.JellyfinConfigured() {
		return nil, ErrNotConfigured
	}
	return New(Options{
		BaseURL:     cfg.JellyfinURL,
		APIKey:      cfg.JellyfinAPIKey,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		Retry:       httpx.OptionsFromConfig(cfg),
		Cache:       respCache,
		TTL:         cfg.JellyfinCacheTTL,
		SessionsTTL: cfg.SessionsCacheTTL,
		Breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             CacheName,
			FailureThreshold: cfg.BreakerFailureThreshold,
			Timeout:          cfg.BreakerTimeout,
			IsFailure:        isBreakerFailure,
		}),
	}), nil
}

// isBreakerFailure ignores client errors: a 404 for a deleted user says
// nothing about the server's health.
func isBreakerFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// Cache returns the response cache.
func (c *Client) Cache() *cache.Cache[json.RawMessage] { return c.cache }

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SystemInfo returns /System/Info.
func (c *Client) SystemInfo(ctx context.Context) (SystemInfo, error) {
	return cachedGet[SystemInfo](ctx, c, KeySystemInfo, "/System/Info", "/System/Info", c.ttl)
}

// Users lists every account.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	return cachedGet[[]User](ctx, c, KeyUsers, "/Users", "/Users", c.ttl)
}

// User returns one account.
func (c *Client) User(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, errors.New("jellyfin: empty user id")
	}
	return cachedGet[User](ctx, c, UserKey(id), "/Users/{id}", "/Users/"+url.PathEscape(id), c.ttl)
}

// Sessions lists active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	return cachedGet[[]Session](ctx, c, KeySessions, "/Sessions", "/Sessions?activeWithinSeconds=960", c.sessionsTTL)
}

// Libraries lists the virtual folders.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	return cachedGet[[]Library](ctx, c, KeyLibraries, "/Library/VirtualFolders", "/Library/VirtualFolders", c.ttl)
}

// ItemCounts returns the library item totals.
func (c *Client) ItemCounts(ctx context.Context) (ItemCounts, error) {
	return cachedGet[ItemCounts](ctx, c, KeyItemCounts, "/Items/Counts", "/Items/Counts", c.ttl)
}

// CreateUser creates an account and drops every cached user entry.
func (c *Client) CreateUser(ctx context.Context, name, password string) (User, error) {
	if strings.TrimSpace(name) == "" {
		return User{}, errors.New("jellyfin: empty user name")
	}
	body := map[string]string{"Name": name, "Password": password}
	var created User
	if err := c.do(ctx, http.MethodPost, "/Users/New", "/Users/New", body, &created); err != nil {
		return User{}, err
	}
	c.cache.InvalidatePattern(usersPattern)
	return created, nil
}

// DeleteUser removes an account and drops every cached user entry.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("jellyfin: empty user id")
	}
	if err := c.do(ctx, http.MethodDelete, "/Users/{id}", "/Users/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.cache.InvalidatePattern(usersPattern)
	return nil
}

// Invalidate removes cached responses whose key matches pattern.
func (c *Client) Invalidate(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return c.cache.InvalidatePattern(re), nil
}

// UserKey is the cache key of a single user.
func UserKey(id string) string { return "users:" + id }

func cachedGet[T any](ctx context.Context, c *Client, key, route, path string, ttl time.Duration) (T, error) {
	var out T
	raw, err := c.cache.GetOrSetContext(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, route, path, nil, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}, ttl)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode jellyfin %s: %w", route, err)
	}
	return out, nil
}

// do sends one request through the breaker and the retry loop and decodes
// the JSON response into out when it is non-nil.
func (c *Client) do(ctx context.Context, method, route, path string, in, out any) error {
	ctx, span := tracing.StartSpan(ctx, "jellyfin "+method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
	defer span.End()

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode jellyfin %s: %w", route, err)
		}
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("build jellyfin request: %w", err)
		}
		req.Header.Set("X-Emby-Token", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	start := time.Now()
	err := c.breaker.CallContext(ctx, func(ctx context.Context) error {
		resp, err := httpx.Do(ctx, c.http, build, c.retry)
		if err != nil {
			return fmt.Errorf("jellyfin %s %s: %w", method, route, err)
		}
		defer resp.Body.Close()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		if resp.StatusCode >= http.StatusMultipleChoices {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &APIError{Method: method, Path: route, Status: resp.StatusCode, Body: string(snippet)}
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode jellyfin %s: %w", route, err)
		}
		return nil
	})
	metrics.JellyfinRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	tracing.RecordError(span, err)
	return err
}
