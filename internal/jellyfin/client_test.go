package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/circuitbreaker"
	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/httpx"
)

type fakeJellyfin struct {
	mu    sync.Mutex
	hits  map[string]int
	users []User
	fail  map[string]int // path -> status to return
	delay time.Duration
}

func newFakeJellyfin() *fakeJellyfin {
	return &fakeJellyfin{
		hits: make(map[string]int),
		users: []User{
			{ID: "u1", Name: "alice", Policy: UserPolicy{IsAdministrator: true}},
			{ID: "u2", Name: "bob"},
		},
		fail: make(map[string]int),
	}
}

func (f *fakeJellyfin) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeJellyfin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Emby-Token") != "token-123" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	f.hits[r.Method+" "+r.URL.Path]++
	status := f.fail[r.URL.Path]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/System/Info":
		json.NewEncoder(w).Encode(SystemInfo{ID: "srv", ServerName: "media", Version: "10.9.0"})
	case r.Method == http.MethodGet && r.URL.Path == "/Users":
		f.mu.Lock()
		json.NewEncoder(w).Encode(f.users)
		f.mu.Unlock()
	case r.Method == http.MethodGet && r.URL.Path == "/Users/u1":
		json.NewEncoder(w).Encode(f.users[0])
	case r.Method == http.MethodPost && r.URL.Path == "/Users/New":
		var body struct{ Name, Password string }
		json.NewDecoder(r.Body).Decode(&body)
		u := User{ID: "u3", Name: body.Name}
		f.mu.Lock()
		f.users = append(f.users, u)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(u)
	case r.Method == http.MethodDelete && r.URL.Path == "/Users/u2":
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/Sessions":
		json.NewEncoder(w).Encode([]Session{{ID: "s1", UserName: "alice", Client: "Web", NowPlayingItem: &NowPlaying{Name: "Film"}}})
	case r.Method == http.MethodGet && r.URL.Path == "/Library/VirtualFolders":
		json.NewEncoder(w).Encode([]Library{{Name: "Movies", CollectionType: "movies"}})
	case r.Method == http.MethodGet && r.URL.Path == "/Items/Counts":
		json.NewEncoder(w).Encode(ItemCounts{MovieCount: 12, SeriesCount: 3})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeJellyfin) (*Client, *cache.Cache[json.RawMessage]) {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	respCache := cache.New[json.RawMessage](cache.Options{Name: CacheName, DefaultTTL: time.Minute})
	client := New(Options{
		BaseURL:    server.URL + "/",
		APIKey:     "token-123",
		HTTPClient: server.Client(),
		Retry:      httpx.Options{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Cache:      respCache,
		TTL:        time.Minute,
	})
	return client, respCache
}

func TestClientReadsAreCached(t *testing.T) {
	fake := newFakeJellyfin()
	client, respCache := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		users, err := client.Users(ctx)
		if err != nil {
			t.Fatalf("Failed to list users: %v", err)
		}
		if len(users) != 2 || users[0].Name != "alice" || !users[0].Policy.IsAdministrator {
			t.Fatalf("unexpected users: %+v", users)
		}
	}
	if got := fake.count("GET /Users"); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
	if !respCache.Has(KeyUsers) {
		t.Errorf("expected %q to be cached", KeyUsers)
	}
}

func TestClientEndpoints(t *testing.T) {
	fake := newFakeJellyfin()
	client, respCache := newTestClient(t, fake)
	ctx := context.Background()

	info, err := client.SystemInfo(ctx)
	if err != nil || info.ServerName != "media" {
		t.Fatalf("SystemInfo = %+v, %v", info, err)
	}
	user, err := client.User(ctx, "u1")
	if err != nil || user.Name != "alice" {
		t.Fatalf("User = %+v, %v", user, err)
	}
	sessions, err := client.Sessions(ctx)
	if err != nil || len(sessions) != 1 || sessions[0].NowPlayingItem == nil {
		t.Fatalf("Sessions = %+v, %v", sessions, err)
	}
	libs, err := client.Libraries(ctx)
	if err != nil || len(libs) != 1 || libs[0].Name != "Movies" {
		t.Fatalf("Libraries = %+v, %v", libs, err)
	}
	counts, err := client.ItemCounts(ctx)
	if err != nil || counts.MovieCount != 12 {
		t.Fatalf("ItemCounts = %+v, %v", counts, err)
	}

	for _, key := range []string{KeySystemInfo, UserKey("u1"), KeySessions, KeyLibraries, KeyItemCounts} {
		if !respCache.Has(key) {
			t.Errorf("expected %q to be cached", key)
		}
	}
}

func TestClientWritesInvalidateUsers(t *testing.T) {
	fake := newFakeJellyfin()
	client, respCache := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := client.Users(ctx); err != nil {
		t.Fatalf("Failed to list users: %v", err)
	}
	if _, err := client.User(ctx, "u1"); err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if _, err := client.SystemInfo(ctx); err != nil {
		t.Fatalf("Failed to get system info: %v", err)
	}

	created, err := client.CreateUser(ctx, "carol", "pw")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if created.Name != "carol" {
		t.Errorf("expected created user carol, got %+v", created)
	}
	if respCache.Has(KeyUsers) || respCache.Has(UserKey("u1")) {
		t.Error("expected user keys to be invalidated after create")
	}
	if !respCache.Has(KeySystemInfo) {
		t.Error("expected unrelated keys to survive")
	}

	users, err := client.Users(ctx)
	if err != nil {
		t.Fatalf("Failed to list users: %v", err)
	}
	if len(users) != 3 {
		t.Errorf("expected refreshed list with 3 users, got %d", len(users))
	}

	if err := client.DeleteUser(ctx, "u2"); err != nil {
		t.Fatalf("Failed to delete user: %v", err)
	}
	if respCache.Has(KeyUsers) {
		t.Error("expected user list to be invalidated after delete")
	}
}

func TestClientAPIError(t *testing.T) {
	fake := newFakeJellyfin()
	fake.fail["/Users/missing"] = http.StatusNotFound
	client, respCache := newTestClient(t, fake)

	_, err := client.User(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Path != "/Users/{id}" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if !IsNotFound(err) {
		t.Error("expected IsNotFound to be true")
	}
	if respCache.Has(UserKey("missing")) {
		t.Error("expected failed lookups not to be cached")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	fake := newFakeJellyfin()
	fake.fail["/System/Info"] = http.StatusBadGateway
	client, _ := newTestClient(t, fake)

	_, err := client.SystemInfo(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	if got := fake.count("GET /System/Info"); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClientBreakerOpens(t *testing.T) {
	fake := newFakeJellyfin()
	fake.fail["/System/Info"] = http.StatusInternalServerError
	server := httptest.NewServer(fake)
	defer server.Close()

	client := New(Options{
		BaseURL:    server.URL,
		APIKey:     "token-123",
		HTTPClient: server.Client(),
		Retry:      httpx.Options{MaxAttempts: 1},
		Breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "jellyfin-test",
			FailureThreshold: 2,
			Timeout:          time.Hour,
			IsFailure:        isBreakerFailure,
		}),
	})

	for i := 0; i < 2; i++ {
		client.SystemInfo(context.Background())
	}
	_, err := client.SystemInfo(context.Background())
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if got := fake.count("GET /System/Info"); got != 2 {
		t.Errorf("expected no upstream call while open, got %d calls", got)
	}
}

func TestClientNotFoundDoesNotTripBreaker(t *testing.T) {
	if isBreakerFailure(&APIError{Status: http.StatusNotFound}) {
		t.Error("expected 404 not to count as a failure")
	}
	if !isBreakerFailure(&APIError{Status: http.StatusServiceUnavailable}) {
		t.Error("expected 503 to count as a failure")
	}
	if isBreakerFailure(context.Canceled) {
		t.Error("expected cancellation not to count as a failure")
	}
}

func TestClientSingleFlight(t *testing.T) {
	fake := newFakeJellyfin()
	fake.delay = 50 * time.Millisecond
	client, _ := newTestClient(t, fake)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Libraries(context.Background()); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected all callers to succeed, %d failed", failures.Load())
	}
	if got := fake.count("GET /Library/VirtualFolders"); got != 1 {
		t.Errorf("expected concurrent misses to share one request, got %d", got)
	}
}

func TestClientInvalidate(t *testing.T) {
	fake := newFakeJellyfin()
	client, _ := newTestClient(t, fake)
	ctx := context.Background()
	client.Users(ctx)
	client.Libraries(ctx)

	removed, err := client.Invalidate("users")
	if err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := client.Invalidate("("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestNewFromConfig(t *testing.T) {
	respCache := cache.New[json.RawMessage](cache.Options{Name: CacheName})
	if _, err := NewFromConfig(&config.Config{}, respCache); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	cfg := &config.Config{
		JellyfinURL:      "http://jellyfin:8096/",
		JellyfinAPIKey:   "key",
		HTTPTimeout:      time.Second,
		HTTPMaxRetries:   3,
		JellyfinCacheTTL: time.Minute,
		SessionsCacheTTL: 10 * time.Second,
	}
	client, err := NewFromConfig(cfg, respCache)
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}
	if client.BaseURL() != "http://jellyfin:8096" {
		t.Errorf("expected trailing slash trimmed, got %q", client.BaseURL())
	}
	if client.Cache() != respCache {
		t.Error("expected the supplied cache to be used")
	}
	if client.sessionsTTL != 10*time.Second || client.ttl != time.Minute {
		t.Errorf("unexpected TTLs: ttl=%v sessions=%v", client.ttl, client.sessionsTTL)
	}
}
