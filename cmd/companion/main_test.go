package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lolerskatez/jellysso-sub000/internal/api"
	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/scheduler"
)

const testToken = "cli-token"

func setupCLIServer(t *testing.T) (string, *cache.Cache[string]) {
	t.Helper()
	reg := cache.NewRegistry()
	users := cache.New[string](cache.Options{Name: "jellyfin"})
	if err := reg.Register(users); err != nil {
		t.Fatalf("register cache: %v", err)
	}
	jobs := scheduler.NewService(0)
	if err := jobs.Register(scheduler.CacheSweepJob(reg, "@every 5m")); err != nil {
		t.Fatalf("register job: %v", err)
	}

	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Config:   &config.Config{AdminAPIToken: testToken},
		Registry: reg,
		Jobs:     jobs,
	}))
	t.Cleanup(srv.Close)
	return srv.URL, users
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, out)
	}
}

func TestCachesCommand(t *testing.T) {
	addr, users := setupCLIServer(t)
	users.Set("users:all", "[]")
	users.Get("users:all")

	out, err := runCLI(t, "caches", "--addr", addr, "--token", testToken)
	if err != nil {
		t.Fatalf("caches: %v", err)
	}
	requireContains(t, out, "jellyfin")
	requireContains(t, out, "Hit rate")
	requireContains(t, out, "100.00%")

	out, err = runCLI(t, "caches", "--json", "--addr", addr, "--token", testToken)
	if err != nil {
		t.Fatalf("caches --json: %v", err)
	}
	requireContains(t, out, `"name": "jellyfin"`)
}

func TestInvalidateAndClearCommands(t *testing.T) {
	addr, users := setupCLIServer(t)
	users.Set("users:1", "a")
	users.Set("users:2", "b")
	users.Set("system:info", "c")

	out, err := runCLI(t, "invalidate", "jellyfin", "^users:", "--addr", addr, "--token", testToken)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	requireContains(t, out, "Removed 2 keys from jellyfin")
	if users.Len() != 1 {
		t.Errorf("expected 1 key left, got %d", users.Len())
	}

	if _, err := runCLI(t, "clear", "jellyfin", "--addr", addr, "--token", testToken); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if users.Len() != 0 {
		t.Errorf("expected empty cache, got %d keys", users.Len())
	}
}

func TestCommandErrors(t *testing.T) {
	addr, _ := setupCLIServer(t)

	_, err := runCLI(t, "caches", "--addr", addr, "--token", "wrong")
	if err == nil || !strings.Contains(err.Error(), "AUTH_INVALID") {
		t.Errorf("expected AUTH_INVALID, got %v", err)
	}

	_, err = runCLI(t, "invalidate", "nope", "x", "--addr", addr, "--token", testToken)
	if err == nil || !strings.Contains(err.Error(), "CACHE_NOT_FOUND") {
		t.Errorf("expected CACHE_NOT_FOUND, got %v", err)
	}

	_, err = runCLI(t, "invalidate", "jellyfin", "([", "--addr", addr, "--token", testToken)
	if err == nil || !strings.Contains(err.Error(), "VALIDATION_INVALID_VALUE") {
		t.Errorf("expected VALIDATION_INVALID_VALUE, got %v", err)
	}
}

func TestJobsCommand(t *testing.T) {
	addr, _ := setupCLIServer(t)

	out, err := runCLI(t, "jobs", "run", "cache-sweep", "--addr", addr, "--token", testToken)
	if err != nil {
		t.Fatalf("jobs run: %v", err)
	}
	requireContains(t, out, "Job cache-sweep finished")

	out, err = runCLI(t, "jobs", "--addr", addr, "--token", testToken)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "cache-sweep")
	requireContains(t, out, "@every 5m")
}
