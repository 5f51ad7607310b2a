package handlers

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/middleware"
)

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	registry *cache.Registry
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(reg *cache.Registry) *CacheAdminHandler {
	return &CacheAdminHandler{registry: reg}
}

// CacheSummary describes one registered cache.
type CacheSummary struct {
	Name         string      `json:"name"`
	Stats        cache.Stats `json:"stats"`
	Capabilities []string    `json:"capabilities"`
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

func capabilities(c cache.Admin) []string {
	caps := []string{"stats", "clear"}
	if _, ok := c.(cache.KeyAdmin); ok {
		caps = append(caps, "keys", "invalidate", "sweep")
	}
	if _, ok := c.(cache.Inspector); ok {
		caps = append(caps, "inspect")
	}
	if _, ok := c.(cache.Observable); ok {
		caps = append(caps, "events")
	}
	return caps
}

// lookup resolves {name} or writes the error and returns nil.
func (h *CacheAdminHandler) lookup(w http.ResponseWriter, r *http.Request) cache.Admin {
	name := mux.Vars(r)["name"]
	if err := middleware.ValidateCacheName(name); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("name", err.Error()))
		return nil
	}
	c, ok := h.registry.Get(name)
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.CacheNotFound(name))
		return nil
	}
	return c
}

func (h *CacheAdminHandler) keyAdmin(w http.ResponseWriter, r *http.Request, op string) cache.KeyAdmin {
	c := h.lookup(w, r)
	if c == nil {
		return nil
	}
	ka, ok := c.(cache.KeyAdmin)
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.CacheUnsupported(c.Name(), op))
		return nil
	}
	return ka
}

// ListCaches returns every registered cache with its statistics.
// GET /api/admin/caches
func (h *CacheAdminHandler) ListCaches(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	out := make([]CacheSummary, 0, len(names))
	for _, name := range names {
		c, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, CacheSummary{Name: name, Stats: c.Stats(), Capabilities: capabilities(c)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": out})
}

// GetCacheStats returns current cache statistics.
// GET /api/admin/caches/{name}/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if c := h.lookup(w, r); c != nil {
		writeJSON(w, http.StatusOK, c.Stats())
	}
}

// ResetStats zeroes the hit/miss counters.
// POST /api/admin/caches/{name}/reset-stats
func (h *CacheAdminHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	c := h.lookup(w, r)
	if c == nil {
		return
	}
	c.ResetStats()
	logger.InfoContext(r.Context(), "Cache stats reset", "cache", c.Name())
	writeJSON(w, http.StatusOK, c.Stats())
}

// ClearCache removes every entry.
// POST /api/admin/caches/{name}/clear
func (h *CacheAdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	c := h.lookup(w, r)
	if c == nil {
		return
	}
	c.Clear()
	logger.InfoContext(r.Context(), "Cache cleared", "cache", c.Name())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Cache cleared"})
}

// InvalidatePattern removes keys matching a regular expression.
// POST /api/admin/caches/{name}/invalidate
func (h *CacheAdminHandler) InvalidatePattern(w http.ResponseWriter, r *http.Request) {
	ka := h.keyAdmin(w, r, "invalidate")
	if ka == nil {
		return
	}
	var req invalidateRequest
	if !middleware.DecodeJSON(w, r, &req) {
		return
	}
	if req.Pattern == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("pattern"))
		return
	}
	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("pattern", "Invalid regular expression: "+err.Error()))
		return
	}
	removed := ka.InvalidatePattern(re)
	logger.InfoContext(r.Context(), "Cache keys invalidated", "cache", ka.Name(), "pattern", req.Pattern, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// SweepCache drops expired entries now instead of waiting for them to be read.
// POST /api/admin/caches/{name}/sweep
func (h *CacheAdminHandler) SweepCache(w http.ResponseWriter, r *http.Request) {
	if ka := h.keyAdmin(w, r, "sweep"); ka != nil {
		writeJSON(w, http.StatusOK, map[string]int{"removed": ka.Sweep()})
	}
}

// ListKeys returns the live keys of a cache.
// GET /api/admin/caches/{name}/keys
func (h *CacheAdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	if ka := h.keyAdmin(w, r, "keys"); ka != nil {
		keys := ka.Keys()
		writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
	}
}

// GetKey returns the bookkeeping of one entry.
// GET /api/admin/caches/{name}/keys/{key}
func (h *CacheAdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	c := h.lookup(w, r)
	if c == nil {
		return
	}
	insp, ok := c.(cache.Inspector)
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.CacheUnsupported(c.Name(), "inspect"))
		return
	}
	key := mux.Vars(r)["key"]
	info, ok := insp.Inspect(key)
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.CacheKeyNotFound(c.Name(), key))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// DeleteKey removes one entry.
// DELETE /api/admin/caches/{name}/keys/{key}
func (h *CacheAdminHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	ka := h.keyAdmin(w, r, "delete")
	if ka == nil {
		return
	}
	key := mux.Vars(r)["key"]
	if !ka.Delete(key) {
		apierr.WriteErrorWithContext(w, r, apierr.CacheKeyNotFound(ka.Name(), key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "key": key})
}
