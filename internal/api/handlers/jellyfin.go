package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/jellyfin"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/middleware"
)

// JellyfinAPI is the part of the Jellyfin client the handlers use.
type JellyfinAPI interface {
	SystemInfo(ctx context.Context) (jellyfin.SystemInfo, error)
	Users(ctx context.Context) ([]jellyfin.User, error)
	Sessions(ctx context.Context) ([]jellyfin.Session, error)
	Libraries(ctx context.Context) ([]jellyfin.Library, error)
	ItemCounts(ctx context.Context) (jellyfin.ItemCounts, error)
	CreateUser(ctx context.Context, name, password string) (jellyfin.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// JellyfinHandler serves the dashboard and user administration. A nil
// client answers JELLYFIN_NOT_CONFIGURED.
type JellyfinHandler struct {
	client  JellyfinAPI
	timeout time.Duration
}

// NewJellyfinHandler creates a handler; timeout bounds each request.
func NewJellyfinHandler(client JellyfinAPI, timeout time.Duration) *JellyfinHandler {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &JellyfinHandler{client: client, timeout: timeout}
}

// ServerSummary identifies the Jellyfin server.
type ServerSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	OS             string `json:"os,omitempty"`
	PendingRestart bool   `json:"pendingRestart"`
}

// DashboardCounts are the headline numbers of the admin dashboard.
type DashboardCounts struct {
	Users          int `json:"users"`
	Administrators int `json:"administrators"`
	DisabledUsers  int `json:"disabledUsers"`
	ActiveSessions int `json:"activeSessions"`
	NowPlaying     int `json:"nowPlaying"`
	Libraries      int `json:"libraries"`
	Movies         int `json:"movies"`
	Series         int `json:"series"`
	Episodes       int `json:"episodes"`
	Songs          int `json:"songs"`
	Items          int `json:"items"`
}

// DashboardSummary is the body of GET /api/dashboard/summary.
type DashboardSummary struct {
	Server      ServerSummary   `json:"server"`
	Counts      DashboardCounts `json:"counts"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type createUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *JellyfinHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.client == nil {
		apierr.WriteErrorWithContext(w, r, apierr.JellyfinNotConfigured())
		return false
	}
	return true
}

// Summary fetches server info and counts in parallel. Each call is served
// from the client's response cache when fresh.
// GET /api/dashboard/summary
func (h *JellyfinHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		info      jellyfin.SystemInfo
		users     []jellyfin.User
		sessions  []jellyfin.Session
		libraries []jellyfin.Library
		items     jellyfin.ItemCounts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { info, err = h.client.SystemInfo(gctx); return })
	g.Go(func() (err error) { users, err = h.client.Users(gctx); return })
	g.Go(func() (err error) { sessions, err = h.client.Sessions(gctx); return })
	g.Go(func() (err error) { libraries, err = h.client.Libraries(gctx); return })
	g.Go(func() (err error) { items, err = h.client.ItemCounts(gctx); return })
	if err := g.Wait(); err != nil {
		writeJellyfinError(w, r, "dashboard", err)
		return
	}

	out := DashboardSummary{
		Server: ServerSummary{
			ID:             info.ID,
			Name:           info.ServerName,
			Version:        info.Version,
			OS:             info.OperatingSystem,
			PendingRestart: info.HasPendingRestart,
		},
		Counts: DashboardCounts{
			Users:          len(users),
			ActiveSessions: len(sessions),
			Libraries:      len(libraries),
			Movies:         items.MovieCount,
			Series:         items.SeriesCount,
			Episodes:       items.EpisodeCount,
			Songs:          items.SongCount,
			Items:          items.ItemCount,
		},
		GeneratedAt: time.Now().UTC(),
	}
	for _, u := range users {
		if u.Policy.IsAdministrator {
			out.Counts.Administrators++
		}
		if u.Policy.IsDisabled {
			out.Counts.DisabledUsers++
		}
	}
	for _, s := range sessions {
		if s.NowPlayingItem != nil {
			out.Counts.NowPlaying++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListUsers returns every Jellyfin account.
// GET /api/admin/jellyfin/users
func (h *JellyfinHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	users, err := h.client.Users(ctx)
	if err != nil {
		writeJellyfinError(w, r, "list_users", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// ListSessions returns the active client sessions.
// GET /api/admin/jellyfin/sessions
func (h *JellyfinHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessions, err := h.client.Sessions(ctx)
	if err != nil {
		writeJellyfinError(w, r, "list_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// CreateUser adds an account.
// POST /api/admin/jellyfin/users
func (h *JellyfinHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req createUserRequest
	if !middleware.DecodeJSON(w, r, &req) {
		return
	}
	req.Name = middleware.SanitizeString(req.Name, 128)
	if req.Name == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("name"))
		return
	}
	if err := middleware.ValidateUserName(req.Name); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("name", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	user, err := h.client.CreateUser(ctx, req.Name, req.Password)
	if err != nil {
		writeJellyfinError(w, r, "create_user", err)
		return
	}
	logger.InfoContext(r.Context(), "Jellyfin user created", "user_id", user.ID, "name", user.Name)
	writeJSON(w, http.StatusCreated, user)
}

// DeleteUser removes an account.
// DELETE /api/admin/jellyfin/users/{id}
func (h *JellyfinHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.client.DeleteUser(ctx, id); err != nil {
		writeJellyfinError(w, r, "delete_user", err)
		return
	}
	logger.InfoContext(r.Context(), "Jellyfin user deleted", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}
