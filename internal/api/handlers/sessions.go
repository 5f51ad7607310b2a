package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/sessionstore"
)

// SessionAdmin is the part of the session store the admin endpoints use.
type SessionAdmin interface {
	Get(ctx context.Context, sid string) (*sessionstore.Session, error)
	Length(ctx context.Context) (int64, error)
	Destroy(ctx context.Context, sid string) error
	Clear(ctx context.Context) error
}

// SessionsHandler reports and revokes login sessions.
type SessionsHandler struct {
	store SessionAdmin
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store SessionAdmin) *SessionsHandler {
	return &SessionsHandler{store: store}
}

// Count returns the number of unexpired sessions.
// GET /api/admin/sessions
func (h *SessionsHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Length(r.Context())
	if err != nil {
		h.fail(w, r, "count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"active": n})
}

// GetSession returns one unexpired session.
// GET /api/admin/sessions/{sid}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), mux.Vars(r)["sid"])
	if errors.Is(err, sessionstore.ErrNotFound) {
		apierr.WriteErrorWithContext(w, r, apierr.SessionNotFound())
		return
	}
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Revoke destroys one session.
// DELETE /api/admin/sessions/{sid}
func (h *SessionsHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(mux.Vars(r)["sid"])
	if sid == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("sid"))
		return
	}
	if err := h.store.Destroy(r.Context(), sid); err != nil {
		h.fail(w, r, "destroy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAll destroys every session.
// DELETE /api/admin/sessions
func (h *SessionsHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.fail(w, r, "clear", err)
		return
	}
	logger.InfoContext(r.Context(), "All sessions revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger.ErrorContext(r.Context(), "Session store failed", "op", op, "error", err)
	apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(""))
}
