package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
	"github.com/lolerskatez/jellysso-sub000/internal/circuitbreaker"
	"github.com/lolerskatez/jellysso-sub000/internal/errorreporting"
	"github.com/lolerskatez/jellysso-sub000/internal/jellyfin"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJellyfinError maps client failures onto API errors. Unexpected
// failures are logged and reported.
func writeJellyfinError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var apiErr *jellyfin.APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusNotFound:
			apierr.WriteErrorWithContext(w, r, apierr.ResourceNotFound("jellyfin resource"))
			return
		case http.StatusConflict:
			apierr.WriteErrorWithContext(w, r, apierr.ResourceConflict(""))
			return
		}
		logger.WarnContext(r.Context(), "Jellyfin returned an error", "op", op, "status", apiErr.Status, "path", apiErr.Path)
		apierr.WriteErrorWithContext(w, r, apierr.JellyfinUpstream(apiErr.Status, apiErr.Path))
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		apierr.WriteErrorWithContext(w, r, apierr.JellyfinUnavailable("Jellyfin is failing; requests are paused"))
	case errors.Is(err, context.DeadlineExceeded):
		apierr.WriteErrorWithContext(w, r, apierr.SystemTimeout("Jellyfin did not answer in time"))
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		logger.ErrorContext(r.Context(), "Jellyfin request failed", "op", op, "error", err)
		errorreporting.CaptureErrorWithContext(err, map[string]string{"component": "jellyfin", "op": op}, nil)
		apierr.WriteErrorWithContext(w, r, apierr.JellyfinUnavailable(""))
	}
}
