package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lolerskatez/jellysso-sub000/internal/logger"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	RequestID(handler).ServeHTTP(w, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("expected a uuid request ID in context, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected response header %q to match context %q", w.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestIDMiddleware_ExistingID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"proxy id", "existing-request-id", true},
		{"with spaces", "bad id", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"control chars", "id\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = logger.RequestID(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(RequestIDHeader, tt.incoming)
			w := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(w, req)

			if (seen == tt.incoming) != tt.keep {
				t.Errorf("incoming %q kept=%v, want kept=%v (got %q)", tt.incoming, seen == tt.incoming, tt.keep, seen)
			}
		})
	}
}
