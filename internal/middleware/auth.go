package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
)

// AdminOnly gates handlers behind a static bearer token. With no token
// configured every request is refused with AUTH_NOT_CONFIGURED.
func AdminOnly(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthNotConfigured())
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthMissing(""))
				return
			}
			scheme, got, ok := strings.Cut(auth, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || got == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid("Expected a Bearer token"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid(""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
