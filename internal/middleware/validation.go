package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lolerskatez/jellysso-sub000/internal/apierr"
)

// MaxRequestBodySize caps admin request bodies (1MB).
const MaxRequestBodySize = 1 << 20

var (
	cacheNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
	userNameBanned   = `<>"/\`
)

// ValidateRequestBody limits the body size of requests that carry one.
func ValidateRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// DecodeJSON decodes a JSON request body into dst, rejecting unknown fields
// and trailing data. On failure it writes the error response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("Content-Type must be application/json"))
		return false
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("Request body too large"))
		case errors.Is(err, io.EOF):
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("Request body is empty"))
		default:
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		}
		return false
	}
	if dec.More() {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return false
	}
	return true
}

// SanitizeString trims whitespace, drops invalid UTF-8 and limits length in runes.
func SanitizeString(input string, maxLength int) string {
	input = strings.ToValidUTF8(strings.TrimSpace(input), "")
	if utf8.RuneCountInString(input) > maxLength {
		input = string([]rune(input)[:maxLength])
	}
	return input
}

// ValidateCacheName checks a registry cache name taken from a URL.
func ValidateCacheName(name string) error {
	if !cacheNamePattern.MatchString(name) {
		return fmt.Errorf("cache name must be 1-64 letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidateUserName checks a Jellyfin account name.
func ValidateUserName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("user name cannot be empty")
	}
	if utf8.RuneCountInString(name) > 64 {
		return fmt.Errorf("user name too long (max 64 characters)")
	}
	if strings.ContainsAny(name, userNameBanned) {
		return fmt.Errorf("user name contains invalid characters")
	}
	for _, c := range name {
		if c < 0x20 {
			return fmt.Errorf("user name contains control characters")
		}
	}
	return nil
}
