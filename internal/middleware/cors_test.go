package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lolerskatez/jellysso-sub000/internal/config"
)

func corsRequest(cfg *CORSConfig, method, origin string, headers map[string]string) *httptest.ResponseRecorder {
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/caches", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact", []string{"http://localhost:3000", "https://example.com"}, "http://localhost:3000", true},
		{"disallowed", []string{"http://localhost:3000"}, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://any-domain.com", true},
		{"subdomain", []string{"*.example.com"}, "https://app.example.com", true},
		{"bare domain without subdomain", []string{"*.example.com"}, "http://notexample.com", false},
		{"suffix trick", []string{"*.example.com"}, "http://example.com.evil.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := corsRequest(&CORSConfig{AllowedOrigins: tt.allowed}, http.MethodGet, tt.origin, nil)
			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.want && got != tt.origin {
				t.Errorf("Expected origin %s to be allowed, got %q", tt.origin, got)
			}
			if !tt.want && got != "" {
				t.Errorf("Expected origin %s to be denied, got %q", tt.origin, got)
			}
			if rr.Header().Get("Vary") != "Origin" {
				t.Errorf("Expected Vary: Origin, got %q", rr.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_PreflightRequest(t *testing.T) {
	cfg := &CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}

	rr := corsRequest(cfg, http.MethodOptions, "http://localhost:3000", map[string]string{
		"Access-Control-Request-Method": "DELETE",
	})

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE" {
		t.Errorf("Expected Access-Control-Allow-Methods: GET, POST, DELETE, got %s", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Errorf("Expected Access-Control-Allow-Headers: Content-Type, Authorization, got %s", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Expected Access-Control-Max-Age: 600, got %s", got)
	}
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	rr := corsRequest(&CORSConfig{AllowedOrigins: []string{"*"}}, http.MethodOptions, "http://a.com", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected OPTIONS without preflight headers to reach the handler, got %d", rr.Code)
	}
}

func TestCORS_Credentials(t *testing.T) {
	cfg := &CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, AllowCredentials: true}
	rr := corsRequest(cfg, http.MethodGet, "http://localhost:3000", nil)
	if creds := rr.Header().Get("Access-Control-Allow-Credentials"); creds != "true" {
		t.Errorf("Expected Access-Control-Allow-Credentials: true, got %s", creds)
	}
}

func TestCORS_DefaultConfig(t *testing.T) {
	rr := corsRequest(nil, http.MethodGet, "http://localhost:5173", nil)
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:5173" {
		t.Errorf("Default config should allow localhost:5173, got %s", origin)
	}
	if exposed := rr.Header().Get("Access-Control-Expose-Headers"); exposed != "X-Request-ID, ETag, X-Cache" {
		t.Errorf("Unexpected exposed headers: %s", exposed)
	}
}

func TestCORSConfigFromConfig(t *testing.T) {
	c := CORSConfigFromConfig(&config.Config{CORSAllowedOrigins: []string{"https://admin.example.com"}})
	if len(c.AllowedOrigins) != 1 || c.AllowedOrigins[0] != "https://admin.example.com" {
		t.Errorf("Expected configured origins, got %v", c.AllowedOrigins)
	}
	if c := CORSConfigFromConfig(&config.Config{}); len(c.AllowedOrigins) != 2 {
		t.Errorf("Expected default origins when unset, got %v", c.AllowedOrigins)
	}
}
