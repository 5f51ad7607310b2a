package secrets

import (
	"strings"
	"testing"
)

func TestMask(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{name: "empty string", secret: "", expected: ""},
		{name: "short secret", secret: "abc", expected: "***"},
		{name: "exact 8 chars", secret: "12345678", expected: "***"},
		{name: "jellyfin api key", secret: "0123456789abcdef0123456789abcdef", expected: "0123..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Mask(tt.secret)
			if result != tt.expected {
				t.Errorf("Mask(%q) = %q, want %q", tt.secret, result, tt.expected)
			}
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		expected string
	}{
		{name: "empty", dsn: "", expected: ""},
		{name: "sqlite path", dsn: "companion.db", expected: "companion.db"},
		{name: "postgres without password", dsn: "postgres://admin@db:5432/companion", expected: "postgres://admin@db:5432/companion"},
		{name: "postgres with password", dsn: "postgres://admin:hunter2@db:5432/companion", expected: "postgres://admin:***@db:5432/companion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskDSN(tt.dsn); got != tt.expected {
				t.Errorf("MaskDSN(%q) = %q, want %q", tt.dsn, got, tt.expected)
			}
		})
	}
}

func TestMaskDSNQueryPasswords(t *testing.T) {
	got := MaskDSN("postgres://db/companion?password=hunter2&sslmode=disable")
	if strings.Contains(got, "hunter2") {
		t.Errorf("expected password query value to be masked, got %q", got)
	}

	got = MaskDSN("file:companion.db?_auth_pass=hunter2")
	if strings.Contains(got, "hunter2") {
		t.Errorf("expected sqlite auth password to be masked, got %q", got)
	}
}
