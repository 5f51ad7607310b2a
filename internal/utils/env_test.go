package utils

import (
	"testing"
	"time"
)

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := GetEnvAsBool("TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("GetEnvAsBool(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestGetEnvAsNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_FLOAT", "1.5")
	t.Setenv("TEST_INT64", "1099511627776")

	if got := GetEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvAsInt = %d, want 42", got)
	}
	if got := GetEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvAsInt with bad value = %d, want default 7", got)
	}
	if got := GetEnvAsFloat("TEST_FLOAT", 0); got != 1.5 {
		t.Errorf("GetEnvAsFloat = %v, want 1.5", got)
	}
	if got := GetEnvAsInt64("TEST_INT64", 0); got != 1<<40 {
		t.Errorf("GetEnvAsInt64 = %d, want %d", got, int64(1)<<40)
	}
}

func TestGetEnvAsMillis(t *testing.T) {
	t.Setenv("TEST_MS", "250")
	t.Setenv("TEST_NEG_MS", "-1")

	if got := GetEnvAsMillis("TEST_MS", time.Second); got != 250*time.Millisecond {
		t.Errorf("GetEnvAsMillis = %v, want 250ms", got)
	}
	if got := GetEnvAsMillis("TEST_NEG_MS", time.Second); got != -time.Millisecond {
		t.Errorf("GetEnvAsMillis negative = %v, want -1ms", got)
	}
	if got := GetEnvAsMillis("TEST_UNSET_MS", time.Second); got != time.Second {
		t.Errorf("GetEnvAsMillis unset = %v, want default", got)
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	got := GetEnvAsSlice("TEST_SLICE", nil, ",")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("GetEnvAsSlice = %v, want [a b c]", got)
	}

	def := []string{"x"}
	t.Setenv("TEST_EMPTY_SLICE", " , ")
	if got := GetEnvAsSlice("TEST_EMPTY_SLICE", def, ","); len(got) != 1 || got[0] != "x" {
		t.Errorf("GetEnvAsSlice with only separators = %v, want default", got)
	}
}
