package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		check func(t *testing.T, got any)
	}{
		{
			name:  "api key redacted",
			key:   "api_key",
			value: "sk-live-123",
			check: func(t *testing.T, got any) {
				if got != "[REDACTED]" {
					t.Errorf("api_key = %v, want [REDACTED]", got)
				}
			},
		},
		{
			name:  "email redacted",
			key:   "email",
			value: "a@example.com",
			check: func(t *testing.T, got any) {
				if got != "[REDACTED]" {
					t.Errorf("email = %v, want [REDACTED]", got)
				}
			},
		},
		{
			name:  "user id hashed",
			key:   "user_id",
			value: int64(42),
			check: func(t *testing.T, got any) {
				s, ok := got.(string)
				if !ok || !strings.HasPrefix(s, "hash:") {
					t.Errorf("user_id = %v, want hash: prefix", got)
				}
			},
		},
		{
			name:  "plain value untouched",
			key:   "plan_id",
			value: "abc",
			check: func(t *testing.T, got any) {
				if got != "abc" {
					t.Errorf("plan_id = %v, want abc", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sanitizeKVs([]any{tt.key, tt.value})
			if len(out) != 2 {
				t.Fatalf("len = %d, want 2", len(out))
			}
			tt.check(t, out[1])
		})
	}
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	out := sanitizeKVs([]any{"plan_id", "abc", "dangling"})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[2] != "dangling" {
		t.Errorf("trailing key = %v, want dangling", out[2])
	}
}

func TestHashValue_Stable(t *testing.T) {
	a := hashValue(int64(7))
	b := hashValue("7")
	if a != b {
		t.Errorf("hash(7) = %q vs %q, want equal", a, b)
	}
	if hashValue("") != "" {
		t.Error("hash of empty value should be empty")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("ignored", "user_id", 1)
	l.With("k", "v").Error("still ignored")
}
