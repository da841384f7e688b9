package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", nil},
		{"x-api-key=abc", map[string]string{"x-api-key": "abc"}},
		{" a = 1 , b=2,broken,=x", map[string]string{"a": "1", "b": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := parseHeaders(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseHeaders(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		env  string
		want float64
	}{
		{"", 0.1},
		{"0.5", 0.5},
		{"7", 1},
		{"-1", 0},
		{"nope", 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("OTEL_SAMPLER_RATIO", tt.env)
			if got := sampleRatio(); got != tt.want {
				t.Errorf("sampleRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	if enabled() {
		t.Error("enabled() = true with OTEL_ENABLED unset")
	}
	t.Setenv("OTEL_ENABLED", "true")
	if !enabled() {
		t.Error("enabled() = false with OTEL_ENABLED=true")
	}
}
