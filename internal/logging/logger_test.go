package logging

import (
	"testing"

	"github.com/courtdraft/courtdraft/internal/config"
)

func TestNewValidatesLevelAndFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "info", Format: "json"}); err != nil {
		t.Fatalf("expected valid config to succeed: %v", err)
	}
	if _, err := New(config.LoggingConfig{}); err != nil {
		t.Fatalf("expected zero config to use defaults: %v", err)
	}
	if _, err := New(config.LoggingConfig{Level: "verbose"}); err == nil {
		t.Fatalf("expected unsupported level to fail")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected unsupported format to fail")
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "NOT SET"},
		{"short", "configured"},
		{"sk-proj-abcdefgh1234", "sk-proj...1234"},
	}
	for _, tc := range tests {
		if got := MaskCredential(tc.key); got != tc.want {
			t.Fatalf("MaskCredential(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
