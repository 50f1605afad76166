// ABOUTME: Tests for the leveled logger constructor.
// ABOUTME: Covers level filtering, component tagging, and level-name validation.
package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
)

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	level.Info(logger).Log("msg", "hidden")
	level.Warn(logger).Log("msg", "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected warn line in output, got %q", out)
	}
	if !strings.Contains(out, "level=warn") {
		t.Errorf("expected level key in output, got %q", out)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "bogus")

	level.Debug(logger).Log("msg", "debug-line")
	level.Info(logger).Log("msg", "info-line")

	out := buf.String()
	if strings.Contains(out, "debug-line") {
		t.Errorf("debug should be filtered by default, got %q", out)
	}
	if !strings.Contains(out, "info-line") {
		t.Errorf("expected info line, got %q", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "debug"), "web")
	level.Info(logger).Log("msg", "hello")

	if !strings.Contains(buf.String(), "component=web") {
		t.Errorf("expected component key, got %q", buf.String())
	}
}

func TestValidLevel(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"debug", true},
		{"INFO", true},
		{" warning ", true},
		{"error", true},
		{"", true},
		{"trace", false},
	}
	for _, tt := range tests {
		if got := ValidLevel(tt.name); got != tt.want {
			t.Errorf("ValidLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
