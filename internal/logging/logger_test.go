package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"chatty", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel("error")
	if Level() != "error" {
		t.Errorf("Level() = %q, want error", Level())
	}
	SetLevel("debug")
	if Level() != "debug" {
		t.Errorf("Level() = %q, want debug", Level())
	}
}

func TestDumps(t *testing.T) {
	if got := asciiDump([]byte("ab\x00c")); got != "ab.c" {
		t.Errorf("asciiDump() = %q, want ab.c", got)
	}
	if got := hexDump([]byte{0x7b, 0x7d}); got != "7b7d" {
		t.Errorf("hexDump() = %q, want 7b7d", got)
	}
	long := hexDump([]byte(strings.Repeat("x", 300)))
	if !strings.HasSuffix(long, "...") {
		t.Errorf("hexDump() of 300 bytes should be truncated, got %d chars", len(long))
	}
}

func TestGetLoggerDefaultsToNop(t *testing.T) {
	logger = nil
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
}
