package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		name  string
		level Level
		ok    bool
	}{
		{"error", LevelError, true},
		{"warn", LevelWarn, true},
		{"info", LevelInfo, true},
		{"debug", LevelDebug, true},
		{"trace", LevelTrace, true},
		{"INFO", LevelInfo, true},
		{"loud", LevelInfo, false},
	}
	for _, tc := range cases {
		level, err := ParseLevel(tc.name)
		if tc.ok && err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseLevel(%q) should have failed", tc.name)
		}
		if level != tc.level {
			t.Errorf("ParseLevel(%q) = %d, want %d", tc.name, level, tc.level)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Errorf("boom")
	logger.Warnf("careful")
	logger.Infof("hello")
	logger.Debugf("details")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Error("error message was filtered")
	}
	if !strings.Contains(out, "careful") {
		t.Error("warn message was filtered")
	}
	if strings.Contains(out, "hello") {
		t.Error("info message should be filtered at warn level")
	}
	if strings.Contains(out, "details") {
		t.Error("debug message should be filtered at warn level")
	}
}

func TestPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelTrace)
	logger.Tracef("deep")

	if !strings.Contains(buf.String(), "[tauri-wd]") {
		t.Errorf("expected [tauri-wd] prefix, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "TRACE deep") {
		t.Errorf("expected tagged message, got %q", buf.String())
	}
}
