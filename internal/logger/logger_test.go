package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetColored(false)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetColored(true)
		SetGlobalLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	log := New("test")

	SetGlobalLevel(LevelWarn)
	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn")
	log.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level lines leaked:\n%s", out)
	}
	if !strings.Contains(out, "visible warn") || !strings.Contains(out, "visible error") {
		t.Errorf("expected warn and error lines:\n%s", out)
	}
}

func TestLineFormat(t *testing.T) {
	buf := capture(t)
	SetGlobalLevel(LevelInfo)
	New("sandbox").Info("spawned pid %d", 42)

	out := buf.String()
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "[sandbox]") {
		t.Errorf("missing level or component: %q", out)
	}
	if !strings.Contains(out, "spawned pid 42") {
		t.Errorf("format args not applied: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
