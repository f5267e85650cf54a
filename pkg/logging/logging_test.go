package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWritesAboveMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.Debug("should not appear")
	l.Info("should appear", "key", "value")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("debug line leaked below min level: %q", out)
	}
	if !strings.Contains(out, "should appear") || !strings.Contains(out, "key=value") {
		t.Fatalf("info line missing expected content: %q", out)
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := NopLogger()
	l.Info("anything") // must not panic
}

func TestWithAppendsKeyvals(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug).With("component", "storage")
	l.Info("opened", "path", "/tmp/x.db")

	out := buf.String()
	if !strings.Contains(out, "component=storage") || !strings.Contains(out, "path=/tmp/x.db") {
		t.Fatalf("missing keyvals in output: %q", out)
	}
}

func TestLevelStringNames(t *testing.T) {
	cases := map[Level]string{LevelDebug: "DEBUG", LevelInfo: "INFO", LevelWarn: "WARN", LevelError: "ERROR"}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}
