package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerTags(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)

	log.Info("Running matvec", TagKey, TagRun)
	log.Warn("Results differ", TagKey, TagWarn)

	out := buf.String()
	if !strings.Contains(out, "[      RUN ]") {
		t.Errorf("missing run banner:\n%s", out)
	}
	if !strings.Contains(out, "Running matvec") {
		t.Errorf("missing message:\n%s", out)
	}
	if !strings.Contains(out, "[  WARNING ]") {
		t.Errorf("missing warning banner:\n%s", out)
	}
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered: %q", buf.String())
	}
}

func TestPrettyHandlerAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).With("kernel", "matvec")

	log.Info("done", "time_ms", 1.5)
	out := buf.String()
	if !strings.Contains(out, "kernel=matvec") || !strings.Contains(out, "time_ms=1.5") {
		t.Errorf("missing attributes:\n%s", out)
	}
}
