package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	logger := New(cfg)

	logger.Info("queue admitted rule", "ruleId", uint64(7), "tasks", 42)

	out := buf.String()
	if !strings.Contains(out, "queue admitted rule") {
		t.Fatalf("log output missing message: %s", out)
	}
	if !strings.Contains(out, "ruleId=7") {
		t.Fatalf("log output missing key=value: %s", out)
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	logger := New(cfg).With("component", "scheduler")

	logger.Warn("queue full, retrying next cycle")

	if !strings.Contains(buf.String(), "component=scheduler") {
		t.Fatalf("expected bound field in output: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	l.Error("also discarded")
}
