package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestOrNopHandlesNilInterface(t *testing.T) {
	if got := OrNop(nil); got == nil {
		t.Fatal("expected non-nil logger")
	}
	var typed *componentLogger
	if got := OrNop(typed); got == nil {
		t.Fatal("expected non-nil logger for nil pointer")
	}
	OrNop(nil).Info("must not panic")
}

func TestComponentLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultWriter(&buf)
	SetDefaultLevel(LevelWarn)
	t.Cleanup(func() {
		SetDefaultWriter(nil)
		SetDefaultLevel(LevelInfo)
	})

	logger := NewComponentLogger("test")
	logger.Info("hidden %d", 1)
	logger.Warn("visible %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible 2") || !strings.Contains(out, "[test]") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultWriter(&buf)
	SetDefaultLevel(LevelDebug)
	t.Cleanup(func() {
		SetDefaultLevel(LevelInfo)
	})

	inner := Multi(NewComponentLogger("a"), nil)
	outer := Multi(inner, NewComponentLogger("b"))
	outer.Debug("fanout")

	out := buf.String()
	if strings.Count(out, "fanout") != 2 {
		t.Fatalf("expected two fanout lines, got %q", out)
	}
}
