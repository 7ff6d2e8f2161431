package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "engine")).Info(context.Background(), "packet delivered",
		SimTime(5.1),
		Int("size", 1040),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "packet delivered" {
		t.Fatalf("msg = %v, want packet delivered", rec["msg"])
	}
	if rec["component"] != "engine" {
		t.Fatalf("component = %v, want engine", rec["component"])
	}
	if rec["sim_time"] != 5.1 {
		t.Fatalf("sim_time = %v, want 5.1", rec["sim_time"])
	}
	if rec["size"] != float64(1040) {
		t.Fatalf("size = %v, want 1040", rec["size"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line emitted at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestRunIDHelpers(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRunID returned empty id")
	}
	if got := RunIDFromContext(ctx); got != id {
		t.Fatalf("RunIDFromContext = %q, want %q", got, id)
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("EnsureRunID should reuse existing id, got %q", id2)
	}

	var buf bytes.Buffer
	_, log := WithRunLogger(ContextWithRunID(context.Background(), "abc"), New(Config{Format: "json", Output: &buf}))
	log.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), `"run_id":"abc"`) {
		t.Fatalf("run logger output missing run_id: %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on empty context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected noop logger to be stored")
	}
}
