package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := InitWithConfig(LogConfig{Level: level, Format: "json", Output: &buf}); err != nil {
		t.Fatalf("InitWithConfig: %v", err)
	}
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("bad log line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, "WARN")
	ctx := context.Background()

	Debug(ctx, "hidden")
	Info(ctx, "hidden")
	Warn(ctx, "shown", "k", 1)
	ErrorWithErr(ctx, "failed", errors.New("boom"))

	got := lines(t, buf)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(got), buf.String())
	}
	if got[0]["msg"] != "shown" || got[0]["k"] != float64(1) {
		t.Errorf("unexpected warn line: %v", got[0])
	}
	if got[1]["error"] != "boom" {
		t.Errorf("expected error field, got %v", got[1])
	}
}

func TestFallbackAndRegime(t *testing.T) {
	buf := capture(t, "INFO")
	ctx := context.Background()

	Fallback(ctx, "marketdata", "live", "cache", "symbol", "BTC/USDT")
	Regime(ctx, "BTC/USDT", "BULLISH", "LONG", 0.8, 0.42, "run_id", "r1")

	got := lines(t, buf)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0]["type"] != "FALLBACK" || got[0]["from"] != "live" || got[0]["to"] != "cache" {
		t.Errorf("unexpected fallback line: %v", got[0])
	}
	if got[0]["level"] != "WARN" {
		t.Errorf("fallback should log at WARN, got %v", got[0]["level"])
	}
	if got[1]["type"] != "REGIME" || got[1]["recommendation"] != "LONG" || got[1]["run_id"] != "r1" {
		t.Errorf("unexpected regime line: %v", got[1])
	}
}

func TestOperationTimer(t *testing.T) {
	buf := capture(t, "DEBUG")
	op := StartOperation(context.Background(), "pipeline.Run", "symbol", "ETH/USDT")
	if op.GetContext() == nil {
		t.Fatal("operation context is nil")
	}
	op.EndWithError(errors.New("cancelled"))

	got := lines(t, buf)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got))
	}
	if got[0]["msg"] != "Operation started" || got[0]["operation"] != "pipeline.Run" {
		t.Errorf("unexpected start line: %v", got[0])
	}
	last := got[1]
	if last["msg"] != "Operation failed" || last["symbol"] != "ETH/USDT" || last["error"] != "cancelled" {
		t.Errorf("unexpected end line: %v", last)
	}
	if _, ok := last["duration_ms"]; !ok {
		t.Error("missing duration_ms")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "bogus": "INFO"} {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
