package id

import (
	"context"
	"strings"
	"testing"
)

func TestGeneratorPrefixes(t *testing.T) {
	t.Cleanup(func() { SetStrategy(StrategyKSUID) })

	for _, strategy := range []Strategy{StrategyKSUID, StrategyUUIDv7} {
		SetStrategy(strategy)
		if got := NewSessionID(); !strings.HasPrefix(got, "session-") {
			t.Errorf("strategy %d: session id %q missing prefix", strategy, got)
		}
		if got := NewTurnID(); !strings.HasPrefix(got, "turn-") {
			t.Errorf("strategy %d: turn id %q missing prefix", strategy, got)
		}
		if NewRequestID() == NewRequestID() {
			t.Errorf("strategy %d: request ids must be unique", strategy)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "s1")
	ctx = WithUserID(ctx, "u1")
	ctx = WithRequestID(ctx, "r1")

	if got := SessionIDFromContext(ctx); got != "s1" {
		t.Fatalf("session: got %q", got)
	}
	if got := UserIDFromContext(ctx); got != "u1" {
		t.Fatalf("user: got %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "r1" {
		t.Fatalf("request: got %q", got)
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context: got %q", got)
	}
}

func TestWithEmptyValuesAreNoOps(t *testing.T) {
	ctx := context.Background()
	if got := WithSessionID(ctx, ""); got != ctx {
		t.Fatal("empty session id should not allocate a new context")
	}
}
