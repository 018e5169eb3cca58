package services_test

import (
	"context"
	"testing"

	"imagefeeder/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "abc")
	ctx = services.WithRoot(ctx, "/shots/run_linux_chrome_x")
	ctx = services.WithPhase(ctx, "watching")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "abc" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if root, ok := services.RootFromContext(ctx); !ok || root != "/shots/run_linux_chrome_x" {
		t.Fatalf("unexpected root: %v %v", root, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "watching" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session id value")
	}
}
