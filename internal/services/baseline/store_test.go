package baseline_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"imagefeeder/internal/services/baseline"
	"imagefeeder/internal/sink"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func image(marker string) []byte {
	return append(append([]byte(nil), pngHeader...), marker...)
}

func runSession(t *testing.T, store *baseline.Store, info sink.SessionInfo, artifacts map[string][]byte, order []string) sink.Verdict {
	t.Helper()
	ctx := context.Background()
	h, err := store.OpenSession(ctx, info)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	for _, tag := range order {
		if err := store.Submit(ctx, h, artifacts[tag], tag); err != nil {
			t.Fatalf("Submit %s: %v", tag, err)
		}
	}
	verdict, err := store.CloseSession(ctx, h)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	return verdict
}

func TestStoreRecordsThenMatches(t *testing.T) {
	store := baseline.New(t.TempDir())
	info := sink.SessionInfo{AppName: "app", TestName: "/data/run", HostOS: "linux", HostApp: "firefox"}
	artifacts := map[string][]byte{"shot_0.png": image("a"), "shot_1.png": image("b")}
	order := []string{"shot_0.png", "shot_1.png"}

	if v := runSession(t, store, info, artifacts, order); v != sink.NewBaseline {
		t.Fatalf("first session: expected new baseline, got %s", v)
	}
	if _, err := os.Stat(store.ManifestPath(info)); err != nil {
		t.Fatalf("expected manifest on disk: %v", err)
	}
	if v := runSession(t, store, info, artifacts, order); v != sink.Matched {
		t.Fatalf("second session: expected match, got %s", v)
	}

	artifacts["shot_1.png"] = image("changed")
	if v := runSession(t, store, info, artifacts, order); v != sink.Mismatched {
		t.Fatalf("changed session: expected mismatch, got %s", v)
	}
	if v := runSession(t, store, info, artifacts, order[:1]); v != sink.Mismatched {
		t.Fatalf("shorter session: expected mismatch, got %s", v)
	}
}

func TestStoreSeparatesHostEnvironments(t *testing.T) {
	store := baseline.New(t.TempDir())
	artifacts := map[string][]byte{"shot_0.png": image("a")}
	linux := sink.SessionInfo{AppName: "app", TestName: "t", HostOS: "linux"}
	mac := sink.SessionInfo{AppName: "app", TestName: "t", HostOS: "macos"}

	if v := runSession(t, store, linux, artifacts, []string{"shot_0.png"}); v != sink.NewBaseline {
		t.Fatalf("expected new baseline for linux, got %s", v)
	}
	if v := runSession(t, store, mac, artifacts, []string{"shot_0.png"}); v != sink.NewBaseline {
		t.Fatalf("expected new baseline for macos, got %s", v)
	}
}

func TestStoreRejectsNonImages(t *testing.T) {
	store := baseline.New(t.TempDir())
	h, err := store.OpenSession(context.Background(), sink.SessionInfo{AppName: "app"})
	if err != nil {
		t.Fatal(err)
	}
	err = store.Submit(context.Background(), h, []byte("plain text notes"), "notes_1.txt")
	if !errors.Is(err, sink.ErrUnrecognizedArtifact) {
		t.Fatalf("expected ErrUnrecognizedArtifact, got %v", err)
	}
}

func TestStoreAbortDiscardsSession(t *testing.T) {
	store := baseline.New(t.TempDir())
	ctx := context.Background()
	info := sink.SessionInfo{AppName: "app", TestName: "t"}
	h, _ := store.OpenSession(ctx, info)
	if err := store.Submit(ctx, h, image("a"), "a_0.png"); err != nil {
		t.Fatal(err)
	}
	if err := store.AbortSession(ctx, h); err != nil {
		t.Fatalf("AbortSession: %v", err)
	}
	if _, err := store.CloseSession(ctx, h); err == nil {
		t.Fatal("expected close of aborted session to fail")
	}
	if _, err := os.Stat(store.ManifestPath(info)); !os.IsNotExist(err) {
		t.Fatalf("aborted session must not record a baseline, err=%v", err)
	}
}

func TestStoreCheck(t *testing.T) {
	store := baseline.New(t.TempDir() + "/nested/baselines")
	if err := store.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
