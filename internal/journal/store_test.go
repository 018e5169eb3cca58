package journal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imagefeeder/internal/journal"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/testsupport"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "state", "sessions.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id, base string) journal.Record {
	return journal.Record{
		ID:         id,
		Root:       filepath.Join(base, "run"),
		StagingDir: filepath.Join(base, "IN-PROGRESS", "run"),
		SuccessDir: filepath.Join(base, "DONE", "run"),
		FailureDir: filepath.Join(base, "FAILED", "run"),
		State:      "watching",
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	rec := sampleRecord("s1", t.TempDir())

	if err := store.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if err := store.SetState(ctx, "s1", "draining"); err != nil {
		t.Fatalf("SetState returned error: %v", err)
	}
	if err := store.SetOutcome(ctx, "s1", journal.OutcomeFailed, "mismatched", "", ""); err != nil {
		t.Fatalf("SetOutcome returned error: %v", err)
	}

	unfinished, err := store.Unfinished(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unfinished) != 1 || unfinished[0].State != "draining" || unfinished[0].Outcome != journal.OutcomeFailed {
		t.Fatalf("unexpected unfinished rows: %+v", unfinished)
	}

	if err := store.Complete(ctx, "s1", "finished", rec.FailureDir, 4, 1); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil || got == nil {
		t.Fatalf("Get returned %v %v", got, err)
	}
	if !got.Completed() || got.Forwarded != 4 || got.Dropped != 1 || got.TerminalDir != rec.FailureDir {
		t.Fatalf("unexpected completed record: %+v", got)
	}
	if unfinished, _ := store.Unfinished(ctx); len(unfinished) != 0 {
		t.Fatalf("expected no unfinished sessions, got %d", len(unfinished))
	}
}

func TestStoreUpdateUnknownSession(t *testing.T) {
	store := openStore(t)
	err := store.SetState(context.Background(), "missing", "watching")
	if !errors.Is(err, journal.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestStoreRecentOrdersNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := t.TempDir()
	start := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		rec := sampleRecord(id, base)
		rec.StartedAt = start.Add(time.Duration(i) * time.Minute)
		if err := store.Begin(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Fatalf("unexpected recent order: %+v", recent)
	}
}

func TestStoreReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Begin(context.Background(), sampleRecord("keep", t.TempDir())); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Get(context.Background(), "keep")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted row, got %v %v", rec, err)
	}
}

func TestRecoverRelocatesInterruptedSessions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := t.TempDir()

	committed := sampleRecord("committed", filepath.Join(base, "one"))
	testsupport.WriteFile(t, filepath.Join(committed.StagingDir, "shot_0.png"), "0")
	interrupted := sampleRecord("interrupted", filepath.Join(base, "two"))
	testsupport.WriteFile(t, filepath.Join(interrupted.StagingDir, "shot_0.png"), "0")
	testsupport.WriteFile(t, filepath.Join(interrupted.FailureDir, "stale_9.png"), "stale")
	gone := sampleRecord("gone", filepath.Join(base, "three"))

	for _, rec := range []journal.Record{committed, interrupted, gone} {
		if err := store.Begin(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetOutcome(ctx, "committed", journal.OutcomeCommitted, "matched", "", ""); err != nil {
		t.Fatal(err)
	}

	result := journal.Recover(ctx, store, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected recovery errors: %v", result.Errors)
	}
	if len(result.Relocated) != 2 || len(result.Skipped) != 1 {
		t.Fatalf("unexpected result relocated=%d skipped=%d", len(result.Relocated), len(result.Skipped))
	}

	testsupport.AssertFileContent(t, filepath.Join(committed.SuccessDir, "shot_0.png"), "0")
	testsupport.AssertFileContent(t, filepath.Join(interrupted.FailureDir, "shot_0.png"), "0")
	if _, err := os.Stat(filepath.Join(interrupted.FailureDir, "stale_9.png")); !os.IsNotExist(err) {
		t.Fatalf("expected stale failure content removed, err=%v", err)
	}

	rec, _ := store.Get(ctx, "interrupted")
	if rec == nil || !rec.Recovered || rec.Outcome != journal.OutcomeAborted || !rec.Completed() {
		t.Fatalf("unexpected recovered record: %+v", rec)
	}
	if unfinished, _ := store.Unfinished(ctx); len(unfinished) != 0 {
		t.Fatalf("expected all sessions completed, got %d", len(unfinished))
	}
}
