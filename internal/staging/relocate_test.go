package staging_test

import (
	"os"
	"path/filepath"
	"testing"

	"imagefeeder/internal/logging"
	"imagefeeder/internal/staging"
	"imagefeeder/internal/testsupport"
)

func TestPrepareEmptyReplacesStrayFile(t *testing.T) {
	dir := t.TempDir()
	path := testsupport.WriteFile(t, filepath.Join(dir, "IN-PROGRESS"), "not a dir")

	if err := staging.PrepareEmpty(path); err != nil {
		t.Fatalf("PrepareEmpty returned error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s, err=%v", path, err)
	}
}

func TestPrepareEmptyClearsTree(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "stage", "a", "b.png"), "b")

	if err := staging.PrepareEmpty(filepath.Join(dir, "stage")); err != nil {
		t.Fatalf("PrepareEmpty returned error: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "stage"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, got %d entries", len(entries))
	}
}

func TestRelocateEmptiesTerminalFirst(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "IN-PROGRESS", "run")
	terminal := filepath.Join(dir, "FAILED", "run")
	testsupport.WriteFile(t, filepath.Join(stage, "shot_0.png"), "0")
	testsupport.WriteFile(t, filepath.Join(stage, "sub", "shot_1.png"), "1")
	testsupport.WriteFile(t, filepath.Join(terminal, "old_7.png"), "stale")

	if err := staging.Relocate(stage, terminal, logging.NewNop()); err != nil {
		t.Fatalf("Relocate returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(terminal, "old_7.png")); !os.IsNotExist(err) {
		t.Fatalf("expected stale terminal content removed, err=%v", err)
	}
	testsupport.AssertFileContent(t, filepath.Join(terminal, "shot_0.png"), "0")
	testsupport.AssertFileContent(t, filepath.Join(terminal, "sub", "shot_1.png"), "1")
	if _, err := os.Stat(stage); !os.IsNotExist(err) {
		t.Fatalf("expected staging directory removed, err=%v", err)
	}
}

func TestRelocateMissingStagingLeavesEmptyTerminal(t *testing.T) {
	dir := t.TempDir()
	terminal := filepath.Join(dir, "DONE", "run")
	testsupport.WriteFile(t, filepath.Join(terminal, "x.png"), "x")

	if err := staging.Relocate(filepath.Join(dir, "IN-PROGRESS", "run"), terminal, nil); err != nil {
		t.Fatalf("Relocate returned error: %v", err)
	}
	entries, err := os.ReadDir(terminal)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty terminal directory, got %d entries", len(entries))
	}
}

func TestCleanDebrisRemovesOnlyFiles(t *testing.T) {
	dir := t.TempDir()
	debris := testsupport.WriteFile(t, filepath.Join(dir, "leftover.png"), "x")
	kept := testsupport.WriteFile(t, filepath.Join(dir, "other-session", "a.png"), "a")

	removed, err := staging.CleanDebris(dir, logging.NewNop())
	if err != nil {
		t.Fatalf("CleanDebris returned error: %v", err)
	}
	if len(removed) != 1 || removed[0] != debris {
		t.Fatalf("unexpected removed list %v", removed)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("expected nested session file to remain: %v", err)
	}
}

func TestCleanDebrisMissingDir(t *testing.T) {
	removed, err := staging.CleanDebris(filepath.Join(t.TempDir(), "absent"), nil)
	if err != nil || len(removed) != 0 {
		t.Fatalf("expected no-op, got %v %v", removed, err)
	}
}
