package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"imagefeeder/internal/testsupport"
	"imagefeeder/internal/watcher"
)

type collector struct {
	mu     sync.Mutex
	events []watcher.Event
}

func (c *collector) handle(ev watcher.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if !ev.IsDir {
			out = append(out, ev.Path)
		}
	}
	return out
}

func (c *collector) dirs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		if ev.IsDir {
			out = append(out, ev.Path)
		}
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func options(mode string, includeExisting bool) watcher.Options {
	return watcher.Options{
		Mode:            mode,
		PollInterval:    10 * time.Millisecond,
		SettleDelay:     20 * time.Millisecond,
		IncludeExisting: includeExisting,
	}
}

func TestWatcherReportsNewFilesAndDirs(t *testing.T) {
	for _, mode := range []string{watcher.ModePoll, watcher.ModeNative} {
		t.Run(mode, func(t *testing.T) {
			root := t.TempDir()
			existing := testsupport.WriteFile(t, filepath.Join(root, "old_0.png"), "old")

			c := &collector{}
			w := watcher.New(root, options(mode, false), c.handle)
			if err := w.Start(context.Background()); err != nil {
				t.Fatalf("Start returned error: %v", err)
			}
			defer w.Stop()

			nested := filepath.Join(root, "nested")
			if err := os.MkdirAll(nested, 0o755); err != nil {
				t.Fatal(err)
			}
			created := testsupport.WriteFile(t, filepath.Join(nested, "shot_1.png"), "new")

			testsupport.Eventually(t, 3*time.Second, func() bool {
				return slices.Contains(c.files(), created)
			}, "expected event for %s, got %v", created, c.files())

			if slices.Contains(c.files(), existing) {
				t.Fatalf("pre-existing file must not be reported without IncludeExisting")
			}
			if !slices.Contains(c.dirs(), nested) {
				t.Fatalf("expected directory event for %s, got %v", nested, c.dirs())
			}
		})
	}
}

func TestWatcherIncludeExisting(t *testing.T) {
	for _, mode := range []string{watcher.ModePoll, watcher.ModeNative} {
		t.Run(mode, func(t *testing.T) {
			root := t.TempDir()
			existing := testsupport.WriteFile(t, filepath.Join(root, "sub", "old_0.png"), "old")

			c := &collector{}
			w := watcher.New(root, options(mode, true), c.handle)
			if err := w.Start(context.Background()); err != nil {
				t.Fatalf("Start returned error: %v", err)
			}
			defer w.Stop()

			testsupport.Eventually(t, 3*time.Second, func() bool {
				return slices.Contains(c.files(), existing)
			}, "expected pre-existing file to be reported, got %v", c.files())
		})
	}
}

func TestWatcherReportsFileOnce(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	w := watcher.New(root, options(watcher.ModePoll, false), c.handle)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := testsupport.WriteFile(t, filepath.Join(root, "a_1.png"), "a")
	testsupport.Eventually(t, 3*time.Second, func() bool { return len(c.files()) == 1 }, "expected one event")
	time.Sleep(50 * time.Millisecond)
	if got := c.files(); len(got) != 1 || got[0] != path {
		t.Fatalf("expected a single event for %s, got %v", path, got)
	}
}

func TestWatcherDirsOnly(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	opts := options(watcher.ModePoll, false)
	opts.DirsOnly = true
	w := watcher.New(root, opts, c.handle)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	testsupport.WriteFile(t, filepath.Join(root, "run_1", "x_0.png"), "x")
	testsupport.Eventually(t, 3*time.Second, func() bool { return len(c.dirs()) == 1 }, "expected directory event")
	time.Sleep(50 * time.Millisecond)
	if files := c.files(); len(files) != 0 {
		t.Fatalf("expected no file events, got %v", files)
	}
}

func TestWatcherStopJoins(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	w := watcher.New(root, options(watcher.ModePoll, false), c.handle)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()

	before := c.count()
	testsupport.WriteFile(t, filepath.Join(root, "after_1.png"), "late")
	time.Sleep(60 * time.Millisecond)
	if c.count() != before {
		t.Fatalf("handler called after Stop returned")
	}
}

func TestWatcherStartRejectsMissingRoot(t *testing.T) {
	w := watcher.New(filepath.Join(t.TempDir(), "absent"), options(watcher.ModePoll, false), func(watcher.Event) {})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestSourceObserve(t *testing.T) {
	root := t.TempDir()
	c := &collector{}
	src := watcher.Source{Options: options(watcher.ModeNative, false)}
	obs, err := src.Observe(context.Background(), root, c.handle)
	if err != nil {
		t.Fatalf("Observe returned error: %v", err)
	}
	path := testsupport.WriteFile(t, filepath.Join(root, "s_3.png"), "s")
	testsupport.Eventually(t, 3*time.Second, func() bool {
		return slices.Contains(c.files(), path)
	}, "expected event from observed source")
	obs.Stop()
}
