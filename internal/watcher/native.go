package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"imagefeeder/internal/logging"
)

// nativeLoop reacts to fsnotify events. Newly created directories are added to
// the watch set and walked, since files may land in them before the watch is
// registered. Files are reported after SettleDelay without further writes.
type nativeLoop struct {
	w       *Watcher
	quit    <-chan struct{}
	fsw     *fsnotify.Watcher
	pending map[string]time.Time
	dirs    map[string]bool
	// initial holds pre-existing directories reported once the loop runs.
	initial []string
}

func newNativeLoop(w *Watcher, quit <-chan struct{}) (*nativeLoop, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &nativeLoop{
		w:       w,
		quit:    quit,
		fsw:     fsw,
		pending: make(map[string]time.Time),
		dirs:    make(map[string]bool),
	}
	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	n.dirs[w.root] = true
	n.registerExisting(w.root)
	return n, nil
}

// registerExisting watches every directory below dir. With IncludeExisting the
// directories are remembered for reporting and their files queued.
func (n *nativeLoop) registerExisting(dir string) {
	include := n.w.opts.IncludeExisting
	now := time.Now()
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if d.IsDir() {
			if addErr := n.fsw.Add(path); addErr != nil {
				return filepath.SkipDir
			}
			n.dirs[path] = true
			if include {
				n.initial = append(n.initial, path)
			}
			return nil
		}
		if include && d.Type().IsRegular() {
			n.pending[path] = now
		}
		return nil
	})
}

func (n *nativeLoop) run(ctx context.Context) {
	defer n.fsw.Close()

	tick := n.w.opts.SettleDelay / 2
	if tick < minSettleTick {
		tick = minSettleTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for _, dir := range n.initial {
		n.w.emit(Event{Path: dir, IsDir: true})
	}
	n.initial = nil

	for {
		select {
		case <-n.quit:
			return
		case <-ctx.Done():
			return
		case event, ok := <-n.fsw.Events:
			if !ok {
				return
			}
			n.handle(event)
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(n.w.logger, "file notification error", "watcher_native_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some events may have been missed"),
			)
		case <-ticker.C:
			n.flushSettled(time.Now())
		}
	}
}

func (n *nativeLoop) handle(event fsnotify.Event) {
	path := event.Name
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			n.addDir(path)
			return
		}
		if info.Mode().IsRegular() {
			n.pending[path] = time.Now()
		}
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		if _, ok := n.pending[path]; ok {
			n.pending[path] = time.Now()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(n.pending, path)
		delete(n.dirs, path)
	}
}

func (n *nativeLoop) addDir(path string) {
	if n.dirs[path] {
		return
	}
	if err := n.fsw.Add(path); err != nil {
		if !isNotExist(err) {
			logging.WarnWithContext(n.w.logger, "failed to watch directory", "watcher_add_failed",
				logging.Path(path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "files created in this directory may be missed"),
			)
		}
		return
	}
	n.dirs[path] = true
	n.w.emit(Event{Path: path, IsDir: true})
	n.walk(path)
}

// walk registers and reports subdirectories of a newly created dir and queues
// the files that landed in it before its watch was registered.
func (n *nativeLoop) walk(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			n.addDir(path)
		case entry.Type().IsRegular():
			if _, ok := n.pending[path]; !ok {
				n.pending[path] = now
			}
		}
	}
}

func (n *nativeLoop) flushSettled(now time.Time) {
	var ready []string
	for path, last := range n.pending {
		if now.Sub(last) >= n.w.opts.SettleDelay {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	for _, path := range ready {
		delete(n.pending, path)
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		n.w.emit(Event{Path: path})
	}
}
