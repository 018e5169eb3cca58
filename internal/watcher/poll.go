package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"imagefeeder/internal/logging"
)

type fileState struct {
	size  int64
	mtime time.Time
}

// pollLoop diffs directory snapshots. A file is reported after two consecutive
// scans observe the same size and modification time.
type pollLoop struct {
	w        *Watcher
	quit     <-chan struct{}
	reported map[string]bool
	pending  map[string]fileState
	rootGone bool
}

func newPollLoop(w *Watcher, quit <-chan struct{}) *pollLoop {
	p := &pollLoop{
		w:        w,
		quit:     quit,
		reported: make(map[string]bool),
		pending:  make(map[string]fileState),
	}
	if !w.opts.IncludeExisting {
		for path := range p.snapshot() {
			p.reported[path] = true
		}
	}
	return p
}

func (p *pollLoop) run(ctx context.Context) {
	ticker := time.NewTicker(p.w.opts.PollInterval)
	defer ticker.Stop()

	p.scan()
	for {
		select {
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan()
		}
	}
}

type entry struct {
	isDir bool
	state fileState
}

func (p *pollLoop) snapshot() map[string]entry {
	out := make(map[string]entry)
	root := p.w.root
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// entry vanished mid-walk
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			out[path] = entry{isDir: true}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = entry{state: fileState{size: info.Size(), mtime: info.ModTime()}}
		return nil
	})
	if err != nil {
		if !p.rootGone {
			logging.WarnWithContext(p.w.logger, "watch root unreadable", "watcher_root_unreadable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "no new files are detected until the root is readable again"),
			)
		}
		p.rootGone = true
		return out
	}
	p.rootGone = false
	return out
}

func (p *pollLoop) scan() {
	current := p.snapshot()

	for path := range p.reported {
		if _, ok := current[path]; !ok {
			delete(p.reported, path)
		}
	}
	for path := range p.pending {
		if _, ok := current[path]; !ok {
			delete(p.pending, path)
		}
	}

	paths := make([]string, 0, len(current))
	for path := range current {
		if !p.reported[path] {
			paths = append(paths, path)
		}
	}
	// parents before children, lexical within a level
	sort.Strings(paths)

	for _, path := range paths {
		select {
		case <-p.quit:
			return
		default:
		}
		e := current[path]
		if e.isDir {
			p.reported[path] = true
			p.w.emit(Event{Path: path, IsDir: true})
			continue
		}
		prev, seen := p.pending[path]
		if !seen || prev != e.state {
			p.pending[path] = e.state
			continue
		}
		delete(p.pending, path)
		p.reported[path] = true
		p.w.emit(Event{Path: path})
	}
}
