// Package watcher observes a directory tree and reports newly created entries.
//
// Two implementations share one Watcher type: a polling observer that diffs
// directory snapshots at a fixed interval (the default, and the fallback when
// native notifications are unavailable) and a native observer built on
// fsnotify. Files are reported once they stop changing, so a writer that is
// still filling a file is not raced. Directories are reported as soon as they
// appear.
//
// The handler runs on the watcher's goroutine. Stop joins that goroutine: once
// it returns no handler call is in flight and none will follow.
package watcher
