// Package ingest holds the per-session FIFO of staged files awaiting ordering.
package ingest

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Get once the queue is closed and drained, and by Put after Close.
var ErrClosed = errors.New("ingest queue closed")

// File is a discovered file that has already been moved into staging.
type File struct {
	// Original is where the file was discovered.
	Original string
	// Relative is the path relative to the watched root.
	Relative string
	// Staged is the path inside the staging directory.
	Staged string
	// Sentinel marks the end-of-input file.
	Sentinel bool
}

// Queue is an unbounded FIFO with a blocking Get. Put never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []File
	closed bool
	ready  chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends f. It fails only after Close.
func (q *Queue) Put(f File) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, f)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Get removes and returns the oldest file, blocking while the queue is empty.
// After Close, remaining files are still returned; ErrClosed follows once drained.
func (q *Queue) Get(ctx context.Context) (File, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = File{}
			q.items = q.items[1:]
			more := len(q.items) > 0 || q.closed
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return f, nil
		}
		if q.closed {
			q.mu.Unlock()
			q.signal()
			return File{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return File{}, ctx.Err()
		}
	}
}

// Close stops accepting new files and wakes blocked readers.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len reports the number of queued files.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
