// Package gate bounds how many sessions may hold an open remote session at once.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a process-wide counting admission gate. A capacity of zero or less
// means unlimited.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// New returns a gate admitting at most capacity holders.
func New(capacity int) *Gate {
	g := &Gate{capacity: capacity}
	if capacity > 0 {
		g.sem = semaphore.NewWeighted(int64(capacity))
	}
	return g
}

// Slot is one unit of admission. Release returns it to the gate.
type Slot struct {
	gate *Gate
	once sync.Once
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	g.inUse.Add(1)
	return &Slot{gate: g}, nil
}

// TryAcquire takes a slot without blocking. ok is false when none is free.
func (g *Gate) TryAcquire() (*Slot, bool) {
	if g.sem != nil && !g.sem.TryAcquire(1) {
		return nil, false
	}
	g.inUse.Add(1)
	return &Slot{gate: g}, true
}

// Release returns the slot. Calls after the first are no-ops.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.gate.inUse.Add(-1)
		if s.gate.sem != nil {
			s.gate.sem.Release(1)
		}
	})
}

// InUse reports how many slots are currently held.
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// Capacity returns the configured bound; zero or less means unlimited.
func (g *Gate) Capacity() int {
	return g.capacity
}

// Unlimited reports whether the gate never blocks.
func (g *Gate) Unlimited() bool {
	return g.sem == nil
}
