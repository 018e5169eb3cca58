package gate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"imagefeeder/internal/gate"
)

func TestGateCapacityOneSerializes(t *testing.T) {
	g := gate.New(1)
	ctx := context.Background()

	first, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	acquired := make(chan *gate.Slot, 1)
	go func() {
		slot, err := g.Acquire(ctx)
		if err == nil {
			acquired <- slot
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the first slot was held")
	case <-time.After(30 * time.Millisecond):
	}

	first.Release()
	select {
	case second := <-acquired:
		if g.InUse() != 1 {
			t.Fatalf("expected one slot in use, got %d", g.InUse())
		}
		second.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
	if g.InUse() != 0 {
		t.Fatalf("expected no slots in use, got %d", g.InUse())
	}
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := gate.New(1)
	slot, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	slot.Release()
	slot.Release()

	if _, ok := g.TryAcquire(); !ok {
		t.Fatal("expected slot to be free after release")
	}
	if _, ok := g.TryAcquire(); ok {
		t.Fatal("double release must not grow capacity")
	}
}

func TestGateUnlimited(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		g := gate.New(capacity)
		if !g.Unlimited() {
			t.Fatalf("capacity %d should be unlimited", capacity)
		}
		var slots []*gate.Slot
		for i := 0; i < 100; i++ {
			slot, err := g.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire returned error: %v", err)
			}
			slots = append(slots, slot)
		}
		if g.InUse() != 100 {
			t.Fatalf("expected 100 in use, got %d", g.InUse())
		}
		for _, s := range slots {
			s.Release()
		}
	}
}

func TestGateAcquireHonoursContext(t *testing.T) {
	g := gate.New(1)
	held, _ := g.Acquire(context.Background())
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if g.InUse() != 1 {
		t.Fatalf("failed acquire must not count, in use %d", g.InUse())
	}
}

func TestGateBoundsConcurrency(t *testing.T) {
	const capacity = 3
	g := gate.New(capacity)
	var (
		mu      sync.Mutex
		current int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := g.Acquire(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
			slot.Release()
		}()
	}
	wg.Wait()
	if peak > capacity {
		t.Fatalf("peak concurrency %d exceeded capacity %d", peak, capacity)
	}
}
