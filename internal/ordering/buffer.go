package ordering

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"

	"imagefeeder/internal/logging"
)

// Disposition describes what Submit did with a file.
type Disposition int

const (
	// Buffered means the file waits for lower indices.
	Buffered Disposition = iota
	// Forwarded means the file (and possibly buffered successors) went to the sink.
	Forwarded
	// DroppedNoIndex means the name carried no usable sequence index.
	DroppedNoIndex
	// DroppedRepeated means the cursor already passed the index.
	DroppedRepeated
	// DroppedDuplicate means another file already holds the index.
	DroppedDuplicate
)

func (d Disposition) String() string {
	switch d {
	case Buffered:
		return "buffered"
	case Forwarded:
		return "forwarded"
	case DroppedNoIndex:
		return "dropped_no_index"
	case DroppedRepeated:
		return "dropped_repeated"
	case DroppedDuplicate:
		return "dropped_duplicate"
	default:
		return "unknown"
	}
}

// ForwardFunc delivers one file to the sink.
type ForwardFunc func(ctx context.Context, index uint64, path string) error

// Buffer orders files by sequence index. It is safe for concurrent use, but a
// session feeds it from a single consumer goroutine.
type Buffer struct {
	mu        sync.Mutex
	next      uint64
	exhausted bool // the largest representable index was passed
	slots     map[uint64]string
	forward   ForwardFunc
	logger    *slog.Logger
	forwarded int
	dropped   int
}

// New returns a buffer whose cursor starts at base.
func New(base uint64, forward ForwardFunc, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Buffer{
		next:    base,
		slots:   make(map[uint64]string),
		forward: forward,
		logger:  logger,
	}
}

// Submit records path under its sequence index and forwards the contiguous run
// starting at the cursor. The returned error is the first forward failure; the
// cursor moves past a failed index so it is never retried.
func (b *Buffer) Submit(ctx context.Context, path string) (Disposition, error) {
	index, ok := ExtractIndex(path)
	if !ok {
		logging.WarnWithContext(b.logger, "file has no sequence index; dropped", "ordering_no_index",
			logging.Path(path),
			logging.String(logging.FieldErrorHint, "include a decimal sequence number in artifact file names"),
			logging.String(logging.FieldImpact, "file is not sent to the sink"),
		)
		b.countDrop()
		return DroppedNoIndex, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exhausted || index < b.next {
		logging.WarnWithContext(b.logger, "repeated sequence index; dropped", "ordering_repeated_index",
			logging.Path(path),
			logging.Index(index),
			logging.Uint64("next_expected", b.next),
			logging.String(logging.FieldImpact, "file is not sent to the sink"),
		)
		b.dropped++
		return DroppedRepeated, nil
	}
	if existing, taken := b.slots[index]; taken {
		logging.WarnWithContext(b.logger, "duplicate sequence index; dropped", "ordering_duplicate_index",
			logging.Path(path),
			logging.String("kept", existing),
			logging.Index(index),
			logging.String(logging.FieldImpact, "file is not sent to the sink"),
		)
		b.dropped++
		return DroppedDuplicate, nil
	}

	b.slots[index] = path
	if index != b.next {
		b.logger.Debug("buffered out of order",
			logging.Index(index),
			logging.Uint64("next_expected", b.next),
		)
		return Buffered, nil
	}
	return Forwarded, b.drainContiguous(ctx)
}

// Flush forwards every buffered file in ascending order regardless of gaps and
// moves the cursor past the highest index seen.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.slots) == 0 {
		return nil
	}
	indices := make([]uint64, 0, len(b.slots))
	for idx := range b.slots {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	b.logger.Debug("flushing ordering buffer",
		logging.Int("pending", len(indices)),
		logging.Uint64("next_expected", b.next),
	)
	var firstErr error
	for _, idx := range indices {
		path := b.slots[idx]
		delete(b.slots, idx)
		b.advance(idx)
		if err := b.deliver(ctx, idx, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Next returns the cursor: the next index that will be forwarded.
func (b *Buffer) Next() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Pending reports how many files wait in the buffer.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// Stats reports how many files were forwarded and dropped.
func (b *Buffer) Stats() (forwarded, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.forwarded, b.dropped
}

func (b *Buffer) drainContiguous(ctx context.Context) error {
	var firstErr error
	for !b.exhausted {
		path, ok := b.slots[b.next]
		if !ok {
			break
		}
		idx := b.next
		delete(b.slots, idx)
		b.advance(idx)
		if err := b.deliver(ctx, idx, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// advance moves the cursor past idx without wrapping.
func (b *Buffer) advance(idx uint64) {
	if idx == math.MaxUint64 {
		b.next = idx
		b.exhausted = true
		return
	}
	b.next = idx + 1
}

func (b *Buffer) deliver(ctx context.Context, idx uint64, path string) error {
	if err := b.forward(ctx, idx, path); err != nil {
		return err
	}
	b.forwarded++
	return nil
}

func (b *Buffer) countDrop() {
	b.mu.Lock()
	b.dropped++
	b.mu.Unlock()
}
