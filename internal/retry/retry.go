// Package retry provides bounded polling with exponential backoff for
// filesystem operations that race with other writers.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a condition does not hold before the policy deadline.
var ErrTimeout = errors.New("retry deadline exceeded")

const (
	DefaultInitialBackoff = 5 * time.Millisecond
	DefaultMaxBackoff     = 250 * time.Millisecond
)

// Policy bounds a retry loop. A zero Timeout means the loop only ends when the
// condition holds, fails, or the context is cancelled.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Timeout time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Initial <= 0 {
		p.Initial = DefaultInitialBackoff
	}
	if p.Max < p.Initial {
		p.Max = DefaultMaxBackoff
		if p.Max < p.Initial {
			p.Max = p.Initial
		}
	}
	return p
}

// Until evaluates cond until it reports done or returns an error, the context
// is cancelled, or the policy timeout elapses. The delay between attempts
// doubles up to Policy.Max. A condition error is returned as is without further
// attempts; exhausting the timeout returns an error wrapping ErrTimeout.
func Until(ctx context.Context, p Policy, cond func() (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p = p.withDefaults()

	var deadline <-chan time.Time
	if p.Timeout > 0 {
		timer := time.NewTimer(p.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	delay := p.Initial
	for attempt := 1; ; attempt++ {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		wait := time.NewTimer(delay)
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-deadline:
			wait.Stop()
			return fmt.Errorf("%w after %d attempts (%s)", ErrTimeout, attempt, p.Timeout)
		}
		if next := delay * 2; next <= p.Max {
			delay = next
		} else {
			delay = p.Max
		}
	}
}
