package session

import (
	"imagefeeder/internal/journal"
	"imagefeeder/internal/sink"
)

// Outcome is the terminal classification of a session.
type Outcome int

const (
	// Committed means the sink recorded a new baseline or matched an existing one.
	Committed Outcome = iota
	// Failed means the sink reported a mismatch.
	Failed
	// Aborted means the session ended before the sink produced a verdict.
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return journal.OutcomeCommitted
	case Failed:
		return journal.OutcomeFailed
	default:
		return journal.OutcomeAborted
	}
}

// OutcomeForVerdict classifies a remote close verdict.
func OutcomeForVerdict(v sink.Verdict) Outcome {
	switch v {
	case sink.NewBaseline, sink.Matched:
		return Committed
	case sink.Mismatched:
		return Failed
	default:
		return Aborted
	}
}

// State is a lifecycle phase of a Controller.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateDraining
	StateClosing
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateDraining:
		return "draining"
	case StateClosing:
		return "closing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
