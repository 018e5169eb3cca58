package journal

import "time"

// Record is one watch session as stored in the journal.
type Record struct {
	ID           string
	Root         string
	StagingDir   string
	SuccessDir   string
	FailureDir   string
	State        string
	Outcome      string
	Verdict      string
	TerminalDir  string
	ErrorKind    string
	ErrorMessage string
	Forwarded    int
	Dropped      int
	Recovered    bool
	StartedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Completed reports whether the session finished relocating.
func (r Record) Completed() bool {
	return r.CompletedAt != nil
}

// Duration returns the time from start to completion, or to the last update
// for sessions that never completed.
func (r Record) Duration() time.Duration {
	end := r.UpdatedAt
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	if end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}
