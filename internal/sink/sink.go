// Package sink defines the contract between watch sessions and the external
// artifact sink that receives ordered payloads and later reports a verdict.
package sink

import (
	"context"
	"errors"
)

// ErrUnrecognizedArtifact is returned by Submit when the payload is not an
// artifact the sink understands. Sessions log and skip such files.
var ErrUnrecognizedArtifact = errors.New("unrecognized artifact")

// Verdict is the sink's judgement of a closed session.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	// NewBaseline means the session was recorded as the first reference run.
	NewBaseline
	// Matched means the session agreed with the recorded baseline.
	Matched
	// Mismatched means at least one artifact differed from the baseline.
	Mismatched
)

func (v Verdict) String() string {
	switch v {
	case NewBaseline:
		return "new_baseline"
	case Matched:
		return "matched"
	case Mismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// ParseVerdict maps the wire form produced by String back to a Verdict.
func ParseVerdict(s string) Verdict {
	switch s {
	case "new_baseline", "new":
		return NewBaseline
	case "matched":
		return Matched
	case "mismatched":
		return Mismatched
	default:
		return VerdictUnknown
	}
}

// SessionInfo names a remote session.
type SessionInfo struct {
	AppName  string
	TestName string
	HostOS   string
	HostApp  string
	BatchID  string
}

// Handle identifies an open remote session.
type Handle struct {
	ID   string
	Info SessionInfo
}

// ArtifactSink accepts ordered artifacts for a session and reports a verdict on close.
type ArtifactSink interface {
	OpenSession(ctx context.Context, info SessionInfo) (Handle, error)
	Submit(ctx context.Context, h Handle, data []byte, tag string) error
	CloseSession(ctx context.Context, h Handle) (Verdict, error)
	// AbortSession discards a session whose input was incomplete.
	AbortSession(ctx context.Context, h Handle) error
}

// HealthChecker is implemented by sinks that can verify reachability up front.
type HealthChecker interface {
	Check(ctx context.Context) error
}
