package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"imagefeeder/internal/sink"
)

// RecordingSink is an in-memory sink.ArtifactSink that records every call.
type RecordingSink struct {
	mu sync.Mutex

	// Verdict is returned by CloseSession. Zero means NewBaseline.
	Verdict sink.Verdict
	// OpenErr, SubmitErr and CloseErr are returned by the respective calls when set.
	OpenErr   error
	SubmitErr error
	CloseErr  error
	// Reject lists tags refused as unrecognized artifacts.
	Reject map[string]bool
	// CloseGate, when non-nil, blocks CloseSession until it is closed.
	CloseGate chan struct{}

	opened    []sink.Handle
	submitted map[string][]string
	payloads  map[string][][]byte
	closed    []string
	aborted   []string
	active    int
	maxActive int
}

// NewRecordingSink returns a sink that reports verdict on close.
func NewRecordingSink(verdict sink.Verdict) *RecordingSink {
	return &RecordingSink{Verdict: verdict}
}

func (s *RecordingSink) OpenSession(_ context.Context, info sink.SessionInfo) (sink.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return sink.Handle{}, s.OpenErr
	}
	h := sink.Handle{ID: uuid.NewString(), Info: info}
	s.opened = append(s.opened, h)
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	return h, nil
}

func (s *RecordingSink) Submit(_ context.Context, h sink.Handle, data []byte, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubmitErr != nil {
		return s.SubmitErr
	}
	if s.Reject[tag] {
		return fmt.Errorf("%s: %w", tag, sink.ErrUnrecognizedArtifact)
	}
	if s.submitted == nil {
		s.submitted = make(map[string][]string)
		s.payloads = make(map[string][][]byte)
	}
	s.submitted[h.ID] = append(s.submitted[h.ID], tag)
	s.payloads[h.ID] = append(s.payloads[h.ID], append([]byte(nil), data...))
	return nil
}

func (s *RecordingSink) CloseSession(ctx context.Context, h sink.Handle) (sink.Verdict, error) {
	if s.CloseGate != nil {
		select {
		case <-s.CloseGate:
		case <-ctx.Done():
			return sink.VerdictUnknown, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, h.ID)
	s.active--
	if s.CloseErr != nil {
		return sink.VerdictUnknown, s.CloseErr
	}
	if s.Verdict == sink.VerdictUnknown {
		return sink.NewBaseline, nil
	}
	return s.Verdict, nil
}

func (s *RecordingSink) AbortSession(_ context.Context, h sink.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, h.ID)
	s.active--
	return nil
}

// Opened returns the handles opened so far.
func (s *RecordingSink) Opened() []sink.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sink.Handle(nil), s.opened...)
}

// Tags returns the tags submitted for the session, in delivery order.
func (s *RecordingSink) Tags(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted[id]...)
}

// Closed returns the ids of sessions closed normally.
func (s *RecordingSink) Closed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

// Aborted returns the ids of aborted sessions.
func (s *RecordingSink) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

// MaxActive reports the highest number of simultaneously open sessions.
func (s *RecordingSink) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

// ErrInjected is a convenience error for failure-path tests.
var ErrInjected = errors.New("injected failure")
