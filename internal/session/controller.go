package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"imagefeeder/internal/config"
	"imagefeeder/internal/gate"
	"imagefeeder/internal/ingest"
	"imagefeeder/internal/journal"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/ordering"
	"imagefeeder/internal/services"
	"imagefeeder/internal/sink"
	"imagefeeder/internal/staging"
	"imagefeeder/internal/watcher"
)

// PathSource starts a filesystem observer for a root.
type PathSource interface {
	Observe(ctx context.Context, root string, handler watcher.Handler) (watcher.Observation, error)
}

// Journal persists session progress so interrupted sessions can be recovered.
type Journal interface {
	Begin(ctx context.Context, rec journal.Record) error
	SetState(ctx context.Context, id, state string) error
	SetOutcome(ctx context.Context, id, outcome, verdict, errorKind, errorMessage string) error
	Complete(ctx context.Context, id, state, terminalDir string, forwarded, dropped int) error
}

// Notifier is told about every finished session.
type Notifier interface {
	SessionFinished(ctx context.Context, result Result)
}

// Dependencies are the capabilities a Controller uses.
type Dependencies struct {
	Sink  sink.ArtifactSink
	Paths PathSource
	Gate  *gate.Gate
	// Journal and Notifier are optional.
	Journal  Journal
	Notifier Notifier
	Logger   *slog.Logger
}

// Result summarizes a finished session.
type Result struct {
	SessionID   string
	Root        Root
	Outcome     Outcome
	Verdict     sink.Verdict
	TerminalDir string
	// Relocated is false when the session ended before staging was prepared.
	Relocated    bool
	Forwarded    int
	Dropped      int
	Unrecognized int
	Interrupted  bool
	Err          error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the wall time of the session.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Controller runs the lifecycle of one watched root.
type Controller struct {
	cfg    *config.Config
	root   Root
	deps   Dependencies
	id     string
	logger *slog.Logger
	state  atomic.Int32

	handle       sink.Handle
	queue        *ingest.Queue
	buffer       *ordering.Buffer
	halted       atomic.Bool
	unrecognized atomic.Int64

	sentinelOnce sync.Once
	sentinel     chan struct{}
	errOnce      sync.Once
	fatal        chan struct{}
	fatalErr     error
}

// NewController prepares a controller for root. Run starts it.
func NewController(cfg *config.Config, root Root, deps Dependencies) *Controller {
	id := uuid.NewString()
	logger := logging.NewComponentLogger(deps.Logger, "session").With(
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldRoot, root.Path),
	)
	return &Controller{
		cfg:      cfg,
		root:     root,
		deps:     deps,
		id:       id,
		logger:   logger,
		sentinel: make(chan struct{}),
		fatal:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Root returns the watched root.
func (c *Controller) Root() Root { return c.root }

// State returns the current lifecycle phase.
func (c *Controller) State() State { return State(c.state.Load()) }

// Run executes the session until the sentinel arrives or ctx is cancelled and
// returns its result. Cancelling ctx while waiting for an admission slot ends
// the session without touching the filesystem. Once a slot is held the session
// always reaches a terminal directory; cancelling ctx then ends watching the
// same way the sentinel does, and the outcome follows the close verdict.
func (c *Controller) Run(ctx context.Context) Result {
	ctx = services.WithSessionID(ctx, c.id)
	ctx = services.WithRoot(ctx, c.root.Path)
	result := Result{
		SessionID: c.id,
		Root:      c.root,
		Outcome:   Aborted,
		StartedAt: time.Now(),
	}

	c.logger.Debug("waiting for admission slot",
		logging.Int("in_use", c.deps.Gate.InUse()),
		logging.Int("capacity", c.deps.Gate.Capacity()),
		logging.Bool("unlimited", c.deps.Gate.Unlimited()),
	)
	slot, err := c.deps.Gate.Acquire(ctx)
	if err != nil {
		result.Interrupted = true
		result.Err = fmt.Errorf("acquire admission slot: %w", err)
		result.FinishedAt = time.Now()
		c.logger.Info("session cancelled before admission", logging.String(logging.FieldEventType, "session_not_admitted"))
		return result
	}
	defer slot.Release()

	// Work after admission must finish even when ctx is cancelled.
	work := context.WithoutCancel(ctx)
	c.journalBegin(work)

	c.setState(work, StateWatching)
	interrupted, runErr := c.watch(ctx, work)
	result.Interrupted = interrupted

	c.setState(work, StateClosing)
	outcome, verdict, closeErr := c.close(work, runErr != nil)
	slot.Release()

	result.Outcome = outcome
	result.Verdict = verdict
	result.Err = errors.Join(runErr, closeErr)
	if c.buffer != nil {
		result.Forwarded, result.Dropped = c.buffer.Stats()
	}
	result.Unrecognized = int(c.unrecognized.Load())
	c.journalOutcome(work, result)

	result.TerminalDir = c.root.TerminalDir(outcome)
	if err := staging.Relocate(c.root.StagingDir, result.TerminalDir, c.logger); err != nil {
		logging.ErrorWithContext(c.logger, "failed to relocate staging directory", "session_relocate_failed",
			logging.String("terminal", result.TerminalDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next start relocates it from the session journal"),
		)
		result.Err = errors.Join(result.Err, err)
	} else {
		result.Relocated = true
		if removed, err := staging.CleanDebris(filepath.Dir(c.root.StagingDir), c.logger); err == nil && len(removed) > 0 {
			c.logger.Info("removed processing directory debris", logging.Int("files", len(removed)))
		}
		c.journalComplete(work, result)
	}
	c.setState(work, StateFinished)
	result.FinishedAt = time.Now()

	c.logResult(result)
	if c.deps.Notifier != nil {
		c.deps.Notifier.SessionFinished(work, result)
	}
	return result
}

// watch covers Watching and Draining. It reports whether the session was
// interrupted by ctx and the first error that ends the session.
func (c *Controller) watch(ctx, work context.Context) (bool, error) {
	if err := staging.PrepareEmpty(c.root.StagingDir); err != nil {
		return false, services.Wrap(services.ErrFilesystem, "session", "prepare staging", c.root.StagingDir, err)
	}

	handle, err := c.deps.Sink.OpenSession(work, Info(c.root, c.cfg.Session))
	if err != nil {
		return false, services.Wrap(services.ErrExternalService, "session", "open remote session", c.root.Path, err)
	}
	c.handle = handle
	c.logger.Info("remote session opened",
		logging.String("remote_id", handle.ID),
		logging.String(logging.FieldEventType, "session_opened"),
	)

	c.queue = ingest.New()
	c.buffer = ordering.New(c.cfg.Watch.SequenceBaseIndex, c.forward, c.logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		c.consume(work)
	}()

	observation, err := c.deps.Paths.Observe(work, c.root.Path, func(ev watcher.Event) {
		c.ingest(work, ev)
	})
	if err != nil {
		c.halted.Store(true)
		c.queue.Close()
		<-consumerDone
		return false, services.Wrap(services.ErrFilesystem, "session", "start observer", c.root.Path, err)
	}
	c.logger.Info("watching for artifacts", logging.String(logging.FieldEventType, "session_watching"))

	interrupted := false
	select {
	case <-c.sentinel:
		c.logger.Info("sentinel received", logging.String(logging.FieldEventType, "session_sentinel"))
	case <-c.fatal:
	case <-ctx.Done():
		interrupted = true
		c.logger.Info("shutdown requested; draining session", logging.String(logging.FieldEventType, "session_interrupted"))
	}

	c.setState(work, StateDraining)
	observation.Stop()
	if !interrupted && c.fatalError() == nil {
		c.sweep(work)
	}
	c.queue.Close()
	<-consumerDone

	if err := c.fatalError(); err != nil {
		return interrupted, err
	}
	if err := c.buffer.Flush(work); err != nil {
		return interrupted, err
	}
	return interrupted, nil
}

// close covers Closing. The remote session is aborted after a session-ending
// error, otherwise closed within the configured timeout.
func (c *Controller) close(work context.Context, abort bool) (Outcome, sink.Verdict, error) {
	if c.handle.ID == "" {
		return Aborted, sink.VerdictUnknown, nil
	}
	ctx, cancel := context.WithTimeout(services.WithPhase(work, StateClosing.String()), c.cfg.CloseTimeout())
	defer cancel()

	if abort {
		if err := c.deps.Sink.AbortSession(ctx, c.handle); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, c.logger), "failed to abort remote session", "session_abort_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the sink may keep an incomplete session open"),
			)
		}
		return Aborted, sink.VerdictUnknown, nil
	}

	verdict, err := c.deps.Sink.CloseSession(ctx, c.handle)
	if err != nil {
		marker := services.ErrExternalService
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return Aborted, sink.VerdictUnknown, services.Wrap(marker, "session", "close remote session", c.root.Path, err)
	}
	return OutcomeForVerdict(verdict), verdict, nil
}

// ingest runs on the observer goroutine: it stages a created file and queues it.
func (c *Controller) ingest(ctx context.Context, ev watcher.Event) {
	if ev.IsDir {
		return
	}
	rel, err := filepath.Rel(c.root.Path, ev.Path)
	if err != nil {
		c.logger.Debug("event outside root ignored", logging.Path(ev.Path))
		return
	}
	staged := filepath.Join(c.root.StagingDir, rel)
	err = staging.MoveFile(ctx, ev.Path, staged, staging.MoveOptions{
		Timeout: c.cfg.MoveTimeout(),
		Logger:  c.logger,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Info("file vanished before staging; skipped",
				logging.Path(ev.Path),
				logging.String(logging.FieldEventType, "session_file_vanished"),
			)
			return
		}
		c.fail(err)
		return
	}

	file := ingest.File{
		Original: ev.Path,
		Relative: rel,
		Staged:   staged,
		Sentinel: c.root.IsSentinel(ev.Path),
	}
	if err := c.queue.Put(file); err != nil {
		c.logger.Debug("queue closed; staged file left for relocation", logging.Path(staged))
		return
	}
	if file.Sentinel {
		c.sentinelOnce.Do(func() { close(c.sentinel) })
	}
}

// sweep stages regular files still under the root after the observer stopped,
// such as files that had not settled when the sentinel arrived.
func (c *Controller) sweep(ctx context.Context) {
	_ = filepath.WalkDir(c.root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			c.ingest(ctx, watcher.Event{Path: path})
		}
		return nil
	})
}

// consume is the single reader of the ingest queue.
func (c *Controller) consume(ctx context.Context) {
	for {
		file, err := c.queue.Get(ctx)
		if err != nil {
			return
		}
		if file.Sentinel || c.halted.Load() {
			continue
		}
		disposition, err := c.buffer.Submit(ctx, file.Staged)
		if err != nil {
			c.fail(err)
			continue
		}
		c.logger.Debug("file ingested",
			logging.Path(file.Relative),
			logging.String("disposition", disposition.String()),
		)
	}
}

// forward delivers one staged file to the remote session.
func (c *Controller) forward(ctx context.Context, index uint64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(c.logger, "staged file disappeared before upload", "session_staged_missing",
				logging.Path(path),
				logging.Index(index),
				logging.String(logging.FieldImpact, "file is not sent to the sink"),
			)
			return nil
		}
		return services.Wrap(services.ErrFilesystem, "session", "read staged file", path, err)
	}
	tag, err := filepath.Rel(c.root.StagingDir, path)
	if err != nil {
		tag = filepath.Base(path)
	}
	tag = filepath.ToSlash(tag)

	if err := c.deps.Sink.Submit(ctx, c.handle, data, tag); err != nil {
		if errors.Is(err, sink.ErrUnrecognizedArtifact) {
			c.unrecognized.Add(1)
			logging.WarnWithContext(c.logger, "sink rejected artifact; skipped", "session_unrecognized_artifact",
				logging.Path(path),
				logging.Index(index),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is not part of the session"),
			)
			return nil
		}
		return services.Wrap(services.ErrExternalService, "session", "submit artifact", tag, err)
	}
	c.logger.Debug("artifact submitted", logging.String("tag", tag), logging.Index(index))
	return nil
}

// fail records the first session-ending error and wakes Run.
func (c *Controller) fail(err error) {
	c.errOnce.Do(func() {
		c.fatalErr = err
		c.halted.Store(true)
		logging.ErrorWithContext(c.logger, "session failed", "session_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the session is aborted and its files moved to the failure directory"),
		)
		close(c.fatal)
	})
}

func (c *Controller) fatalError() error {
	select {
	case <-c.fatal:
		return c.fatalErr
	default:
		return nil
	}
}

func (c *Controller) setState(ctx context.Context, s State) {
	c.state.Store(int32(s))
	c.logger.Debug("session state", logging.String(logging.FieldPhase, s.String()))
	if c.deps.Journal == nil || s == StateFinished {
		return
	}
	if err := c.deps.Journal.SetState(ctx, c.id, s.String()); err != nil {
		c.journalWarn(err)
	}
}

func (c *Controller) journalBegin(ctx context.Context) {
	if c.deps.Journal == nil {
		return
	}
	err := c.deps.Journal.Begin(ctx, journal.Record{
		ID:         c.id,
		Root:       c.root.Path,
		StagingDir: c.root.StagingDir,
		SuccessDir: c.root.SuccessDir,
		FailureDir: c.root.FailureDir,
		State:      StateIdle.String(),
	})
	if err != nil {
		c.journalWarn(err)
	}
}

func (c *Controller) journalOutcome(ctx context.Context, r Result) {
	if c.deps.Journal == nil {
		return
	}
	verdict := ""
	if r.Verdict != sink.VerdictUnknown {
		verdict = r.Verdict.String()
	}
	message := ""
	if r.Err != nil {
		message = r.Err.Error()
	}
	if err := c.deps.Journal.SetOutcome(ctx, c.id, r.Outcome.String(), verdict, services.Kind(r.Err), message); err != nil {
		c.journalWarn(err)
	}
}

func (c *Controller) journalComplete(ctx context.Context, r Result) {
	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.Complete(ctx, c.id, StateFinished.String(), r.TerminalDir, r.Forwarded, r.Dropped); err != nil {
		c.journalWarn(err)
	}
}

func (c *Controller) journalWarn(err error) {
	logging.WarnWithContext(c.logger, "session journal update failed", "journal_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "crash recovery may not know about this session"),
	)
}

func (c *Controller) logResult(r Result) {
	attrs := []logging.Attr{
		logging.String(logging.FieldOutcome, r.Outcome.String()),
		logging.String("terminal", r.TerminalDir),
		logging.Int("forwarded", r.Forwarded),
		logging.Int("dropped", r.Dropped),
		logging.Int("unrecognized", r.Unrecognized),
		logging.Duration("duration", r.Duration()),
		logging.String(logging.FieldEventType, "session_finished"),
	}
	if r.Verdict != sink.VerdictUnknown {
		attrs = append(attrs, logging.String("verdict", r.Verdict.String()))
	}
	if r.Err != nil {
		attrs = append(attrs, logging.Error(r.Err))
		c.logger.Warn("session finished", logging.Args(attrs...)...)
		return
	}
	c.logger.Info("session finished", logging.Args(attrs...)...)
}
