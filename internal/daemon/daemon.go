package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"imagefeeder/internal/config"
	"imagefeeder/internal/journal"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/notifications"
	"imagefeeder/internal/session"
	"imagefeeder/internal/supervisor"
)

// Daemon ties the supervisor to process-level resources and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	journal  *journal.Store
	sup      *supervisor.Supervisor
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	recovery  journal.RecoveryResult
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	Sessions     []SessionStatus
	Finished     int
	SlotsInUse   int
	SlotCapacity int
	JournalPath  string
	LockFilePath string
}

// SessionStatus describes one running session.
type SessionStatus struct {
	ID    string
	Root  string
	State string
}

// New constructs a daemon. store and notifier may be nil.
func New(cfg *config.Config, logger *slog.Logger, store *journal.Store, sup *supervisor.Supervisor, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || sup == nil {
		return nil, errors.New("daemon requires config and supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		journal:  store,
		sup:      sup,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, recovers sessions interrupted by a
// previous run, and begins watching patterns. It fails when no pattern could
// be watched.
func (d *Daemon) Start(ctx context.Context, patterns []string) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if len(patterns) == 0 {
		return errors.New("no watch patterns configured")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another imagefeeder instance is already running")
	}

	d.recover(ctx)

	started := 0
	for _, pattern := range patterns {
		if err := d.sup.Watch(pattern); err != nil {
			logging.ErrorWithContext(d.logger, "failed to watch pattern", "daemon_watch_failed",
				logging.String("pattern", pattern),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the directory exists and is readable"),
			)
			continue
		}
		started++
	}
	if started == 0 {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
		return errors.New("none of the watch patterns could be started")
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("imagefeeder started",
		logging.String("lock", d.lockPath),
		logging.Int("patterns", started),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) recover(ctx context.Context) {
	if d.journal == nil {
		return
	}
	d.recovery = journal.Recover(ctx, d.journal, d.logger)
	for _, err := range d.recovery.Errors {
		logging.WarnWithContext(d.logger, "journal recovery incomplete", "daemon_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some interrupted sessions remain in the processing directory"),
		)
	}
	if n := len(d.recovery.Relocated); n > 0 {
		if err := d.notifier.Publish(ctx, notifications.EventRecovery, notifications.Payload{"count": n}); err != nil {
			d.logger.Warn("recovery notification failed", logging.Error(err))
		}
	}
}

// Recovery returns what the startup journal replay did.
func (d *Daemon) Recovery() journal.RecoveryResult {
	return d.recovery
}

// Wait blocks until every session has finished or ctx is cancelled, then
// stops the daemon and returns the session results.
func (d *Daemon) Wait(ctx context.Context, tick time.Duration) []session.Result {
	results := d.sup.Run(ctx, tick)
	d.Stop()
	return results
}

// Stop stops all sessions and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.sup.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("imagefeeder stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		StartedAt:    d.startedAt,
		Finished:     len(d.sup.Results()),
		SlotsInUse:   d.sup.Gate().InUse(),
		SlotCapacity: d.sup.Gate().Capacity(),
		LockFilePath: d.lockPath,
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
	}
	for _, ctrl := range d.sup.Active() {
		status.Sessions = append(status.Sessions, SessionStatus{
			ID:    ctrl.ID(),
			Root:  ctrl.Root().Path,
			State: ctrl.State().String(),
		})
	}
	sort.Slice(status.Sessions, func(i, j int) bool {
		return status.Sessions[i].Root < status.Sessions[j].Root
	})
	return status
}
