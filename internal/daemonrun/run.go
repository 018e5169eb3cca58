// Package daemonrun assembles the ImageFeeder runtime from configuration and
// runs it until every watched session finishes or a signal arrives.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"imagefeeder/internal/config"
	"imagefeeder/internal/daemon"
	"imagefeeder/internal/journal"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/notifications"
	"imagefeeder/internal/preflight"
	"imagefeeder/internal/services/baseline"
	"imagefeeder/internal/services/eyes"
	"imagefeeder/internal/session"
	"imagefeeder/internal/sink"
	"imagefeeder/internal/supervisor"
)

// journalRetention bounds how long completed sessions stay in the journal.
const journalRetention = 30 * 24 * time.Hour

// Options configures a run.
type Options struct {
	// Patterns overrides cfg.Watch.Patterns when non-empty.
	Patterns []string
	Tick     time.Duration
	// SkipPreflight disables the startup checks.
	SkipPreflight bool
}

// Summary describes a finished run.
type Summary struct {
	Results   []session.Result
	Recovered int
	LogPath   string
	StartedAt time.Time
	Duration  time.Duration
}

// Counts tallies results by outcome.
func (s Summary) Counts() (committed, failed, aborted int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case session.Committed:
			committed++
		case session.Failed:
			failed++
		default:
			aborted++
		}
	}
	return committed, failed, aborted
}

// Sink is an artifact sink that can also report its own health.
type Sink interface {
	sink.ArtifactSink
	sink.HealthChecker
}

// BuildSink returns the sink selected by cfg.Sink.Kind.
func BuildSink(cfg *config.Config) (Sink, error) {
	switch cfg.Sink.Kind {
	case config.SinkBaseline:
		return baseline.New(cfg.Sink.BaselineDir), nil
	case config.SinkHTTP:
		return eyes.NewClient(eyes.Config{
			BaseURL:          cfg.Sink.URL,
			APIKey:           cfg.Sink.APIKey,
			UploadsPerSecond: cfg.Sink.UploadsPerSecond,
			TimeoutSeconds:   cfg.Sink.RequestTimeoutSeconds,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported sink kind %q", cfg.Sink.Kind)
	}
}

// Run watches the configured patterns until all sessions finish or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) (Summary, error) {
	var summary Summary
	if cfg == nil {
		return summary, fmt.Errorf("config is required")
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = cfg.Watch.Patterns
	}
	if len(patterns) == 0 {
		return summary, fmt.Errorf("no directories to watch: pass them as arguments or set watch.patterns")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return summary, err
	}

	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		return summary, fmt.Errorf("init logger: %w", err)
	}
	summary.LogPath = logPath
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)
	logConfigSnapshot(logger, cfg, patterns)

	client, err := BuildSink(cfg)
	if err != nil {
		return summary, err
	}

	if !opts.SkipPreflight {
		results := preflight.RunAll(signalCtx, cfg, patterns, client)
		if failed := preflight.Failed(results); len(failed) > 0 {
			details := make([]string, 0, len(failed))
			for _, r := range failed {
				details = append(details, fmt.Sprintf("%s: %s", r.Name, r.Detail))
			}
			logging.ErrorWithContext(logger, "preflight checks failed", "preflight_failed",
				logging.String("failures", strings.Join(details, "; ")),
				logging.String(logging.FieldErrorHint, "run `imagefeeder preflight` for details"),
			)
			return summary, fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
		}
	}

	var store *journal.Store
	var sessionJournal session.Journal
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg.JournalPath())
		if err != nil {
			logger.Error("open session journal", logging.Error(err))
			return summary, err
		}
		sessionJournal = store
	}

	notifier := notifications.NewService(cfg)
	sup := supervisor.New(cfg, session.Dependencies{
		Sink:     client,
		Journal:  sessionJournal,
		Notifier: notifications.NewSessionNotifier(notifier, cfg.Notifications, logger),
		Logger:   logger,
	})

	d, err := daemon.New(cfg, logger, store, sup, notifier)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return summary, fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	summary.StartedAt = time.Now()
	if err := d.Start(signalCtx, patterns); err != nil {
		return summary, err
	}
	summary.Recovered = len(d.Recovery().Relocated)

	summary.Results = d.Wait(signalCtx, opts.Tick)
	summary.Duration = time.Since(summary.StartedAt)

	if store != nil {
		pruneJournal(context.WithoutCancel(signalCtx), store, logger)
	}

	committed, failed, aborted := summary.Counts()
	logger.Info("imagefeeder run finished",
		logging.Int("committed", committed),
		logging.Int("failed", failed),
		logging.Int("aborted", aborted),
		logging.Duration("duration", summary.Duration),
		logging.String(logging.FieldEventType, "run_completed"),
	)
	if len(summary.Results) > 0 {
		notifyCtx, notifyCancel := context.WithTimeout(context.WithoutCancel(signalCtx), 15*time.Second)
		defer notifyCancel()
		if err := notifier.Publish(notifyCtx, notifications.EventRunCompleted, notifications.Payload{
			"passed":   committed,
			"failed":   failed,
			"aborted":  aborted,
			"duration": summary.Duration.Round(time.Second),
		}); err != nil {
			logger.Warn("run notification failed", logging.Error(err))
		}
	}
	return summary, nil
}

func pruneJournal(ctx context.Context, store *journal.Store, logger *slog.Logger) {
	removed, err := store.Prune(ctx, time.Now().Add(-journalRetention))
	if err != nil {
		logging.WarnWithContext(logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old session rows remain in the journal"),
		)
		return
	}
	if removed > 0 {
		logger.Debug("journal pruned", logging.Int64("removed", removed))
	}
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, patterns []string) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("patterns", strings.Join(patterns, ", ")),
		logging.String("sink", cfg.Sink.Kind),
		logging.String("watch_mode", cfg.Watch.Mode),
		logging.Int("max_sessions", cfg.Session.MaxConcurrentSessions),
		logging.Uint64("base_index", cfg.Watch.SequenceBaseIndex),
		logging.Bool("journal", cfg.Journal.Enabled),
		logging.Bool("ntfy", cfg.Notifications.NtfyTopic != ""),
	)
}
