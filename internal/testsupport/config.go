package testsupport

import (
	"path/filepath"
	"testing"

	"imagefeeder/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test and
// fast observer timings. It applies any provided options and finalizes the result.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Sink.BaselineDir = filepath.Join(base, "baselines")
	cfg.Watch.PollIntervalMillis = 10
	cfg.Watch.SettleMillis = 10
	cfg.Watch.MoveTimeoutSeconds = 5
	cfg.Session.CloseTimeoutSeconds = 5
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	return &cfg
}

// WithMaxSessions sets the concurrency gate capacity.
func WithMaxSessions(n int) ConfigOption {
	return func(c *config.Config) {
		c.Session.MaxConcurrentSessions = n
	}
}

// WithWatchMode selects the observer implementation.
func WithWatchMode(mode string) ConfigOption {
	return func(c *config.Config) {
		c.Watch.Mode = mode
	}
}

// WithBaseIndex sets the first expected sequence index.
func WithBaseIndex(base uint64) ConfigOption {
	return func(c *config.Config) {
		c.Watch.SequenceBaseIndex = base
	}
}

// WithIngestExisting toggles ingestion of files present before watching starts.
func WithIngestExisting(enabled bool) ConfigOption {
	return func(c *config.Config) {
		c.Watch.IngestExisting = enabled
	}
}
