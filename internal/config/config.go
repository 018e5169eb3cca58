package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Watch contains the filesystem contract for watched roots.
type Watch struct {
	// Patterns lists the directories (or globs of directories) to watch.
	Patterns          []string `toml:"patterns"`
	DoneFileName      string   `toml:"done_file_name"`
	ProcessingDirName string   `toml:"processing_dir_name"`
	SuccessDirName    string   `toml:"success_dir_name"`
	FailureDirName    string   `toml:"failure_dir_name"`
	SequenceBaseIndex uint64   `toml:"sequence_base_index"`
	// Mode selects the observer implementation: "poll" or "native".
	Mode               string `toml:"mode"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	SettleMillis       int    `toml:"settle_ms"`
	IngestExisting     bool   `toml:"ingest_existing"`
	MoveTimeoutSeconds int    `toml:"move_timeout_seconds"`
}

// Session contains per-session naming and admission settings.
type Session struct {
	MaxConcurrentSessions int    `toml:"max_concurrent_sessions"`
	AppName               string `toml:"app_name"`
	TestName              string `toml:"test_name"`
	Batch                 string `toml:"batch"`
	HostOS                string `toml:"host_os"`
	HostApp               string `toml:"host_app"`
	HostSeparator         string `toml:"host_separator"`
	CloseTimeoutSeconds   int    `toml:"close_timeout_seconds"`
}

// Sink contains configuration for the artifact sink.
type Sink struct {
	// Kind selects the sink implementation: "baseline" or "http".
	Kind                  string  `toml:"kind"`
	URL                   string  `toml:"url"`
	APIKey                string  `toml:"api_key"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	UploadsPerSecond      float64 `toml:"uploads_per_second"`
	BaselineDir           string  `toml:"baseline_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionOutcome bool   `toml:"session_outcome"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Journal contains configuration for the durable session journal.
type Journal struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for ImageFeeder.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Watch: watched patterns, sentinel and directory naming, observer tuning
//   - Session: admission limit and the names reported to the sink
//   - Sink: artifact sink selection and credentials
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Journal: durable session ledger used for crash recovery
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Session       Session       `toml:"session"`
	Sink          Sink          `toml:"sink"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Journal       Journal       `toml:"journal"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imagefeeder/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := Parse(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

// Parse is Load without validation. Callers that apply overrides afterwards
// must call Finalize.
func Parse(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates a config assembled in code (for example after
// command line overrides were applied to a loaded config).
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file %q not found", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imagefeeder.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Sink.Kind == SinkBaseline {
		if err := os.MkdirAll(c.Sink.BaselineDir, 0o755); err != nil {
			return fmt.Errorf("create baseline directory %q: %w", c.Sink.BaselineDir, err)
		}
	}
	return nil
}

// PollInterval returns the observer polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollIntervalMillis) * time.Millisecond
}

// SettleDelay returns how long a file must stay unchanged before it is ingested.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Watch.SettleMillis) * time.Millisecond
}

// MoveTimeout returns the maximum time a single staging move may keep retrying.
func (c *Config) MoveTimeout() time.Duration {
	return time.Duration(c.Watch.MoveTimeoutSeconds) * time.Second
}

// CloseTimeout returns the bound applied to closing a remote session.
func (c *Config) CloseTimeout() time.Duration {
	return time.Duration(c.Session.CloseTimeoutSeconds) * time.Second
}

// JournalPath returns the location of the session journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// LockPath returns the location of the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "imagefeeder.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
