package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"imagefeeder/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("IMAGEFEEDER_API_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "imagefeeder")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Watch.DoneFileName != "done" {
		t.Fatalf("unexpected done file name: %q", cfg.Watch.DoneFileName)
	}
	if cfg.Watch.ProcessingDirName != "IN-PROGRESS" || cfg.Watch.SuccessDirName != "DONE" || cfg.Watch.FailureDirName != "FAILED" {
		t.Fatalf("unexpected directory names: %+v", cfg.Watch)
	}
	if cfg.Watch.SequenceBaseIndex != 0 {
		t.Fatalf("expected base index 0, got %d", cfg.Watch.SequenceBaseIndex)
	}
	if cfg.Session.MaxConcurrentSessions != 6 {
		t.Fatalf("unexpected concurrency limit: %d", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.Session.HostSeparator != "_" {
		t.Fatalf("unexpected host separator: %q", cfg.Session.HostSeparator)
	}
	if cfg.Sink.Kind != config.SinkBaseline {
		t.Fatalf("expected baseline sink by default, got %q", cfg.Sink.Kind)
	}
	if cfg.PollInterval().Milliseconds() != 250 {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Sink.BaselineDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "imagefeeder.toml")

	type payload struct {
		Watch struct {
			DoneFileName      string `toml:"done_file_name"`
			FailureDirName    string `toml:"failure_dir_name"`
			SequenceBaseIndex uint64 `toml:"sequence_base_index"`
		} `toml:"watch"`
		Session struct {
			MaxConcurrentSessions int `toml:"max_concurrent_sessions"`
		} `toml:"session"`
		Sink struct {
			Kind   string `toml:"kind"`
			URL    string `toml:"url"`
			APIKey string `toml:"api_key"`
		} `toml:"sink"`
	}
	custom := payload{}
	custom.Watch.DoneFileName = "finished"
	custom.Watch.FailureDirName = "BROKEN"
	custom.Watch.SequenceBaseIndex = 1
	custom.Session.MaxConcurrentSessions = -1
	custom.Sink.Kind = "http"
	custom.Sink.URL = "https://eyes.example.com/"
	custom.Sink.APIKey = "secret"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Watch.DoneFileName != "finished" || cfg.Watch.FailureDirName != "BROKEN" {
		t.Fatalf("watch overrides not applied: %+v", cfg.Watch)
	}
	if cfg.Watch.SuccessDirName != "DONE" {
		t.Fatalf("expected default success dir to survive partial config, got %q", cfg.Watch.SuccessDirName)
	}
	if cfg.Watch.SequenceBaseIndex != 1 {
		t.Fatalf("unexpected base index: %d", cfg.Watch.SequenceBaseIndex)
	}
	if cfg.Session.MaxConcurrentSessions != -1 {
		t.Fatalf("expected unlimited sessions to be preserved, got %d", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.Sink.URL != "https://eyes.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Sink.URL)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config path")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"separator in dir name", func(c *config.Config) { c.Watch.SuccessDirName = "a/b" }, "watch.success_dir_name"},
		{"processing equals success", func(c *config.Config) { c.Watch.ProcessingDirName = c.Watch.SuccessDirName }, "processing_dir_name"},
		{"unknown mode", func(c *config.Config) { c.Watch.Mode = "magic" }, "watch.mode"},
		{"http sink without url", func(c *config.Config) { c.Sink.Kind = config.SinkHTTP; c.Sink.APIKey = "k" }, "sink.url"},
		{"http sink without key", func(c *config.Config) { c.Sink.Kind = config.SinkHTTP; c.Sink.URL = "http://x" }, "sink.api_key"},
		{"unknown sink", func(c *config.Config) { c.Sink.Kind = "ftp" }, "sink.kind"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestFinalizeUsesEnvAPIKey(t *testing.T) {
	t.Setenv("IMAGEFEEDER_API_KEY", "from-env")
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Sink.Kind = config.SinkHTTP
	cfg.Sink.URL = "http://localhost:9999"
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if cfg.Sink.APIKey != "from-env" {
		t.Fatalf("expected api key from env, got %q", cfg.Sink.APIKey)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	t.Setenv("HOME", t.TempDir())
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Watch.Mode != config.WatchModePoll {
		t.Fatalf("unexpected mode from sample: %q", cfg.Watch.Mode)
	}
}

func TestParseDefersValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "imagefeeder.toml")
	t.Setenv("IMAGEFEEDER_API_KEY", "")
	if err := os.WriteFile(configPath, []byte("[sink]\nkind = \"http\"\nurl = \"http://localhost:8080\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected Load to reject http sink without api key")
	}
	cfg, _, _, err := config.Parse(configPath)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	cfg.Sink.APIKey = "from-flag"
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
}
