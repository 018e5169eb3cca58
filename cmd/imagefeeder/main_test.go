package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagefeeder/internal/config"
	"imagefeeder/internal/testsupport"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

type cliTestEnv struct {
	baseDir    string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("IMAGEFEEDER_API_KEY", "")
	configPath := filepath.Join(base, "imagefeeder.toml")
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q

[watch]
poll_interval_ms = 10
settle_ms = 10

[sink]
baseline_dir = %q

[logging]
level = "error"
`, filepath.Join(base, "state"), filepath.Join(base, "logs"), filepath.Join(base, "baselines"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath}
}

func (e *cliTestEnv) writeRun(t *testing.T, name string, images ...string) string {
	t.Helper()
	root := filepath.Join(e.baseDir, "runs", name)
	for i, payload := range images {
		testsupport.WriteFile(t, filepath.Join(root, fmt.Sprintf("shot_%d.png", i)), pngHeader+payload)
	}
	testsupport.WriteFile(t, filepath.Join(root, "done"), "")
	return root
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	t.Setenv("IMAGEFEEDER_API_KEY", "secret-key")
	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "done_file_name")
	if strings.Contains(out, "secret-key") {
		t.Fatalf("expected api key to be masked, got %q", out)
	}
}

func TestWatchForwardsAndReportsSummary(t *testing.T) {
	env := setupCLITestEnv(t)
	root := env.writeRun(t, "linux_chrome_login_1", "a", "b", "c")

	out, _, err := runCLI(t, []string{"watch", root}, env.configPath)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "new_baseline")
	requireContains(t, out, "1 passed, 0 failed, 0 aborted")

	done := filepath.Join(env.baseDir, "runs", "DONE", "linux_chrome_login_1")
	for _, name := range []string{"shot_0.png", "shot_1.png", "shot_2.png", "done"} {
		if _, err := os.Stat(filepath.Join(done, name)); err != nil {
			t.Fatalf("expected %s under %s: %v", name, done, err)
		}
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, root)
	requireContains(t, out, "committed")
}

func TestWatchMismatchReturnsError(t *testing.T) {
	env := setupCLITestEnv(t)
	first := env.writeRun(t, "first", "a", "b")
	second := env.writeRun(t, "second", "a", "changed")

	args := []string{"watch", "--test", "login", "--os", "linux", "--browser", "chrome"}
	if _, _, err := runCLI(t, append(args, first), env.configPath); err != nil {
		t.Fatalf("first watch: %v", err)
	}
	out, _, err := runCLI(t, append(args, second), env.configPath)
	if err == nil {
		t.Fatal("expected mismatched session to fail the command")
	}
	requireContains(t, out, "mismatched")
	if _, err := os.Stat(filepath.Join(env.baseDir, "runs", "FAILED", "second", "shot_1.png")); err != nil {
		t.Fatalf("expected mismatched run under FAILED: %v", err)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No sessions recorded yet")
}

func TestPreflightReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	root := env.writeRun(t, "ready")

	out, _, err := runCLI(t, []string{"preflight", root}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	requireContains(t, out, "[OK]")
	requireContains(t, out, "Sink (baseline)")

	missing := filepath.Join(env.baseDir, "missing", "run")
	out, _, err = runCLI(t, []string{"preflight", missing}, env.configPath)
	if err == nil {
		t.Fatal("expected preflight to fail for a missing root")
	}
	requireContains(t, out, "[ERROR]")
}

func TestApplyWatchFlagsOverridesConfig(t *testing.T) {
	cmd := newWatchCommand(newCommandContext(new(string)))
	if err := cmd.ParseFlags([]string{
		"--done", "finished", "--passed", "OK", "--array-base", "1", "-t", "0",
		"--browser", "firefox", "--sink", "http", "--sink-url", "http://eyes.local/", "-a", "key",
	}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	var flags watchFlags
	flags.done = "finished"
	flags.passed = "OK"
	flags.arrayBase = 1
	flags.browser = "firefox"
	flags.sinkKind = "http"
	flags.sinkURL = "http://eyes.local/"
	flags.apiKey = "key"

	cfg := testsupport.NewConfig(t)
	cfg.Session.MaxConcurrentSessions = 4
	if err := applyWatchFlags(cmd, cfg, flags); err != nil {
		t.Fatalf("applyWatchFlags: %v", err)
	}
	if cfg.Watch.DoneFileName != "finished" || cfg.Watch.SuccessDirName != "OK" || cfg.Watch.SequenceBaseIndex != 1 {
		t.Fatalf("watch overrides not applied: %+v", cfg.Watch)
	}
	if cfg.Session.MaxConcurrentSessions != 0 {
		t.Fatalf("expected explicit -t 0 to apply, got %d", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.Session.HostApp != "firefox" {
		t.Fatalf("expected browser override, got %q", cfg.Session.HostApp)
	}
	if cfg.Sink.Kind != config.SinkHTTP || cfg.Sink.URL != "http://eyes.local" || cfg.Sink.APIKey != "key" {
		t.Fatalf("sink overrides not applied: %+v", cfg.Sink)
	}
	if cfg.Watch.FailureDirName != "FAILED" {
		t.Fatalf("unset flags must keep config values, got %q", cfg.Watch.FailureDirName)
	}
}

func TestResolvePatternsDefaultsToCurrentDirectory(t *testing.T) {
	got, err := resolvePatterns(nil, nil)
	if err != nil {
		t.Fatalf("resolvePatterns: %v", err)
	}
	wd, _ := os.Getwd()
	if len(got) != 1 || got[0] != wd {
		t.Fatalf("expected [%s], got %v", wd, got)
	}
	got, _ = resolvePatterns(nil, []string{"/data/a", " "})
	if len(got) != 1 || got[0] != "/data/a" {
		t.Fatalf("expected configured patterns, got %v", got)
	}
}
