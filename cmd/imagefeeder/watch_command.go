package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imagefeeder/internal/config"
	"imagefeeder/internal/daemonrun"
	"imagefeeder/internal/sink"
)

type watchFlags struct {
	done          string
	failed        string
	passed        string
	inProgress    string
	arrayBase     uint64
	tests         int
	sep           string
	hostOS        string
	browser       string
	app           string
	test          string
	batch         string
	apiKey        string
	logLevel      string
	sinkKind      string
	sinkURL       string
	mode          string
	skipPreflight bool
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch [GLOB...]",
		Short: "Watch directories and forward their images to the sink",
		Long: `Watch each GLOB (default: the configured patterns, or the current directory).

Every matching directory becomes a session. Images are moved into the
in-progress directory, forwarded to the sink in sequence order, and the
directory is filed under the passed or failed directory once the done file
appears and the sink reports a verdict.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyWatchFlags(cmd, cfg, flags); err != nil {
				return err
			}

			patterns, err := resolvePatterns(args, cfg.Watch.Patterns)
			if err != nil {
				return err
			}

			summary, err := daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				Patterns:      patterns,
				SkipPreflight: flags.skipPreflight,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printRunSummary(out, summary)
			_, failed, aborted := summary.Counts()
			if failed+aborted > 0 {
				return fmt.Errorf("%d of %d session(s) did not pass", failed+aborted, len(summary.Results))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.done, "done", "", "End a session when FILENAME is created")
	f.StringVar(&flags.failed, "failed", "", "Put files into DIRNAME when a session fails")
	f.StringVar(&flags.passed, "passed", "", "Put files into DIRNAME when a session passes")
	f.StringVar(&flags.inProgress, "in-progress", "", "Put files into DIRNAME while they are processed")
	f.Uint64Var(&flags.arrayBase, "array-base", 0, "Start forwarding images from index N")
	f.IntVarP(&flags.tests, "tests", "t", 0, "Run N sessions concurrently (N <= 0 means unlimited)")
	f.StringVar(&flags.sep, "sep", "", "Derive host OS and browser from the nearest parent directory split on PATTERN")
	f.StringVar(&flags.hostOS, "os", "", "Set the host OS (overrides --sep)")
	f.StringVar(&flags.browser, "browser", "", "Set the host browser (overrides --sep)")
	f.StringVar(&flags.app, "app", "", "Run against the APP baseline")
	f.StringVar(&flags.test, "test", "", "Set the test name (default: the watched path)")
	f.StringVar(&flags.batch, "batch", "", "Batch all directories together as BATCH")
	f.StringVarP(&flags.apiKey, "api-key", "a", "", "API key for the http sink")
	f.StringVar(&flags.logLevel, "log", "", "Set the logging level (debug, info, warn, error)")
	f.StringVar(&flags.sinkKind, "sink", "", "Sink implementation: baseline or http")
	f.StringVar(&flags.sinkURL, "sink-url", "", "Base URL of the http sink")
	f.StringVar(&flags.mode, "mode", "", "Observer mode: poll or native")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "Skip startup checks")
	return cmd
}

// applyWatchFlags copies explicitly set flags onto cfg and finalizes it.
func applyWatchFlags(cmd *cobra.Command, cfg *config.Config, flags watchFlags) error {
	changed := cmd.Flags().Changed
	if changed("done") {
		cfg.Watch.DoneFileName = flags.done
	}
	if changed("failed") {
		cfg.Watch.FailureDirName = flags.failed
	}
	if changed("passed") {
		cfg.Watch.SuccessDirName = flags.passed
	}
	if changed("in-progress") {
		cfg.Watch.ProcessingDirName = flags.inProgress
	}
	if changed("array-base") {
		cfg.Watch.SequenceBaseIndex = flags.arrayBase
	}
	if changed("tests") {
		cfg.Session.MaxConcurrentSessions = flags.tests
	}
	if changed("sep") {
		cfg.Session.HostSeparator = flags.sep
	}
	if changed("os") {
		cfg.Session.HostOS = flags.hostOS
	}
	if changed("browser") {
		cfg.Session.HostApp = flags.browser
	}
	if changed("app") {
		cfg.Session.AppName = flags.app
	}
	if changed("test") {
		cfg.Session.TestName = flags.test
	}
	if changed("batch") {
		cfg.Session.Batch = flags.batch
	}
	if changed("api-key") {
		cfg.Sink.APIKey = flags.apiKey
	}
	if changed("log") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("sink") {
		cfg.Sink.Kind = flags.sinkKind
	}
	if changed("sink-url") {
		cfg.Sink.URL = flags.sinkURL
	}
	if changed("mode") {
		cfg.Watch.Mode = flags.mode
	}
	return cfg.Finalize()
}

func resolvePatterns(args, configured []string) ([]string, error) {
	patterns := args
	if len(patterns) == 0 {
		patterns = configured
	}
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		expanded, err := config.ExpandPath(pattern)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", pattern, err)
		}
		out = append(out, expanded)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}
	return out, nil
}

var summaryColumns = []column{
	{title: "Root"},
	{title: "Outcome"},
	{title: "Verdict"},
	{title: "Forwarded", numeric: true},
	{title: "Dropped", numeric: true},
	{title: "Duration", numeric: true},
	{title: "Filed Under"},
}

func printRunSummary(out io.Writer, summary daemonrun.Summary) {
	if summary.Recovered > 0 {
		fmt.Fprintf(out, "Recovered %d interrupted session(s) from a previous run\n", summary.Recovered)
	}
	if len(summary.Results) == 0 {
		fmt.Fprintln(out, "No sessions ran")
		return
	}
	colors := paletteFor(out)
	rows := make([][]string, 0, len(summary.Results))
	var forwarded, dropped int
	for _, r := range summary.Results {
		verdict := "-"
		if r.Verdict != sink.VerdictUnknown {
			verdict = r.Verdict.String()
		}
		dest := "-"
		if r.Relocated {
			dest = filepath.Dir(r.TerminalDir)
		}
		forwarded += r.Forwarded
		dropped += r.Dropped
		rows = append(rows, []string{
			r.Root.Path,
			colors.outcome(r.Outcome),
			verdict,
			strconv.Itoa(r.Forwarded),
			strconv.Itoa(r.Dropped),
			r.Duration().Round(time.Millisecond).String(),
			dest,
		})
	}
	fmt.Fprintln(out, renderTable(summaryColumns, rows, []string{
		"Total", "", "", strconv.Itoa(forwarded), strconv.Itoa(dropped), "", "",
	}))
	committed, failed, aborted := summary.Counts()
	fmt.Fprintf(out, "%d passed, %d failed, %d aborted in %s\n", committed, failed, aborted, summary.Duration.Round(time.Millisecond))
	if summary.LogPath != "" {
		fmt.Fprintf(out, "Log: %s\n", summary.LogPath)
	}
}
