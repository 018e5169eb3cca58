package preflight

import (
	"context"
	"path/filepath"

	"imagefeeder/internal/config"
	"imagefeeder/internal/sink"
	"imagefeeder/internal/supervisor"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes all applicable preflight checks. patterns are the watch
// patterns of the run; checker may be nil when the sink cannot report health.
func RunAll(ctx context.Context, cfg *config.Config, patterns []string, checker sink.HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	seen := make(map[string]bool)
	for _, pattern := range patterns {
		anchor := supervisor.Anchor(filepath.Clean(pattern))
		// processing and terminal directories are created next to the anchor
		for _, dir := range []string{anchor, filepath.Dir(anchor)} {
			if seen[dir] {
				continue
			}
			seen[dir] = true
			name := "Watch root"
			if dir != anchor {
				name = "Watch parent"
			}
			results = append(results, CheckDirectoryAccess(name, dir))
		}
	}

	if checker != nil {
		results = append(results, CheckSink(ctx, cfg.Sink.Kind, checker))
	}
	return results
}
