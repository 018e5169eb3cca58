package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagefeeder/internal/daemonrun"
	"imagefeeder/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight [GLOB...]",
		Short: "Check directories and sink reachability before watching",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.validConfig()
			if err != nil {
				return err
			}
			patterns, err := resolvePatterns(args, cfg.Watch.Patterns)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			client, err := daemonrun.BuildSink(cfg)
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg, patterns, client)
			out := cmd.OutOrStdout()
			writeChecks(out, paletteFor(out), ctx.configPath, results)
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}
