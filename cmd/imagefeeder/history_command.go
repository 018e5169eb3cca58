package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"imagefeeder/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sessions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.validConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := cfg.JournalPath()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No sessions recorded yet")
				return nil
			}

			store, err := journal.Open(path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				historyColumns,
				historyRows(records),
				nil,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}

var historyColumns = []column{
	{title: "Started"},
	{title: "Root"},
	{title: "State"},
	{title: "Outcome"},
	{title: "Verdict"},
	{title: "Forwarded", numeric: true},
	{title: "Dropped", numeric: true},
	{title: "Duration", numeric: true},
	{title: "Recovered"},
}

func historyRows(records []journal.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Root,
			rec.State,
			dashIfEmpty(rec.Outcome),
			dashIfEmpty(rec.Verdict),
			strconv.Itoa(rec.Forwarded),
			strconv.Itoa(rec.Dropped),
			rec.Duration().Round(time.Second).String(),
			yesNo(rec.Recovered),
		})
	}
	return rows
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
