package journal

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"imagefeeder/internal/logging"
	"imagefeeder/internal/staging"
)

// Outcome labels shared with the session controller.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

// RecoveryResult summarizes a Recover pass.
type RecoveryResult struct {
	Relocated []Record
	Skipped   []Record
	Errors    []error
}

// Recover relocates the staging directories of sessions that never completed.
// Sessions that recorded a committed outcome go to their success directory,
// everything else to the failure directory. A session whose staging directory
// no longer exists is assumed to have been relocated already and is only marked.
func Recover(ctx context.Context, store *Store, logger *slog.Logger) RecoveryResult {
	logger = logging.NewComponentLogger(logger, "journal")
	var result RecoveryResult

	records, err := store.Unfinished(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	for _, rec := range records {
		outcome := rec.Outcome
		if outcome != OutcomeCommitted && outcome != OutcomeFailed {
			outcome = OutcomeAborted
		}
		terminal := rec.FailureDir
		if outcome == OutcomeCommitted {
			terminal = rec.SuccessDir
		}
		recLogger := logger.With(
			logging.String(logging.FieldSessionID, rec.ID),
			logging.String(logging.FieldRoot, rec.Root),
		)

		if _, statErr := os.Stat(rec.StagingDir); errors.Is(statErr, os.ErrNotExist) {
			if err := store.MarkRecovered(ctx, rec.ID, outcome, rec.TerminalDir); err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			recLogger.Info("interrupted session had no staging directory; marked recovered",
				logging.String(logging.FieldEventType, "journal_recover_skipped"),
			)
			result.Skipped = append(result.Skipped, rec)
			continue
		}

		if err := staging.Relocate(rec.StagingDir, terminal, recLogger); err != nil {
			logging.ErrorWithContext(recLogger, "failed to relocate interrupted session", "journal_recover_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "move the staging directory manually, then rerun"),
			)
			result.Errors = append(result.Errors, err)
			continue
		}
		if err := store.MarkRecovered(ctx, rec.ID, outcome, terminal); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		rec.Outcome = outcome
		rec.TerminalDir = terminal
		logging.WarnWithContext(recLogger, "relocated interrupted session", "journal_recovered",
			logging.String(logging.FieldOutcome, outcome),
			logging.String("terminal", terminal),
			logging.String(logging.FieldImpact, "session artifacts were not fully verified by the sink"),
		)
		result.Relocated = append(result.Relocated, rec)
	}
	return result
}
