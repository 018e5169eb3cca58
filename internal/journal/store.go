package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages session persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Begin inserts a new session row.
func (s *Store) Begin(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("journal: session id is required")
	}
	now := time.Now().UTC()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	return s.exec(ctx, `INSERT INTO sessions
		(id, root, staging_dir, success_dir, failure_dir, state, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Root, rec.StagingDir, rec.SuccessDir, rec.FailureDir, rec.State,
		rec.StartedAt.UTC().Format(timeLayout), now.Format(timeLayout),
	)
}

// SetState records a lifecycle transition.
func (s *Store) SetState(ctx context.Context, id, state string) error {
	return s.update(ctx, id, "UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?",
		state, nowString(), id)
}

// SetOutcome records the session outcome before relocation starts.
func (s *Store) SetOutcome(ctx context.Context, id, outcome, verdict, errorKind, errorMessage string) error {
	return s.update(ctx, id, `UPDATE sessions
		SET outcome = ?, verdict = ?, error_kind = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		outcome, verdict, errorKind, errorMessage, nowString(), id)
}

// Complete marks the session relocated into terminalDir.
func (s *Store) Complete(ctx context.Context, id, state, terminalDir string, forwarded, dropped int) error {
	now := nowString()
	return s.update(ctx, id, `UPDATE sessions
		SET state = ?, terminal_dir = ?, forwarded = ?, dropped = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		state, terminalDir, forwarded, dropped, now, now, id)
}

// MarkRecovered completes a session that was relocated by crash recovery.
func (s *Store) MarkRecovered(ctx context.Context, id, outcome, terminalDir string) error {
	now := nowString()
	return s.update(ctx, id, `UPDATE sessions
		SET state = ?, outcome = ?, terminal_dir = ?, recovered = 1, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		outcome, outcome, terminalDir, now, now, id)
}

// Get returns a single session.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := s.query(ctx, selectColumns+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Unfinished lists sessions that never completed, oldest first.
func (s *Store) Unfinished(ctx context.Context) ([]Record, error) {
	return s.query(ctx, selectColumns+" WHERE completed_at IS NULL ORDER BY started_at ASC")
}

// Recent lists the latest sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, selectColumns+" ORDER BY started_at DESC LIMIT ?", limit)
}

// Prune deletes completed sessions older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE completed_at IS NOT NULL AND completed_at < ?",
			cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

const selectColumns = `SELECT id, root, staging_dir, success_dir, failure_dir, state, outcome,
	verdict, terminal_dir, error_kind, error_message, forwarded, dropped, recovered,
	started_at, updated_at, completed_at FROM sessions`

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	ctx = ensureContext(ctx)
	var out []Record
	err := retryOnBusy(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec              Record
		recovered        int
		started, updated string
		completed        sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.Root, &rec.StagingDir, &rec.SuccessDir, &rec.FailureDir,
		&rec.State, &rec.Outcome, &rec.Verdict, &rec.TerminalDir, &rec.ErrorKind, &rec.ErrorMessage,
		&rec.Forwarded, &rec.Dropped, &recovered, &started, &updated, &completed); err != nil {
		return Record{}, fmt.Errorf("scan session: %w", err)
	}
	rec.Recovered = recovered != 0
	rec.StartedAt = parseTime(started)
	rec.UpdatedAt = parseTime(updated)
	if completed.Valid && completed.String != "" {
		ts := parseTime(completed.String)
		rec.CompletedAt = &ts
	}
	return rec, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// ErrUnknownSession is returned when an update targets a missing row.
var ErrUnknownSession = errors.New("unknown session")

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
