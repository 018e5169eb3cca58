package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"imagefeeder/internal/fileutil"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/services"
)

// PrepareEmpty makes path an empty directory, deleting a directory tree or a
// stray regular file that occupies it.
func PrepareEmpty(path string) error {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear directory %s: %w", path, err)
		}
	default:
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove file %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// Relocate empties terminalDir and then moves every entry of stagingDir into it.
// The content move is the last step, so observers see either an empty terminal
// directory or the complete set. The emptied staging directory is removed
// afterwards. A missing staging directory yields an empty terminal directory.
func Relocate(stagingDir, terminalDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := PrepareEmpty(terminalDir); err != nil {
		return services.Wrap(services.ErrFilesystem, "staging", "prepare terminal directory", terminalDir, err)
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("staging directory absent; terminal left empty", logging.Path(stagingDir))
			return nil
		}
		return services.Wrap(services.ErrFilesystem, "staging", "read staging directory", stagingDir, err)
	}

	for _, entry := range entries {
		src := filepath.Join(stagingDir, entry.Name())
		dst := filepath.Join(terminalDir, entry.Name())
		if err := moveEntry(src, dst); err != nil {
			return services.Wrap(services.ErrFilesystem, "staging", "relocate entry", src, err)
		}
	}

	if err := os.Remove(stagingDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "staging directory not removed", "staging_remove_failed",
			logging.Path(stagingDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "empty staging directory remains on disk"),
		)
	}
	logger.Debug("relocated staging directory",
		logging.String("staging", stagingDir),
		logging.String("terminal", terminalDir),
		logging.Int("entries", len(entries)),
	)
	return nil
}

// CleanDebris removes regular files directly under dir. Subdirectories belong to
// other sessions and are left alone. It returns the removed paths.
func CleanDebris(dir string, logger *slog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove staging debris", "staging_cleanup_failed",
					logging.Path(path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check processing directory permissions"),
					logging.String(logging.FieldImpact, "stray file remains in the processing directory"),
				)
			}
			continue
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func moveEntry(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !fileutil.IsCrossDevice(err) {
		return err
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fileutil.CopyFileVerified(path, target)
	})
}
