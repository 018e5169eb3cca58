package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"imagefeeder/internal/fileutil"
	"imagefeeder/internal/logging"
	"imagefeeder/internal/retry"
	"imagefeeder/internal/services"
)

// ErrDestinationIsDir is returned when a file move targets an existing directory.
var ErrDestinationIsDir = errors.New("destination is a directory")

// MoveOptions tunes MoveFile.
type MoveOptions struct {
	// Timeout bounds each wait phase. Zero waits until the context is cancelled.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (o MoveOptions) policy() retry.Policy {
	return retry.Policy{Timeout: o.Timeout}
}

// MoveFile moves the regular file src to dst, creating parent directories as
// needed and replacing any existing file at dst. It returns once dst holds the
// file and src no longer exists. A source that vanished is not an error when dst
// already exists, since another actor may have completed the move.
func MoveFile(ctx context.Context, src, dst string, opts MoveOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Debug("moving file", logging.String("src", src), logging.String("dst", dst))

	if err := clearDestination(ctx, dst, opts.policy()); err != nil {
		return services.Wrap(services.ErrFilesystem, "staging", "clear destination", dst, err)
	}

	crossDevice := false
	err := retry.Until(ctx, opts.policy(), func() (bool, error) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return false, fmt.Errorf("create destination directory: %w", err)
		}
		err := os.Rename(src, dst)
		switch {
		case err == nil:
			return true, nil
		case fileutil.IsCrossDevice(err):
			crossDevice = true
			return true, nil
		case errors.Is(err, os.ErrNotExist):
			srcGone := !exists(src)
			if srcGone && exists(dst) {
				logger.Debug("source already moved", logging.String("src", src))
				return true, nil
			}
			if srcGone {
				return false, fmt.Errorf("source vanished before move: %w", err)
			}
			// destination parent removed underneath us; recreate and retry
			return false, nil
		default:
			return false, err
		}
	})
	if err != nil {
		return services.Wrap(services.ErrFilesystem, "staging", "move file", src, err)
	}

	if crossDevice {
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return services.Wrap(services.ErrFilesystem, "staging", "copy across devices", src, err)
		}
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrFilesystem, "staging", "remove source after copy", src, err)
		}
	}

	if err := retry.Until(ctx, opts.policy(), func() (bool, error) {
		return !exists(src), nil
	}); err != nil {
		return services.Wrap(services.ErrTimeout, "staging", "await source removal", src, err)
	}
	return nil
}

func clearDestination(ctx context.Context, dst string, policy retry.Policy) error {
	return retry.Until(ctx, policy, func() (bool, error) {
		info, err := os.Lstat(dst)
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if info.IsDir() {
			return false, ErrDestinationIsDir
		}
		if err := removeFile(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		return !exists(dst), nil
	})
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
