package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWatch() error {
	names := map[string]string{
		"watch.done_file_name":      c.Watch.DoneFileName,
		"watch.processing_dir_name": c.Watch.ProcessingDirName,
		"watch.success_dir_name":    c.Watch.SuccessDirName,
		"watch.failure_dir_name":    c.Watch.FailureDirName,
	}
	for key, value := range names {
		if value == "." || value == ".." || strings.ContainsRune(value, filepath.Separator) || strings.Contains(value, "/") {
			return fmt.Errorf("%s must be a plain file name, got %q", key, value)
		}
	}
	if c.Watch.ProcessingDirName == c.Watch.SuccessDirName || c.Watch.ProcessingDirName == c.Watch.FailureDirName {
		return errors.New("watch.processing_dir_name must differ from the success and failure directory names")
	}
	switch c.Watch.Mode {
	case WatchModePoll, WatchModeNative:
	default:
		return fmt.Errorf("watch.mode: unsupported value %q (want %q or %q)", c.Watch.Mode, WatchModePoll, WatchModeNative)
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.CloseTimeoutSeconds <= 0 {
		return errors.New("session.close_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSink() error {
	switch c.Sink.Kind {
	case SinkBaseline:
		if c.Sink.BaselineDir == "" {
			return errors.New("sink.baseline_dir must be set when sink.kind is baseline")
		}
	case SinkHTTP:
		if c.Sink.URL == "" {
			return errors.New("sink.url must be set when sink.kind is http")
		}
		if !strings.HasPrefix(c.Sink.URL, "http://") && !strings.HasPrefix(c.Sink.URL, "https://") {
			return fmt.Errorf("sink.url must be an http(s) URL, got %q", c.Sink.URL)
		}
		if c.Sink.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/imagefeeder/config.toml"
			}
			return fmt.Errorf("sink.api_key is required for the http sink. Set IMAGEFEEDER_API_KEY, pass --api-key, or edit %s", defaultPath)
		}
		if c.Sink.UploadsPerSecond < 0 {
			return errors.New("sink.uploads_per_second must not be negative")
		}
	default:
		return fmt.Errorf("sink.kind: unsupported value %q (want %q or %q)", c.Sink.Kind, SinkBaseline, SinkHTTP)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
