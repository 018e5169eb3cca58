package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWatch(); err != nil {
		return err
	}
	c.normalizeSession()
	if err := c.normalizeSink(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() error {
	patterns := make([]string, 0, len(c.Watch.Patterns))
	for _, pattern := range c.Watch.Patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		expanded, err := expandPath(pattern)
		if err != nil {
			return fmt.Errorf("watch.patterns: %w", err)
		}
		patterns = append(patterns, expanded)
	}
	c.Watch.Patterns = patterns

	c.Watch.DoneFileName = strings.TrimSpace(c.Watch.DoneFileName)
	if c.Watch.DoneFileName == "" {
		c.Watch.DoneFileName = defaultDoneFileName
	}
	c.Watch.ProcessingDirName = strings.TrimSpace(c.Watch.ProcessingDirName)
	if c.Watch.ProcessingDirName == "" {
		c.Watch.ProcessingDirName = defaultProcessingDirName
	}
	c.Watch.SuccessDirName = strings.TrimSpace(c.Watch.SuccessDirName)
	if c.Watch.SuccessDirName == "" {
		c.Watch.SuccessDirName = defaultSuccessDirName
	}
	c.Watch.FailureDirName = strings.TrimSpace(c.Watch.FailureDirName)
	if c.Watch.FailureDirName == "" {
		c.Watch.FailureDirName = defaultFailureDirName
	}
	c.Watch.Mode = strings.ToLower(strings.TrimSpace(c.Watch.Mode))
	if c.Watch.Mode == "" {
		c.Watch.Mode = defaultWatchMode
	}
	if c.Watch.PollIntervalMillis <= 0 {
		c.Watch.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Watch.SettleMillis < 0 {
		c.Watch.SettleMillis = 0
	}
	if c.Watch.MoveTimeoutSeconds <= 0 {
		c.Watch.MoveTimeoutSeconds = defaultMoveTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeSession() {
	c.Session.AppName = strings.TrimSpace(c.Session.AppName)
	if c.Session.AppName == "" {
		c.Session.AppName = defaultAppName
	}
	c.Session.TestName = strings.TrimSpace(c.Session.TestName)
	c.Session.Batch = strings.TrimSpace(c.Session.Batch)
	c.Session.HostOS = strings.TrimSpace(c.Session.HostOS)
	c.Session.HostApp = strings.TrimSpace(c.Session.HostApp)
	if c.Session.CloseTimeoutSeconds <= 0 {
		c.Session.CloseTimeoutSeconds = defaultCloseTimeoutSeconds
	}
}

func (c *Config) normalizeSink() error {
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	if c.Sink.Kind == "" {
		c.Sink.Kind = defaultSinkKind
	}
	c.Sink.URL = strings.TrimRight(strings.TrimSpace(c.Sink.URL), "/")
	c.Sink.APIKey = strings.TrimSpace(c.Sink.APIKey)
	if c.Sink.APIKey == "" {
		if value, ok := os.LookupEnv("IMAGEFEEDER_API_KEY"); ok {
			c.Sink.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Sink.RequestTimeoutSeconds <= 0 {
		c.Sink.RequestTimeoutSeconds = defaultSinkRequestTimeout
	}
	if strings.TrimSpace(c.Sink.BaselineDir) == "" {
		c.Sink.BaselineDir = defaultBaselineDir
	}
	var err error
	if c.Sink.BaselineDir, err = expandPath(c.Sink.BaselineDir); err != nil {
		return fmt.Errorf("sink.baseline_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
