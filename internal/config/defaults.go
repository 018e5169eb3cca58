package config

// Sink kinds.
const (
	SinkBaseline = "baseline"
	SinkHTTP     = "http"
)

// Observer modes.
const (
	WatchModePoll   = "poll"
	WatchModeNative = "native"
)

const (
	defaultStateDir              = "~/.local/share/imagefeeder"
	defaultLogDir                = "~/.local/share/imagefeeder/logs"
	defaultBaselineDir           = "~/.local/share/imagefeeder/baselines"
	defaultDoneFileName          = "done"
	defaultProcessingDirName     = "IN-PROGRESS"
	defaultSuccessDirName        = "DONE"
	defaultFailureDirName        = "FAILED"
	defaultWatchMode             = WatchModePoll
	defaultPollIntervalMillis    = 250
	defaultSettleMillis          = 250
	defaultMoveTimeoutSeconds    = 30
	defaultMaxConcurrentSessions = 6
	defaultAppName               = "app"
	defaultHostSeparator         = "_"
	defaultCloseTimeoutSeconds   = 120
	defaultSinkKind              = SinkBaseline
	defaultSinkRequestTimeout    = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "warn"
	defaultLogRetentionDays      = 30
	defaultNotifyRequestTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Watch: Watch{
			DoneFileName:       defaultDoneFileName,
			ProcessingDirName:  defaultProcessingDirName,
			SuccessDirName:     defaultSuccessDirName,
			FailureDirName:     defaultFailureDirName,
			Mode:               defaultWatchMode,
			PollIntervalMillis: defaultPollIntervalMillis,
			SettleMillis:       defaultSettleMillis,
			IngestExisting:     true,
			MoveTimeoutSeconds: defaultMoveTimeoutSeconds,
		},
		Session: Session{
			MaxConcurrentSessions: defaultMaxConcurrentSessions,
			AppName:               defaultAppName,
			HostSeparator:         defaultHostSeparator,
			CloseTimeoutSeconds:   defaultCloseTimeoutSeconds,
		},
		Sink: Sink{
			Kind:                  defaultSinkKind,
			RequestTimeoutSeconds: defaultSinkRequestTimeout,
			BaselineDir:           defaultBaselineDir,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SessionOutcome: true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Journal: Journal{
			Enabled: true,
		},
	}
}
