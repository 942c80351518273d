package config

const (
	defaultConfigPath             = "~/.config/facereview/config.toml"
	defaultAPIBaseURL             = "http://127.0.0.1:8000/api/v1"
	defaultRequestTimeout         = 30
	defaultStateDirFallback       = "~/.local/state/facereview"
	defaultLogDir                 = "~/.local/state/facereview/logs"
	defaultStateBackend           = "sqlite"
	defaultRecentCapacity         = 20
	defaultMaxNameLength          = 255
	defaultFindMorePrototypeCount = 50
	defaultFindMoreMaxSuggestions = 100
	defaultFindMoreMinConfidence  = 0.7
	defaultPollInterval           = 2
	defaultMonitorTimeout         = 600
	defaultMaxStreams             = 6
	defaultMaxReconnects          = 3
	defaultMaxPollFailures        = 5
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        defaultAPIBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
		},
		State: State{
			Backend: defaultStateBackend,
		},
		Recent: Recent{
			Capacity: defaultRecentCapacity,
		},
		Assign: Assign{
			MaxNameLength: defaultMaxNameLength,
		},
		Bulk: Bulk{
			FindMorePrototypeCount: defaultFindMorePrototypeCount,
		},
		Monitor: Monitor{
			PollInterval:    defaultPollInterval,
			Timeout:         defaultMonitorTimeout,
			MaxStreams:      defaultMaxStreams,
			MaxReconnects:   defaultMaxReconnects,
			MaxPollFailures: defaultMaxPollFailures,
		},
		FindMore: FindMore{
			PrototypeCount: defaultFindMorePrototypeCount,
			MaxSuggestions: defaultFindMoreMaxSuggestions,
			MinConfidence:  defaultFindMoreMinConfidence,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
