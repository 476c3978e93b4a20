package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrInvalidConfig is wrapped by every validation error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingSourceDir is returned when source_dir is not set.
	ErrMissingSourceDir = errors.New("source_dir is required")

	// ErrMissingDestDir is returned when dest_dir is not set.
	ErrMissingDestDir = errors.New("dest_dir is required")

	// ErrMissingLogPath is returned when log_path is not set.
	ErrMissingLogPath = errors.New("log_path is required")

	// ErrNestedRoots is returned when source and destination overlap.
	ErrNestedRoots = errors.New("source_dir and dest_dir must not be nested")

	// ErrNoExtensions is returned when both extension lists are empty.
	ErrNoExtensions = errors.New("at least one of link_file_extensions or copy_file_extensions is required")

	// ErrInvalidPollingInterval is returned when polling interval is <= 0 in compatibility mode.
	ErrInvalidPollingInterval = errors.New("invalid polling interval: must be > 0 in compatibility mode")

	// ErrInvalidDebounceWindow is returned when the debounce window is <= 0.
	ErrInvalidDebounceWindow = errors.New("invalid debounce window: must be > 0")

	// ErrInvalidRetention is returned when debounce retention is <= 0.
	ErrInvalidRetention = errors.New("invalid debounce retention: must be > 0")

	// ErrInvalidSweepInterval is returned when the sweep interval is <= 0.
	ErrInvalidSweepInterval = errors.New("invalid sweep interval: must be > 0")

	// ErrInvalidLockShards is returned when lock shards is not a power of two.
	ErrInvalidLockShards = errors.New("invalid lock shards: must be a power of two")

	// ErrInvalidMaxRetries is returned when max retries is < 0.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be >= 0")

	// ErrInvalidRetryDelay is returned when retry delay is <= 0.
	ErrInvalidRetryDelay = errors.New("invalid retry delay: must be > 0")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrInvalidEnvVar is returned when an environment override cannot be parsed.
	ErrInvalidEnvVar = errors.New("invalid environment variable")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
