package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Paths are made absolute before validation. Returns the merged
	// configuration or an error if parsing or validation fails.
	Load() (*Config, error)

	// LoadFromFile reads a configuration file on top of the defaults,
	// without environment overrides or validation.
	LoadFromFile(path string) (*Config, error)

	// Path returns the configuration file Load reads, or "" if none.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for config file in:
// 1. ./media-mirror.yaml (current directory)
// 2. ~/.config/media-mirror/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
		getenv:     os.Getenv,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	if configPath := l.Path(); configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicitly named file must load; a searched one may vanish.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = fileCfg
		}
	}

	if err := l.applyEnvVars(cfg); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys absent from the file keep their default values.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return l.findConfigFile()
}

// findConfigFile searches for a config file in standard locations.
//
// Searches in order:
// 1. ./media-mirror.yaml
// 2. ~/.config/media-mirror/config.yaml
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./" + configFileName,
		defaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - COMPATIBILITY_MODE: true/false, selects the polling watcher
//   - POLLING_INTERVAL: poll interval in seconds
//   - SOURCE_DIR, DEST_DIR, LOG_PATH: paths
//   - LINK_FILE_EXTENSIONS, COPY_FILE_EXTENSIONS: comma-separated extensions
//   - MEDIA_MIRROR_DB: Path to the debounce database file
//   - MEDIA_MIRROR_LOG_LEVEL: Log level
func (l *loader) applyEnvVars(cfg *Config) error {
	if v := l.getenv("COMPATIBILITY_MODE"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: COMPATIBILITY_MODE=%q", ErrInvalidEnvVar, v)
		}
		cfg.CompatibilityMode = b
	}

	if v := l.getenv("POLLING_INTERVAL"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: POLLING_INTERVAL=%q", ErrInvalidEnvVar, v)
		}
		cfg.PollingInterval = n
	}

	strVars := map[string]*string{
		"SOURCE_DIR":           &cfg.SourceDir,
		"DEST_DIR":             &cfg.DestDir,
		"LOG_PATH":             &cfg.LogPath,
		"LINK_FILE_EXTENSIONS": &cfg.LinkFileExtensions,
		"COPY_FILE_EXTENSIONS": &cfg.CopyFileExtensions,
		"MEDIA_MIRROR_DB":      &cfg.Storage.DBPath,
	}
	for name, field := range strVars {
		if v := l.getenv(name); v != "" {
			*field = strings.TrimSpace(v)
		}
	}

	if logLevel := l.getenv("MEDIA_MIRROR_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}

	return nil
}

// resolvePaths makes every configured path absolute.
func (c *Config) resolvePaths() error {
	for _, p := range []*string{&c.SourceDir, &c.DestDir, &c.LogPath, &c.Storage.DBPath} {
		abs, err := absPath(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	return nil
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
