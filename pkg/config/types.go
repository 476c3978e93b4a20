// Package config provides configuration management for media-mirror.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
//
// The loaded Config is validated once and then treated as an immutable value
// handed to each component.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Mirroring %s into %s\n", cfg.SourceDir, cfg.DestDir)
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xmhha/media-mirror/pkg/policy"
)

// Config represents the complete application configuration.
//
// Invariants:
// - SourceDir, DestDir and LogPath are set and absolute after loading
// - SourceDir and DestDir are not nested in one another
// - At least one extension list is non-empty and the lists are disjoint
// - PollingInterval > 0 when CompatibilityMode is set
// - LockShards is a power of two.
type Config struct {
	// Use the polling watcher instead of OS notifications
	CompatibilityMode bool `yaml:"compatibility_mode" json:"compatibility_mode"`

	// Poll interval in seconds, used in compatibility mode
	PollingInterval int `yaml:"polling_interval" json:"polling_interval"`

	// Root of the watched library
	SourceDir string `yaml:"source_dir" json:"source_dir"`

	// Root of the mirror
	DestDir string `yaml:"dest_dir" json:"dest_dir"`

	// Append-only log file
	LogPath string `yaml:"log_path" json:"log_path"`

	// Comma-separated extensions mirrored as symlinks, e.g. ".mkv,.mp4"
	LinkFileExtensions string `yaml:"link_file_extensions" json:"link_file_extensions"`

	// Comma-separated extensions mirrored as copies, e.g. ".nfo,.jpg"
	CopyFileExtensions string `yaml:"copy_file_extensions" json:"copy_file_extensions"`

	// Debounce settings
	Debounce DebounceConfig `yaml:"debounce" json:"debounce"`

	// Performance settings
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DebounceConfig contains duplicate-notification suppression settings.
type DebounceConfig struct {
	// Repeated notifications for a path within this window are dropped
	Window time.Duration `yaml:"window" json:"window"`

	// How long a path's record is kept after its last event
	Retention time.Duration `yaml:"retention" json:"retention"`

	// How often expired records are evicted
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// PerformanceConfig contains performance tuning settings.
type PerformanceConfig struct {
	// Number of path-hashed dispatch locks (1 = one global lock)
	LockShards int `yaml:"lock_shards" json:"lock_shards"`

	// Extra attempts for transient link/copy failures
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Initial delay between attempts
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB file holding debounce records (empty = in memory)
	DBPath string `yaml:"db_path" json:"db_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Also write log lines to stdout
	Console bool `yaml:"console" json:"console"`
}

// PollInterval returns the polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// Policy builds the extension policy from the two extension lists.
func (c *Config) Policy() (*policy.Policy, error) {
	link, err := policy.ParseExtensions(c.LinkFileExtensions)
	if err != nil {
		return nil, fmt.Errorf("link_file_extensions: %w", err)
	}
	cp, err := policy.ParseExtensions(c.CopyFileExtensions)
	if err != nil {
		return nil, fmt.Errorf("copy_file_extensions: %w", err)
	}
	return policy.New(link, cp)
}

// Validate checks if the configuration satisfies all invariants.
//
// Every returned error wraps ErrInvalidConfig and the specific sentinel.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.SourceDir == "" {
		return ErrMissingSourceDir
	}
	if c.DestDir == "" {
		return ErrMissingDestDir
	}
	if c.LogPath == "" {
		return ErrMissingLogPath
	}
	if nested(c.SourceDir, c.DestDir) {
		return fmt.Errorf("%w: %s and %s", ErrNestedRoots, c.SourceDir, c.DestDir)
	}

	if strings.TrimSpace(c.LinkFileExtensions) == "" && strings.TrimSpace(c.CopyFileExtensions) == "" {
		return ErrNoExtensions
	}
	if _, err := c.Policy(); err != nil {
		return err
	}

	if c.CompatibilityMode && c.PollingInterval <= 0 {
		return ErrInvalidPollingInterval
	}

	// Validate debounce config
	if c.Debounce.Window <= 0 {
		return ErrInvalidDebounceWindow
	}
	if c.Debounce.Retention <= 0 {
		return ErrInvalidRetention
	}
	if c.Debounce.SweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	// Validate performance config
	shards := c.Performance.LockShards
	if shards <= 0 || shards&(shards-1) != 0 {
		return ErrInvalidLockShards
	}
	if c.Performance.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.Performance.RetryDelay <= 0 {
		return ErrInvalidRetryDelay
	}

	// Validate logging config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// nested reports whether a and b are the same directory or one contains
// the other.
func nested(a, b string) bool {
	return within(a, b) || within(b, a)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Default returns a configuration with sensible default values.
//
// SourceDir, DestDir and LogPath have no default and must be configured.
func Default() *Config {
	return &Config{
		CompatibilityMode: false,
		PollingInterval:   10,
		Debounce: DebounceConfig{
			Window:        1 * time.Second,
			Retention:     1 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Performance: PerformanceConfig{
			LockShards: 1,
			MaxRetries: 2,
			RetryDelay: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			Console: true,
		},
	}
}
