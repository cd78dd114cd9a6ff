package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightsearch/lightsearch/internal/domain"
)

// Defaults mirror the shipped daemon configuration
const (
	DefaultMaxDepth     = 10
	DefaultBatchSize    = 1000
	DefaultDebounceMs   = 200
	DefaultRenameWinMs  = 500
	DefaultLogLevel     = "info"
	DefaultDatabaseFile = "file_index.db"
)

// DefaultExcludePatterns are glob patterns discarded before any event processing
var DefaultExcludePatterns = []string{
	"*.tmp", "*.swp", "*~",
	".git/*", "__pycache__/*", "*.pyc",
	".cache/*", ".local/share/Trash/*",
}

// Default returns the built-in configuration used when no config file is
// present. The user home directory is watched by default.
func Default() *Config {
	return &Config{
		WatchPaths:      []string{"~"},
		DatabasePath:    DefaultDatabaseFile,
		ExcludePatterns: append([]string(nil), DefaultExcludePatterns...),
		MaxDepth:        DefaultMaxDepth,
		BatchSize:       DefaultBatchSize,
		DebounceMs:      DefaultDebounceMs,
		RenameWindowMs:  DefaultRenameWinMs,
		LogLevel:        DefaultLogLevel,
	}
}

// Config represents the complete configuration for lightsearch
type Config struct {
	// WatchPaths is the ordered list of roots the daemon monitors
	WatchPaths []string `mapstructure:"watch_paths"`

	// DatabasePath locates the sqlite index
	DatabasePath string `mapstructure:"database_path"`

	// ExcludePatterns are globs matched against candidate paths and base names
	ExcludePatterns []string `mapstructure:"exclude_patterns"`

	// MaxDepth bounds dynamic watch registration below each root
	MaxDepth int `mapstructure:"max_depth"`

	// BatchSize is the number of records per bulk-load transaction
	BatchSize int `mapstructure:"batch_size"`

	// DebounceMs is the hold window collapsing event bursts for one path
	DebounceMs int `mapstructure:"debounce_ms"`

	// RenameWindowMs is the window for correlating delete+create into a rename
	RenameWindowMs int `mapstructure:"rename_window_ms"`

	// RescanIntervalMinutes enables periodic reconciliation rescans while
	// the daemon runs. Zero disables the scheduler.
	RescanIntervalMinutes int `mapstructure:"rescan_interval_minutes"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	// LogFile configures optional rotated file logging
	LogFile LogFileConfig `mapstructure:"log_file"`
}

// LogFileConfig 檔案日誌設定
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if len(c.WatchPaths) == 0 {
		return fmt.Errorf("%w: watch_paths cannot be empty", domain.ErrConfigInvalid)
	}
	seen := make(map[string]bool)
	for _, p := range c.WatchPaths {
		if p == "" {
			return fmt.Errorf("%w: watch path cannot be empty", domain.ErrConfigInvalid)
		}
		expanded := ExpandPath(p)
		if seen[expanded] {
			return fmt.Errorf("%w: duplicate watch path: %s", domain.ErrConfigInvalid, p)
		}
		seen[expanded] = true
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path cannot be empty", domain.ErrConfigInvalid)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("%w: max_depth must be positive, got %d", domain.ErrConfigInvalid, c.MaxDepth)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", domain.ErrConfigInvalid, c.BatchSize)
	}
	if c.DebounceMs < 0 || c.RenameWindowMs < 0 {
		return fmt.Errorf("%w: debounce and rename windows cannot be negative", domain.ErrConfigInvalid)
	}
	if c.RescanIntervalMinutes < 0 {
		return fmt.Errorf("%w: rescan_interval_minutes cannot be negative, got %d", domain.ErrConfigInvalid, c.RescanIntervalMinutes)
	}
	return nil
}

// ExpandedWatchPaths returns the watch roots with ~ and env vars resolved
func (c *Config) ExpandedWatchPaths() []string {
	paths := make([]string, 0, len(c.WatchPaths))
	for _, p := range c.WatchPaths {
		paths = append(paths, ExpandPath(p))
	}
	return paths
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
