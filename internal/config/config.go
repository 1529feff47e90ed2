package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete packflow configuration
type Config struct {
	Run          RunConfig          `mapstructure:"run"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// RunConfig controls feature run behavior
type RunConfig struct {
	// DefaultTimeoutMinutes is the heartbeat timeout applied to packages
	// that do not declare their own (default: 30)
	DefaultTimeoutMinutes int `mapstructure:"default_timeout_minutes"`
	// HeartbeatPollSeconds is how often the stuck-package sweep runs (default: 15)
	HeartbeatPollSeconds int `mapstructure:"heartbeat_poll_seconds"`
	// MaxParallel is the maximum number of packages dispatched concurrently,
	// 0 = unbounded
	MaxParallel int `mapstructure:"max_parallel"`
	// DefaultRetryBudget applies to packages that omit retry_budget (default: 1)
	DefaultRetryBudget int `mapstructure:"default_retry_budget"`
}

// CoordinationConfig controls the lock backend
type CoordinationConfig struct {
	// Backend selects the coordination backend
	// Options: "memory", "dir"
	Backend string `mapstructure:"backend"`
	// LockDir is the directory used by the "dir" backend for lock files
	// and pause sentinels
	LockDir string `mapstructure:"lock_dir"`
}

// LoggingConfig controls structured log output
type LoggingConfig struct {
	// Enabled turns file logging on or off
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the log file size limit before rotation (0 = no rotation)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// MonitorConfig controls the terminal run monitor
type MonitorConfig struct {
	// Enabled turns the live monitor on for `packflow run`
	Enabled bool `mapstructure:"enabled"`
	// RefreshIntervalMs is the monitor redraw interval in milliseconds
	RefreshIntervalMs int `mapstructure:"refresh_interval_ms"`
	// MaxEventLines limits how many recent events the monitor displays
	MaxEventLines int `mapstructure:"max_event_lines"`
}

// PathsConfig controls filesystem locations
type PathsConfig struct {
	// RunDir is where run logs and result records are written.
	// Relative paths resolve against the working directory.
	RunDir string `mapstructure:"run_dir"`
}

// HeartbeatPollInterval returns the sweep interval as a Duration.
func (c *RunConfig) HeartbeatPollInterval() time.Duration {
	return time.Duration(c.HeartbeatPollSeconds) * time.Second
}

// DefaultTimeout returns the default package timeout as a Duration.
func (c *RunConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMinutes) * time.Minute
}

// RefreshInterval returns the monitor redraw interval as a Duration.
func (c *MonitorConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Run: RunConfig{
			DefaultTimeoutMinutes: 30,
			HeartbeatPollSeconds:  15,
			MaxParallel:           0,
			DefaultRetryBudget:    1,
		},
		Coordination: CoordinationConfig{
			Backend: "memory",
			LockDir: ".packflow/locks",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Monitor: MonitorConfig{
			Enabled:           true,
			RefreshIntervalMs: 250,
			MaxEventLines:     12,
		},
		Paths: PathsConfig{
			RunDir: ".packflow/runs",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("run.default_timeout_minutes", defaults.Run.DefaultTimeoutMinutes)
	viper.SetDefault("run.heartbeat_poll_seconds", defaults.Run.HeartbeatPollSeconds)
	viper.SetDefault("run.max_parallel", defaults.Run.MaxParallel)
	viper.SetDefault("run.default_retry_budget", defaults.Run.DefaultRetryBudget)

	viper.SetDefault("coordination.backend", defaults.Coordination.Backend)
	viper.SetDefault("coordination.lock_dir", defaults.Coordination.LockDir)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("monitor.enabled", defaults.Monitor.Enabled)
	viper.SetDefault("monitor.refresh_interval_ms", defaults.Monitor.RefreshIntervalMs)
	viper.SetDefault("monitor.max_event_lines", defaults.Monitor.MaxEventLines)

	viper.SetDefault("paths.run_dir", defaults.Paths.RunDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "packflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".packflow"
	}
	return filepath.Join(home, ".config", "packflow")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
