package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "run.heartbeat_poll_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidBackends returns the list of valid coordination backends
func ValidBackends() []string {
	return []string{"memory", "dir"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateCoordination()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMonitor()...)
	return errors
}

func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	if c.Run.DefaultTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.default_timeout_minutes",
			Value:   c.Run.DefaultTimeoutMinutes,
			Message: "must be zero or positive",
		})
	}
	if c.Run.HeartbeatPollSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "run.heartbeat_poll_seconds",
			Value:   c.Run.HeartbeatPollSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Run.MaxParallel < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.max_parallel",
			Value:   c.Run.MaxParallel,
			Message: "must be zero (unbounded) or positive",
		})
	}
	if c.Run.DefaultRetryBudget < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.default_retry_budget",
			Value:   c.Run.DefaultRetryBudget,
			Message: "must be zero or positive",
		})
	}

	return errors
}

func (c *Config) validateCoordination() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Coordination.Backend) {
		errors = append(errors, ValidationError{
			Field:   "coordination.backend",
			Value:   c.Coordination.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}
	if c.Coordination.Backend == "dir" && c.Coordination.LockDir == "" {
		errors = append(errors, ValidationError{
			Field:   "coordination.lock_dir",
			Value:   c.Coordination.LockDir,
			Message: "required when backend is \"dir\"",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be zero (no rotation) or positive",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be zero or positive",
		})
	}

	return errors
}

func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	if c.Monitor.RefreshIntervalMs < 50 {
		errors = append(errors, ValidationError{
			Field:   "monitor.refresh_interval_ms",
			Value:   c.Monitor.RefreshIntervalMs,
			Message: "must be at least 50",
		})
	}
	if c.Monitor.MaxEventLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.max_event_lines",
			Value:   c.Monitor.MaxEventLines,
			Message: "must be at least 1",
		})
	}

	return errors
}
