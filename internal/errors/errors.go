// Package errors provides centralized error definitions and handling
// utilities for the Packflow codebase. It defines domain-specific errors,
// semantic error types, constructors with context wrapping, and
// classification helpers.
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewRunError("dispatch failed", errors.ErrPackageTripped)
//
//	// Semantic error
//	err := errors.NewNotFoundError("package", "backend")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrPackageTripped) { ... }
//
//	var runErr *errors.RunError
//	if errors.As(err, &runErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience, so callers import
// only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Plan-related sentinel errors
var (
	// ErrPlanNotFound indicates that a plan document could not be found.
	ErrPlanNotFound = New("plan not found")
	// ErrPlanInvalid indicates that plan validation reported errors.
	ErrPlanInvalid = New("plan is invalid")
	// ErrDependencyCycle indicates a circular dependency between packages.
	ErrDependencyCycle = New("dependency cycle detected")
)

// Run-related sentinel errors
var (
	// ErrPackageNotFound indicates that a package id names no plan entry.
	ErrPackageNotFound = New("package not found")
	// ErrPackageTripped indicates that a package is permanently failed.
	ErrPackageTripped = New("package is tripped")
	// ErrPackageCancelled indicates a dependent cancelled by an upstream trip.
	ErrPackageCancelled = New("package cancelled by upstream failure")
	// ErrFeaturePaused indicates that the feature's pause sentinel is active.
	ErrFeaturePaused = New("feature is paused")
	// ErrResultRejected indicates that result validation rejected a result.
	ErrResultRejected = New("result rejected by validation")
	// ErrGateBlocked indicates that the integration gate is holding.
	ErrGateBlocked = New("integration gate is blocked")
	// ErrRunAborted indicates that the run stopped before completion.
	ErrRunAborted = New("feature run aborted")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// baseError provides common functionality for the error types below.
type baseError struct {
	message   string
	cause     error
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// IsRetryable returns whether the error is transient.
func (e *baseError) IsRetryable() bool { return e.retryable }

// RunError represents errors raised while driving a feature run.
type RunError struct {
	baseError
	FeatureID string
	PackageID string
}

// NewRunError creates a RunError wrapping an optional cause.
func NewRunError(message string, cause error) *RunError {
	return &RunError{baseError: baseError{message: message, cause: cause}}
}

// WithFeature adds the feature id to the error context.
func (e *RunError) WithFeature(id string) *RunError {
	e.FeatureID = id
	return e
}

// WithPackage adds the package id to the error context.
func (e *RunError) WithPackage(id string) *RunError {
	e.PackageID = id
	return e
}

// WithRetryable marks the error as transient.
func (e *RunError) WithRetryable(r bool) *RunError {
	e.retryable = r
	return e
}

func (e *RunError) Error() string {
	var parts []string
	if e.FeatureID != "" {
		parts = append(parts, fmt.Sprintf("feature=%s", e.FeatureID))
	}
	if e.PackageID != "" {
		parts = append(parts, fmt.Sprintf("package=%s", e.PackageID))
	}
	prefix := "run error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("run error [%s]", strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// CoordinationError represents errors from the coordination backend.
type CoordinationError struct {
	baseError
	Key string
}

// NewCoordinationError creates a CoordinationError. Coordination errors
// are retryable by default: lock contention is transient.
func NewCoordinationError(message string, cause error) *CoordinationError {
	return &CoordinationError{baseError: baseError{message: message, cause: cause, retryable: true}}
}

// WithKey adds the contended lock key to the error context.
func (e *CoordinationError) WithKey(key string) *CoordinationError {
	e.Key = key
	return e
}

func (e *CoordinationError) Error() string {
	prefix := "coordination error"
	if e.Key != "" {
		prefix = fmt.Sprintf("coordination error [key=%s]", e.Key)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// NotFoundError indicates that a named resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates invalid input or state, carrying the
// accumulated problem list.
type ValidationError struct {
	Subject  string
	Problems []string
}

// NewValidationError creates a ValidationError.
func NewValidationError(subject string, problems []string) *ValidationError {
	return &ValidationError{Subject: subject, Problems: problems}
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("%s is invalid", e.Subject)
	}
	return fmt.Sprintf("%s is invalid: %s", e.Subject, strings.Join(e.Problems, "; "))
}

// Is lets ValidationError match ErrPlanInvalid and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput || target == ErrPlanInvalid
}

// TimeoutError indicates that an operation exceeded its deadline.
type TimeoutError struct {
	Operation string
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(operation string) *TimeoutError {
	return &TimeoutError{Operation: operation}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Operation)
}

// Is lets TimeoutError match ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// retryable is implemented by errors that know whether they are transient.
type retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether the error is transient and the operation
// may succeed on retry. Timeouts are retryable; unknown errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if As(err, &r) {
		return r.IsRetryable()
	}
	return Is(err, ErrTimeout)
}
