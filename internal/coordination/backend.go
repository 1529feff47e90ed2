package coordination

import (
	"errors"

	"github.com/packflow/packflow/internal/plan"
)

// Sentinel errors returned by backend operations.
var (
	// ErrAlreadyHeld is returned when a lock is held by a different owner.
	ErrAlreadyHeld = errors.New("lock already held by another owner")

	// ErrNotHeld is returned when releasing a lock that is not held.
	ErrNotHeld = errors.New("lock is not held")

	// ErrNotOwner is returned when releasing a lock held by someone else.
	ErrNotOwner = errors.New("lock is held by another owner")
)

// Backend is the external coordination surface: an atomic lock table keyed
// by the file-path/logical-key union, honoring the pause sentinel key.
type Backend interface {
	// Acquire atomically claims a key for the owner. Claiming a key the
	// owner already holds is a no-op. Returns ErrAlreadyHeld if a
	// different owner holds it.
	Acquire(owner, key string) error

	// AcquireAll claims keys in the given order. On failure every key
	// claimed in this batch is rolled back and the error returned.
	AcquireAll(owner string, keys []string) error

	// Release relinquishes one key.
	Release(owner, key string) error

	// ReleaseAll relinquishes every key the owner holds.
	ReleaseAll(owner string) error

	// Holder returns the owner of a key, or ("", false) if unheld.
	Holder(key string) (string, bool)

	// Pause publishes the feature's pause sentinel on behalf of owner.
	Pause(featureID, owner string) error

	// Resume clears the feature's pause sentinel.
	Resume(featureID string) error

	// PauseActive reports whether the feature's pause sentinel is held.
	// Executors consult this before acquiring any lock and again before
	// finalizing, so no unit of work spans a pause boundary.
	PauseActive(featureID string) bool
}

// pauseKey is the sentinel key for a feature.
func pauseKey(featureID string) string {
	return plan.PauseSentinelKey(featureID)
}
