package event

import "time"

// Event is implemented by every published event.
type Event interface {
	// EventType identifies the event. Convention: "category.action"
	// (e.g. "package.dispatched", "feature.paused").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// PackageDispatchedEvent is emitted when a package attempt is handed to a
// worker.
type PackageDispatchedEvent struct {
	baseEvent
	FeatureID string
	PackageID string
	Attempt   int
}

func NewPackageDispatchedEvent(featureID, packageID string, attempt int) PackageDispatchedEvent {
	return PackageDispatchedEvent{
		baseEvent: newBaseEvent("package.dispatched"),
		FeatureID: featureID,
		PackageID: packageID,
		Attempt:   attempt,
	}
}

// PackageCompletedEvent is emitted when a package result is accepted.
type PackageCompletedEvent struct {
	baseEvent
	FeatureID string
	PackageID string
	Attempt   int
}

func NewPackageCompletedEvent(featureID, packageID string, attempt int) PackageCompletedEvent {
	return PackageCompletedEvent{
		baseEvent: newBaseEvent("package.completed"),
		FeatureID: featureID,
		PackageID: packageID,
		Attempt:   attempt,
	}
}

// PackageFailedEvent is emitted when an attempt fails or its result is
// rejected.
type PackageFailedEvent struct {
	baseEvent
	FeatureID string
	PackageID string
	Attempt   int
	ErrorCode string
	WillRetry bool
}

func NewPackageFailedEvent(featureID, packageID string, attempt int, errorCode string, willRetry bool) PackageFailedEvent {
	return PackageFailedEvent{
		baseEvent: newBaseEvent("package.failed"),
		FeatureID: featureID,
		PackageID: packageID,
		Attempt:   attempt,
		ErrorCode: errorCode,
		WillRetry: willRetry,
	}
}

// PackageTrippedEvent is emitted when a package is permanently failed.
type PackageTrippedEvent struct {
	baseEvent
	FeatureID string
	PackageID string
	Cancelled []string // transitive dependents marked will-not-run
}

func NewPackageTrippedEvent(featureID, packageID string, cancelled []string) PackageTrippedEvent {
	return PackageTrippedEvent{
		baseEvent: newBaseEvent("package.tripped"),
		FeatureID: featureID,
		PackageID: packageID,
		Cancelled: cancelled,
	}
}

// PackageStuckEvent is emitted when a heartbeat goes silent past the
// package's timeout. Advisory, non-terminal.
type PackageStuckEvent struct {
	baseEvent
	FeatureID string
	PackageID string
	LastSeen  time.Time
}

func NewPackageStuckEvent(featureID, packageID string, lastSeen time.Time) PackageStuckEvent {
	return PackageStuckEvent{
		baseEvent: newBaseEvent("package.stuck"),
		FeatureID: featureID,
		PackageID: packageID,
		LastSeen:  lastSeen,
	}
}

// LockAcquiredEvent is emitted when the coordination backend grants a lock.
type LockAcquiredEvent struct {
	baseEvent
	Owner string
	Key   string
}

func NewLockAcquiredEvent(owner, key string) LockAcquiredEvent {
	return LockAcquiredEvent{baseEvent: newBaseEvent("lock.acquired"), Owner: owner, Key: key}
}

// LockReleasedEvent is emitted when a lock is released.
type LockReleasedEvent struct {
	baseEvent
	Owner string
	Key   string
}

func NewLockReleasedEvent(owner, key string) LockReleasedEvent {
	return LockReleasedEvent{baseEvent: newBaseEvent("lock.released"), Owner: owner, Key: key}
}

// FeaturePausedEvent is emitted when the pause sentinel is published.
type FeaturePausedEvent struct {
	baseEvent
	FeatureID string
	Reason    string
}

func NewFeaturePausedEvent(featureID, reason string) FeaturePausedEvent {
	return FeaturePausedEvent{baseEvent: newBaseEvent("feature.paused"), FeatureID: featureID, Reason: reason}
}

// FeatureResumedEvent is emitted when the pause sentinel is cleared.
type FeatureResumedEvent struct {
	baseEvent
	FeatureID string
}

func NewFeatureResumedEvent(featureID string) FeatureResumedEvent {
	return FeatureResumedEvent{baseEvent: newBaseEvent("feature.resumed"), FeatureID: featureID}
}

// EscalationRaisedEvent is emitted when an escalation routes through the
// handler.
type EscalationRaisedEvent struct {
	baseEvent
	FeatureID    string
	PackageID    string
	EscalationID string
	Kind         string
	Action       string
}

func NewEscalationRaisedEvent(featureID, packageID, escalationID, kind, action string) EscalationRaisedEvent {
	return EscalationRaisedEvent{
		baseEvent:    newBaseEvent("escalation.raised"),
		FeatureID:    featureID,
		PackageID:    packageID,
		EscalationID: escalationID,
		Kind:         kind,
		Action:       action,
	}
}

// GateEvaluatedEvent is emitted after each integration gate check.
type GateEvaluatedEvent struct {
	baseEvent
	FeatureID string
	Status    string
	Blocking  []string
}

func NewGateEvaluatedEvent(featureID, status string, blocking []string) GateEvaluatedEvent {
	return GateEvaluatedEvent{
		baseEvent: newBaseEvent("gate.evaluated"),
		FeatureID: featureID,
		Status:    status,
		Blocking:  blocking,
	}
}
