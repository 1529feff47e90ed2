// Package escalation defines typed escalation signals and the
// deterministic handler that maps each signal to an orchestrator response.
//
// Escalations are non-pass/fail signals raised during execution that need
// an orchestrator-level response rather than a simple retry. Every kind
// has exactly one response; the mapping is an exhaustive switch over a
// closed enumeration so a new kind without a handler is a compile-time
// gap, not a silent default. Outcomes must be reproducible, so nothing
// here is heuristic or conversational.
package escalation

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the recognized escalation signals.
type Kind string

const (
	ContractRevisionRequired   Kind = "CONTRACT_REVISION_REQUIRED"
	PlanRevisionRequired       Kind = "PLAN_REVISION_REQUIRED"
	ResourceConflict           Kind = "RESOURCE_CONFLICT"
	VerificationInfeasible     Kind = "VERIFICATION_INFEASIBLE"
	ScopeViolation             Kind = "SCOPE_VIOLATION"
	EnvResourceConflict        Kind = "ENV_RESOURCE_CONFLICT"
	SecurityEscalation         Kind = "SECURITY_ESCALATION"
	FlakyTestQuarantineRequest Kind = "FLAKY_TEST_QUARANTINE_REQUEST"
)

// Kinds returns every recognized escalation kind.
func Kinds() []Kind {
	return []Kind{
		ContractRevisionRequired,
		PlanRevisionRequired,
		ResourceConflict,
		VerificationInfeasible,
		ScopeViolation,
		EnvResourceConflict,
		SecurityEscalation,
		FlakyTestQuarantineRequest,
	}
}

// IsValid returns true if the kind is a recognized value.
func (k Kind) IsValid() bool {
	switch k {
	case ContractRevisionRequired, PlanRevisionRequired, ResourceConflict,
		VerificationInfeasible, ScopeViolation, EnvResourceConflict,
		SecurityEscalation, FlakyTestQuarantineRequest:
		return true
	}
	return false
}

// Severity classifies how urgent an escalation is. It does not influence
// the decision; the kind alone determines the response.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Escalation is a typed signal raised by a worker mid-execution.
type Escalation struct {
	ID               string    `json:"escalation_id"`
	FeatureID        string    `json:"feature_id"`
	PackageID        string    `json:"package_id"`
	Kind             Kind      `json:"type"`
	Severity         Severity  `json:"severity"`
	Summary          string    `json:"summary"`
	DetectedAt       time.Time `json:"detected_at"`
	ImpactedPackages []string  `json:"impacted_packages,omitempty"`
}

// New creates an escalation with a fresh id and detection timestamp.
func New(featureID, packageID string, kind Kind, severity Severity, summary string) Escalation {
	return Escalation{
		ID:         uuid.NewString(),
		FeatureID:  featureID,
		PackageID:  packageID,
		Kind:       kind,
		Severity:   severity,
		Summary:    summary,
		DetectedAt: time.Now().UTC(),
	}
}

// Action enumerates the orchestrator responses a decision can demand.
type Action string

const (
	ActionPauseAndReschedule Action = "pause_and_reschedule"
	ActionPauseAndReplan     Action = "pause_and_replan"
	ActionRetryPackage       Action = "retry_package"
	ActionFailPackage        Action = "fail_package"
	ActionRequireHuman       Action = "require_human"
	ActionQuarantineAndRetry Action = "quarantine_and_retry"
)

// RevisionBump names which revision counter a decision invalidates.
type RevisionBump string

const (
	BumpNone      RevisionBump = "none"
	BumpContracts RevisionBump = "contracts"
	BumpPlan      RevisionBump = "plan"
)

// Decision is the orchestrator response to one escalation. A pause
// decision, once acted on, publishes the feature's pause sentinel; a
// revision bump invalidates every in-flight result carrying the old
// number.
type Decision struct {
	Action           Action       `json:"action"`
	Reason           string       `json:"reason"`
	PauseRequired    bool         `json:"pause_required"`
	RevisionBump     RevisionBump `json:"revision_bump"`
	ImpactedPackages []string     `json:"impacted_packages,omitempty"`
	RequiresHuman    bool         `json:"requires_human"`
}
