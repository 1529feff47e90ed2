package escalation

import (
	"sync"
	"time"
)

// AuditEntry records one handled escalation for the feature's audit trail.
type AuditEntry struct {
	EscalationID string    `json:"escalation_id"`
	Kind         Kind      `json:"type"`
	Decision     Decision  `json:"decision"`
	HandledAt    time.Time `json:"handled_at"`
}

// Handler maps escalations to decisions and keeps the audit log. The
// decision is a pure function of the escalation kind; the audit log is the
// handler's only side effect.
type Handler struct {
	mu  sync.Mutex
	log []AuditEntry
	now func() time.Time
}

// NewHandler creates an escalation handler with an empty audit log.
func NewHandler() *Handler {
	return &Handler{now: func() time.Time { return time.Now().UTC() }}
}

// Handle returns the deterministic decision for an escalation and appends
// the outcome to the audit log. Repeated calls with the same kind yield
// identical decision fields.
func (h *Handler) Handle(esc Escalation) Decision {
	decision := Decide(esc)

	h.mu.Lock()
	h.log = append(h.log, AuditEntry{
		EscalationID: esc.ID,
		Kind:         esc.Kind,
		Decision:     decision,
		HandledAt:    h.now(),
	})
	h.mu.Unlock()

	return decision
}

// AuditLog returns a copy of the handled-escalation log in order.
func (h *Handler) AuditLog() []AuditEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]AuditEntry(nil), h.log...)
}

// Reset clears the audit log. Intended for tests.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = nil
}

// Decide maps an escalation kind to its response. The switch is exhaustive
// over the closed kind enumeration; an unrecognized kind falls through to
// require_human rather than being dropped.
func Decide(esc Escalation) Decision {
	switch esc.Kind {
	case ContractRevisionRequired:
		return Decision{
			Action:           ActionPauseAndReschedule,
			Reason:           "contract revision required; pause the feature and reschedule against the new contracts",
			PauseRequired:    true,
			RevisionBump:     BumpContracts,
			ImpactedPackages: esc.ImpactedPackages,
		}
	case PlanRevisionRequired:
		return Decision{
			Action:           ActionPauseAndReplan,
			Reason:           "plan revision required; pause the feature and replan",
			PauseRequired:    true,
			RevisionBump:     BumpPlan,
			ImpactedPackages: esc.ImpactedPackages,
		}
	case ResourceConflict:
		return Decision{
			Action:       ActionRetryPackage,
			Reason:       "transient resource conflict; retry the package",
			RevisionBump: BumpNone,
		}
	case VerificationInfeasible:
		return Decision{
			Action:        ActionFailPackage,
			Reason:        "declared verification cannot be run; fail the package for human review",
			RevisionBump:  BumpNone,
			RequiresHuman: true,
		}
	case ScopeViolation:
		return Decision{
			Action:       ActionFailPackage,
			Reason:       "package modified files outside its declared scope",
			RevisionBump: BumpNone,
		}
	case EnvResourceConflict:
		return Decision{
			Action:       ActionRetryPackage,
			Reason:       "environment resource contention; retry the package",
			RevisionBump: BumpNone,
		}
	case SecurityEscalation:
		return Decision{
			Action:           ActionRequireHuman,
			Reason:           "security signal; pause the feature and require a human",
			PauseRequired:    true,
			RevisionBump:     BumpNone,
			ImpactedPackages: esc.ImpactedPackages,
			RequiresHuman:    true,
		}
	case FlakyTestQuarantineRequest:
		return Decision{
			Action:       ActionQuarantineAndRetry,
			Reason:       "flaky test quarantine requested; quarantine and retry",
			RevisionBump: BumpNone,
		}
	default:
		return Decision{
			Action:        ActionRequireHuman,
			Reason:        "unrecognized escalation type; require a human",
			RevisionBump:  BumpNone,
			RequiresHuman: true,
		}
	}
}
