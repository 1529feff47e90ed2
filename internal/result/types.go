// Package result defines the canonical work-queue result record and the
// validator that decides whether a completed package's result is
// acceptable.
//
// A result is immutable once created: a retry produces a new result with
// an incremented attempt number, never a mutation of the old one. Results
// are the durable evidence of a package attempt, persisted keyed by
// (feature_id, package_id, attempt).
package result

import (
	"time"

	"github.com/packflow/packflow/internal/escalation"
	"github.com/packflow/packflow/internal/plan"
)

// SchemaVersion is the current result record schema.
const SchemaVersion = "1.0"

// Status enumerates the lifecycle states of a package attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid returns true if the status is a recognized value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Evidence carries the artifacts and metrics a verification step produced.
type Evidence struct {
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Metrics   map[string]any    `json:"metrics,omitempty"`
}

// StepResult is the outcome of one executed verification step.
type StepResult struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Command  string   `json:"command"`
	ExitCode int      `json:"exit_code"`
	Passed   bool     `json:"passed"`
	Evidence Evidence `json:"evidence"`
}

// VerificationResult aggregates the executed steps. Passed must equal the
// logical AND over all step outcomes; the validator rejects mismatches in
// either direction.
type VerificationResult struct {
	Tier   string       `json:"tier"`
	Passed bool         `json:"passed"`
	Steps  []StepResult `json:"steps"`
}

// ScopeCheck echoes the executor's scope enforcement outcome.
type ScopeCheck struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations,omitempty"`
}

// VCSRefs identifies the version-control state the work landed on.
type VCSRefs struct {
	BaseRef    string `json:"base_ref,omitempty"`
	HeadCommit string `json:"head_commit,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Worktree   string `json:"worktree,omitempty"`
}

// WorkQueueResult is the canonical record of one package attempt.
type WorkQueueResult struct {
	SchemaVersion     string                  `json:"schema_version"`
	FeatureID         string                  `json:"feature_id"`
	PackageID         string                  `json:"package_id"`
	Attempt           int                     `json:"attempt"`
	PlanRevision      int                     `json:"plan_revision"`
	ContractsRevision int                     `json:"contracts_revision"`
	Status            Status                  `json:"status"`
	Locks             plan.Locks              `json:"locks"`
	Scope             plan.Scope              `json:"scope"`
	FilesModified     []string                `json:"files_modified"`
	ScopeCheck        ScopeCheck              `json:"scope_check"`
	VCS               VCSRefs                 `json:"vcs"`
	Verification      VerificationResult      `json:"verification"`
	Escalations       []escalation.Escalation `json:"escalations,omitempty"`
	Outputs           map[string]any          `json:"outputs,omitempty"`
	ErrorCode         string                  `json:"error_code,omitempty"`
	Notes             string                  `json:"notes,omitempty"`
	StartedAt         time.Time               `json:"started_at,omitzero"`
	FinishedAt        time.Time               `json:"finished_at,omitzero"`
}

// HasOutputKey reports whether a declared output key is discoverable
// anywhere in the result: a top-level output, a step metric, or a step
// artifact.
func (r *WorkQueueResult) HasOutputKey(key string) bool {
	if _, ok := r.Outputs[key]; ok {
		return true
	}
	for i := range r.Verification.Steps {
		step := &r.Verification.Steps[i]
		if _, ok := step.Evidence.Metrics[key]; ok {
			return true
		}
		if _, ok := step.Evidence.Artifacts[key]; ok {
			return true
		}
	}
	return false
}
