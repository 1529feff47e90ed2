// Package executor implements the worker-side protocol for one package
// attempt.
//
// The sequence a worker follows is fixed: check the feature's pause
// sentinel, acquire locks in the globally deterministic order, do the
// work, check the modified files against the declared scope, check the
// pause sentinel again, and assemble the result. Because every worker
// sorts its lock union the same way, two workers needing overlapping
// locks always request them in the same sequence, which eliminates the
// circular-wait deadlock pattern.
//
// Nothing in this package raises execution failures as errors; a failed
// attempt is represented in the result's fields.
package executor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/packflow/packflow/internal/coordination"
	"github.com/packflow/packflow/internal/escalation"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

// ErrPaused is returned when the feature's pause sentinel is active. The
// worker must abort without acquiring anything, or without finalizing if
// already mid-attempt.
var ErrPaused = errors.New("feature is paused")

// ComputeLockOrder returns the sorted, duplicate-free union of a
// package's file and logical-key locks. The output is invariant under
// reordering of the input lock lists.
func ComputeLockOrder(pkg *plan.WorkPackage) []string {
	seen := make(map[string]bool, len(pkg.Locks.Files)+len(pkg.Locks.Keys))
	var keys []string
	for _, f := range pkg.Locks.Files {
		if !seen[f] {
			seen[f] = true
			keys = append(keys, f)
		}
	}
	for _, k := range pkg.Locks.Keys {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Executor drives the protocol for one package attempt. A retry creates a
// new Executor with an incremented attempt; results are never mutated.
type Executor struct {
	backend coordination.Backend
	feature *plan.FeaturePlan
	pkg     *plan.WorkPackage
	attempt int

	acquired     map[string]bool
	acquireOrder []string

	startedAt time.Time
	now       func() time.Time
}

// New creates an executor for one attempt of a package. Attempt numbers
// start at 1 for the first dispatch.
func New(backend coordination.Backend, feature *plan.FeaturePlan, pkg *plan.WorkPackage, attempt int) *Executor {
	e := &Executor{
		backend:  backend,
		feature:  feature,
		pkg:      pkg,
		attempt:  attempt,
		acquired: make(map[string]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
	e.startedAt = e.now()
	return e
}

// Attempt returns this executor's attempt number.
func (e *Executor) Attempt() int { return e.attempt }

// CheckPauseLock returns ErrPaused if the feature's pause sentinel is
// active. Workers call this before acquiring any lock and again before
// finalizing, so no unit of work spans a pause boundary.
func (e *Executor) CheckPauseLock() error {
	if e.backend.PauseActive(e.feature.FeatureID) {
		return fmt.Errorf("%w: %s", ErrPaused, e.feature.FeatureID)
	}
	return nil
}

// LockOrder returns the deterministic acquisition order for this package.
func (e *Executor) LockOrder() []string {
	return ComputeLockOrder(e.pkg)
}

// AcquireLocks checks the pause sentinel, then claims every lock in
// order through the backend, recording each grant for release-on-exit.
func (e *Executor) AcquireLocks() error {
	if err := e.CheckPauseLock(); err != nil {
		return err
	}
	order := e.LockOrder()
	if err := e.backend.AcquireAll(e.pkg.ID, order); err != nil {
		return err
	}
	for _, key := range order {
		e.RecordLockAcquired(key)
	}
	return nil
}

// RecordLockAcquired marks a lock as held by this attempt. Idempotent.
func (e *Executor) RecordLockAcquired(key string) {
	if e.acquired[key] {
		return
	}
	e.acquired[key] = true
	e.acquireOrder = append(e.acquireOrder, key)
}

// AcquiredLocks returns the locks recorded so far, in acquisition order.
func (e *Executor) AcquiredLocks() []string {
	return append([]string(nil), e.acquireOrder...)
}

// ReleaseLocks relinquishes every lock this attempt holds.
func (e *Executor) ReleaseLocks() error {
	if len(e.acquireOrder) == 0 {
		return nil
	}
	err := e.backend.ReleaseAll(e.pkg.ID)
	e.acquired = make(map[string]bool)
	e.acquireOrder = nil
	return err
}

// CheckScope matches the modified-file list against the package's write
// scope, deny taking precedence over write_allow. The integration package
// is allowed to touch everything.
func (e *Executor) CheckScope(filesModified []string) result.ScopeCheck {
	if e.pkg.IsIntegration() {
		return result.ScopeCheck{Passed: true}
	}
	matcher := plan.NewScopeMatcher(e.pkg.Scope)
	violations := matcher.Violations(filesModified)
	return result.ScopeCheck{Passed: len(violations) == 0, Violations: violations}
}

// WorkOutcome carries everything the opaque implementation phase
// produced, as reported by the external collaborators: the authoritative
// modified-file list from version control, the executed verification
// steps from the verification runner, and any outputs or escalations the
// worker surfaced.
type WorkOutcome struct {
	FilesModified []string
	VCS           result.VCSRefs
	Steps         []result.StepResult
	Outputs       map[string]any
	Escalations   []escalation.Escalation
}

// BuildResult assembles the immutable attempt record. verification.passed
// is the logical AND over all step outcomes; the scope check, echoed
// locks, scope, revisions, and timestamps are attached. Status is
// completed only when both verification and the scope check pass.
func (e *Executor) BuildResult(outcome WorkOutcome) *result.WorkQueueResult {
	passed := true
	for i := range outcome.Steps {
		if !outcome.Steps[i].Passed {
			passed = false
			break
		}
	}
	scopeCheck := e.CheckScope(outcome.FilesModified)

	r := &result.WorkQueueResult{
		SchemaVersion:     result.SchemaVersion,
		FeatureID:         e.feature.FeatureID,
		PackageID:         e.pkg.ID,
		Attempt:           e.attempt,
		PlanRevision:      e.feature.PlanRevision,
		ContractsRevision: e.feature.ContractsRevision,
		Status:            result.StatusCompleted,
		Locks:             e.pkg.Locks,
		Scope:             e.pkg.Scope,
		FilesModified:     append([]string(nil), outcome.FilesModified...),
		ScopeCheck:        scopeCheck,
		VCS:               outcome.VCS,
		Verification: result.VerificationResult{
			Tier:   e.pkg.Verification.Tier,
			Passed: passed,
			Steps:  outcome.Steps,
		},
		Escalations: outcome.Escalations,
		Outputs:     outcome.Outputs,
		StartedAt:   e.startedAt,
		FinishedAt:  e.now(),
	}

	if !scopeCheck.Passed {
		r.Status = result.StatusFailed
		r.ErrorCode = "E_SCOPE_VIOLATION"
	} else if !passed {
		r.Status = result.StatusFailed
		r.ErrorCode = "E_VERIFICATION_FAILED"
	}
	return r
}

// BuildFailureResult records an attempt that died before verification
// ran: a single synthetic "aborted" step stands in for the steps that
// never executed.
func (e *Executor) BuildFailureResult(errorCode, notes string) *result.WorkQueueResult {
	return &result.WorkQueueResult{
		SchemaVersion:     result.SchemaVersion,
		FeatureID:         e.feature.FeatureID,
		PackageID:         e.pkg.ID,
		Attempt:           e.attempt,
		PlanRevision:      e.feature.PlanRevision,
		ContractsRevision: e.feature.ContractsRevision,
		Status:            result.StatusFailed,
		Locks:             e.pkg.Locks,
		Scope:             e.pkg.Scope,
		ScopeCheck:        result.ScopeCheck{Passed: true},
		Verification: result.VerificationResult{
			Tier:   e.pkg.Verification.Tier,
			Passed: false,
			Steps: []result.StepResult{
				{Name: "aborted", Kind: "synthetic", ExitCode: -1, Passed: false},
			},
		},
		ErrorCode:  errorCode,
		Notes:      notes,
		StartedAt:  e.startedAt,
		FinishedAt: e.now(),
	}
}
