package result

import (
	"fmt"
	"sort"

	"github.com/packflow/packflow/internal/plan"
)

// Check is the outcome of one independent validation check.
type Check struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// Report unions the outcomes of every check. Valid is false if any check
// failed; the orchestrator decides retry versus escalate on rejection.
type Report struct {
	Valid  bool             `json:"valid"`
	Checks map[string]Check `json:"checks"`
}

// Names of the independent checks, for callers inspecting a Report.
const (
	CheckSchema       = "schema"
	CheckScope        = "scope"
	CheckVerification = "verification"
	CheckRevision     = "revision"
	CheckOutputs      = "outputs"
)

// Expectations carries the orchestrator-current values a result is judged
// against.
type Expectations struct {
	FeatureID         string
	PlanRevision      int
	ContractsRevision int

	// Package is the plan entry the result claims to fulfil. Scope and
	// declared output keys come from here.
	Package *plan.WorkPackage
}

// Validate runs every check independently and unions the errors. No check
// short-circuits another: a stale-revision result with a scope violation
// reports both. Validate has no side effects.
func Validate(r *WorkQueueResult, exp Expectations) *Report {
	report := &Report{Valid: true, Checks: make(map[string]Check)}

	record := func(name string, errs []string) {
		check := Check{Passed: len(errs) == 0, Errors: errs}
		report.Checks[name] = check
		if !check.Passed {
			report.Valid = false
		}
	}

	record(CheckSchema, checkSchema(r))
	record(CheckScope, checkScope(r, exp.Package))
	record(CheckVerification, checkVerification(r))
	record(CheckRevision, checkRevision(r, exp))
	record(CheckOutputs, checkOutputs(r, exp.Package))
	return report
}

// checkSchema validates the result against the canonical record shape.
func checkSchema(r *WorkQueueResult) []string {
	var errs []string
	if r == nil {
		return []string{"result is nil"}
	}
	if r.SchemaVersion != SchemaVersion {
		errs = append(errs, fmt.Sprintf("schema_version %q, want %q", r.SchemaVersion, SchemaVersion))
	}
	if r.FeatureID == "" {
		errs = append(errs, "feature_id is required")
	}
	if r.PackageID == "" {
		errs = append(errs, "package_id is required")
	}
	if r.Attempt < 1 {
		errs = append(errs, "attempt must be at least 1")
	}
	if !r.Status.IsValid() {
		errs = append(errs, fmt.Sprintf("status %q is not one of pending, running, completed, failed", r.Status))
	} else if !r.Status.IsTerminal() {
		errs = append(errs, fmt.Sprintf("result status %q is not terminal", r.Status))
	}
	if r.Status == StatusFailed && r.ErrorCode == "" {
		errs = append(errs, "failed result has no error_code")
	}
	return errs
}

// checkScope re-applies the executor's scope enforcement to the received
// files_modified list. The orchestrator trusts the version-control
// collaborator's file list, not the worker's own scope_check claim.
func checkScope(r *WorkQueueResult, pkg *plan.WorkPackage) []string {
	if r == nil || pkg == nil {
		return nil
	}
	if pkg.IsIntegration() {
		return nil
	}
	matcher := plan.NewScopeMatcher(pkg.Scope)
	var errs []string
	for _, f := range matcher.Violations(r.FilesModified) {
		errs = append(errs, fmt.Sprintf("file %q is outside the package write scope", f))
	}
	return errs
}

// checkVerification requires verification.passed to equal the AND over all
// step outcomes, in both directions.
func checkVerification(r *WorkQueueResult) []string {
	if r == nil {
		return nil
	}
	stepsPassed := true
	for i := range r.Verification.Steps {
		if !r.Verification.Steps[i].Passed {
			stepsPassed = false
			break
		}
	}
	if r.Verification.Passed && !stepsPassed {
		return []string{"verification.passed is true but a step failed"}
	}
	// The AND over zero steps is vacuously true, so a failed result
	// with no steps is inconsistent too.
	if !r.Verification.Passed && stepsPassed {
		return []string{"verification.passed is false but every step passed"}
	}
	return nil
}

// checkRevision rejects stale work: the result's revisions must equal the
// orchestrator's current values even if everything else is internally
// consistent.
func checkRevision(r *WorkQueueResult, exp Expectations) []string {
	if r == nil {
		return nil
	}
	var errs []string
	if exp.FeatureID != "" && r.FeatureID != exp.FeatureID {
		errs = append(errs, fmt.Sprintf("feature_id %q, want %q", r.FeatureID, exp.FeatureID))
	}
	if r.PlanRevision != exp.PlanRevision {
		errs = append(errs, fmt.Sprintf("plan_revision %d is stale, current is %d", r.PlanRevision, exp.PlanRevision))
	}
	if r.ContractsRevision != exp.ContractsRevision {
		errs = append(errs, fmt.Sprintf("contracts_revision %d is stale, current is %d", r.ContractsRevision, exp.ContractsRevision))
	}
	return errs
}

// checkOutputs requires every declared output key to be discoverable in
// the result.
func checkOutputs(r *WorkQueueResult, pkg *plan.WorkPackage) []string {
	if r == nil || pkg == nil {
		return nil
	}
	var missing []string
	for _, key := range pkg.Outputs.ResultKeys {
		if !r.HasOutputKey(key) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	var errs []string
	for _, key := range missing {
		errs = append(errs, fmt.Sprintf("declared output key %q is not present in the result", key))
	}
	return errs
}
