package integration

import (
	"reflect"
	"testing"

	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

func gatePlan() *plan.FeaturePlan {
	return &plan.FeaturePlan{
		FeatureID:         "checkout",
		PlanRevision:      1,
		ContractsRevision: 1,
		Packages: []plan.WorkPackage{
			{ID: "contracts", TaskType: plan.TaskContracts},
			{ID: "backend", TaskType: plan.TaskImplement, DependsOn: []string{"contracts"}},
			{ID: "frontend", TaskType: plan.TaskImplement, DependsOn: []string{"contracts"}},
			{ID: "integration", TaskType: plan.TaskIntegrate, DependsOn: []string{"backend", "frontend"}},
		},
	}
}

func completedResult(packageID string, attempt int) *result.WorkQueueResult {
	return &result.WorkQueueResult{
		SchemaVersion:     result.SchemaVersion,
		FeatureID:         "checkout",
		PackageID:         packageID,
		Attempt:           attempt,
		PlanRevision:      1,
		ContractsRevision: 1,
		Status:            result.StatusCompleted,
		Verification:      result.VerificationResult{Passed: true},
	}
}

// completeAll records results and clean reviews for every non-integration
// package except those named in skip.
func completeAll(t *Tracker, skip ...string) {
	skipped := make(map[string]bool)
	for _, id := range skip {
		skipped[id] = true
	}
	for _, id := range []string{"contracts", "backend", "frontend"} {
		if skipped[id] {
			continue
		}
		t.RecordResult(completedResult(id, 1))
		t.RecordFindings(id, nil)
	}
}

func TestGateBlockedIncompleteMissingResults(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr, "backend", "frontend")

	gate := tr.CheckIntegrationGate()
	if gate.Status != GateBlockedIncomplete {
		t.Fatalf("Status = %q, want BLOCKED_INCOMPLETE", gate.Status)
	}
	if !reflect.DeepEqual(gate.MissingResults, []string{"backend", "frontend"}) {
		t.Errorf("MissingResults = %v", gate.MissingResults)
	}
}

func TestGateBlockedIncompleteMissingReviews(t *testing.T) {
	// backend has a result but no review findings recorded yet.
	tr := NewTracker(gatePlan())
	completeAll(tr, "backend")
	tr.RecordResult(completedResult("backend", 1))

	gate := tr.CheckIntegrationGate()
	if gate.Status != GateBlockedIncomplete {
		t.Fatalf("Status = %q, want BLOCKED_INCOMPLETE", gate.Status)
	}
	if !reflect.DeepEqual(gate.MissingReviews, []string{"backend"}) {
		t.Errorf("MissingReviews = %v", gate.MissingReviews)
	}
}

func TestGateBlockedFix(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr, "backend")
	tr.RecordResult(completedResult("backend", 1))
	tr.RecordFindings("backend", []ReviewFinding{
		{ID: "f-1", PackageID: "backend", Disposition: DispositionFix, Summary: "nil check missing"},
	})

	gate := tr.CheckIntegrationGate()
	if gate.Status != GateBlockedFix {
		t.Fatalf("Status = %q, want BLOCKED_FIX", gate.Status)
	}
	if len(gate.BlockingFinding) != 1 || gate.BlockingFinding[0].ID != "f-1" {
		t.Errorf("BlockingFinding = %+v, want exactly the backend finding", gate.BlockingFinding)
	}
}

// An escalate disposition anywhere pre-empts fix findings elsewhere.
func TestGateEscalatePreemptsFix(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr, "backend", "frontend")
	tr.RecordResult(completedResult("backend", 1))
	tr.RecordFindings("backend", []ReviewFinding{
		{ID: "f-1", PackageID: "backend", Disposition: DispositionFix},
	})
	tr.RecordResult(completedResult("frontend", 1))
	tr.RecordFindings("frontend", []ReviewFinding{
		{ID: "f-2", PackageID: "frontend", Disposition: DispositionEscalate},
	})

	gate := tr.CheckIntegrationGate()
	if gate.Status != GateBlockedEscalate {
		t.Fatalf("Status = %q, want BLOCKED_ESCALATE", gate.Status)
	}
	if len(gate.BlockingFinding) != 1 || gate.BlockingFinding[0].ID != "f-2" {
		t.Errorf("BlockingFinding = %+v, want only the escalate finding", gate.BlockingFinding)
	}
}

func TestGatePass(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr)
	// Accept dispositions do not block.
	tr.RecordFindings("backend", []ReviewFinding{
		{ID: "f-1", PackageID: "backend", Disposition: DispositionAccept},
	})

	gate := tr.CheckIntegrationGate()
	if gate.Status != GatePass {
		t.Fatalf("Status = %q, want PASS: %+v", gate.Status, gate)
	}
}

func TestGateIgnoresIntegrationPackage(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr)
	// No result for the integration package itself; the gate must pass.
	gate := tr.CheckIntegrationGate()
	if gate.Status != GatePass {
		t.Fatalf("Status = %q, want PASS", gate.Status)
	}
}

func TestGenerateExecutionSummary(t *testing.T) {
	tr := NewTracker(gatePlan())
	completeAll(tr, "backend")
	backend := completedResult("backend", 2)
	backend.Status = result.StatusFailed
	backend.ErrorCode = "E_VERIFICATION_FAILED"
	tr.RecordResult(backend)
	tr.RecordFindings("backend", []ReviewFinding{
		{ID: "f-1", PackageID: "backend", Disposition: DispositionFix},
		{ID: "f-2", PackageID: "backend", Disposition: DispositionAccept},
	})

	summary := tr.GenerateExecutionSummary()
	if summary.FeatureID != "checkout" {
		t.Errorf("FeatureID = %q", summary.FeatureID)
	}
	if len(summary.Packages) != 4 {
		t.Fatalf("summary has %d packages, want 4", len(summary.Packages))
	}

	rows := make(map[string]PackageTimeline)
	for _, row := range summary.Packages {
		rows[row.PackageID] = row
	}
	if rows["backend"].Attempts != 2 || rows["backend"].ErrorCode != "E_VERIFICATION_FAILED" {
		t.Errorf("backend row = %+v", rows["backend"])
	}
	if rows["integration"].Status != result.StatusPending {
		t.Errorf("integration row = %+v", rows["integration"])
	}
	if summary.Reviews.Fix != 1 || summary.Reviews.Accept != 1 {
		t.Errorf("Reviews = %+v", summary.Reviews)
	}
	if summary.Gate.Status != GateBlockedFix {
		t.Errorf("Gate.Status = %q, want BLOCKED_FIX", summary.Gate.Status)
	}
}
