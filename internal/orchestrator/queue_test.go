package orchestrator

import (
	"reflect"
	"testing"

	"github.com/packflow/packflow/internal/plan"
)

// queuePlan is the four-package plan used across orchestrator tests:
// contracts feeds backend and frontend, which feed integration.
func queuePlan() *plan.FeaturePlan {
	return &plan.FeaturePlan{
		FeatureID:         "checkout",
		PlanRevision:      1,
		ContractsRevision: 1,
		Packages: []plan.WorkPackage{
			{
				ID:       "contracts",
				TaskType: plan.TaskContracts,
				Locks:    plan.Locks{Files: []string{"api/contracts.yaml"}, Keys: []string{"contract:checkout-api"}},
				Scope:    plan.Scope{WriteAllow: []string{"api/**"}},
			},
			{
				ID:          "backend",
				TaskType:    plan.TaskImplement,
				DependsOn:   []string{"contracts"},
				RetryBudget: 1,
				Locks:       plan.Locks{Files: []string{"server/handler.go"}, Keys: []string{"db:schema:orders"}},
				Scope:       plan.Scope{WriteAllow: []string{"server/**"}},
			},
			{
				ID:        "frontend",
				TaskType:  plan.TaskImplement,
				DependsOn: []string{"contracts"},
				Locks:     plan.Locks{Files: []string{"web/checkout.tsx"}, Keys: []string{"flag:new-checkout"}},
				Scope:     plan.Scope{WriteAllow: []string{"web/**"}},
			},
			{
				ID:        "integration",
				TaskType:  plan.TaskIntegrate,
				DependsOn: []string{"backend", "frontend"},
				Scope:     plan.Scope{WriteAllow: []string{"**"}},
			},
		},
	}
}

func TestClaimNextRespectsDependencies(t *testing.T) {
	q := NewQueue(queuePlan())

	pkg, err := q.ClaimNext("worker-1")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if pkg == nil || pkg.ID != "contracts" {
		t.Fatalf("first claim = %v, want contracts", pkg)
	}

	// Nothing else is claimable while contracts is in flight.
	next, err := q.ClaimNext("worker-2")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if next != nil {
		t.Errorf("claimed %s while contracts incomplete", next.ID)
	}
}

func TestCompleteUnblocksDependents(t *testing.T) {
	q := NewQueue(queuePlan())

	if _, err := q.ClaimNext("worker-1"); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := q.MarkRunning("contracts"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}

	unblocked, err := q.Complete("contracts")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !reflect.DeepEqual(unblocked, []string{"backend", "frontend"}) {
		t.Errorf("unblocked = %v, want [backend frontend]", unblocked)
	}
}

func TestRequeueReturnsPackageToPending(t *testing.T) {
	q := NewQueue(queuePlan())

	pkg, _ := q.ClaimNext("worker-1")
	if err := q.Requeue(pkg.ID, "lock contention"); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	got := q.Get(pkg.ID)
	if got.Status != StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.ClaimedBy != "" {
		t.Errorf("ClaimedBy = %q, want empty", got.ClaimedBy)
	}
	if got.FailureContext != "lock contention" {
		t.Errorf("FailureContext = %q", got.FailureContext)
	}
}

func TestCancelSkipsTerminalPackages(t *testing.T) {
	q := NewQueue(queuePlan())

	q.ClaimNext("worker-1")
	q.Complete("contracts")

	cancelled := q.Cancel([]string{"contracts", "integration", "ghost"}, "upstream tripped")
	if !reflect.DeepEqual(cancelled, []string{"integration"}) {
		t.Errorf("cancelled = %v, want [integration]", cancelled)
	}
	if got := q.Get("contracts").Status; got != StatusCompleted {
		t.Errorf("contracts status = %s, want completed", got)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	q := NewQueue(queuePlan())

	if err := q.MarkRunning("contracts"); err == nil {
		t.Error("MarkRunning on pending package should fail")
	}
	if _, err := q.Complete("contracts"); err == nil {
		t.Error("Complete on pending package should fail")
	}
	if err := q.Requeue("ghost", ""); err == nil {
		t.Error("Requeue on unknown package should fail")
	}
}

func TestQueueStatusAndCompletion(t *testing.T) {
	q := NewQueue(queuePlan())
	if q.IsComplete() {
		t.Error("fresh queue should not be complete")
	}

	for _, id := range []string{"contracts", "backend", "frontend", "integration"} {
		pkg, err := q.ClaimNext("worker-1")
		if err != nil || pkg == nil || pkg.ID != id {
			t.Fatalf("expected to claim %s, got %v (err %v)", id, pkg, err)
		}
		if _, err := q.Complete(id); err != nil {
			t.Fatalf("Complete(%s) failed: %v", id, err)
		}
	}

	if !q.IsComplete() {
		t.Error("queue should be complete")
	}
	s := q.Status()
	if s.Completed != 4 || s.Total != 4 {
		t.Errorf("Status = %+v, want 4 completed of 4", s)
	}
}
