package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/packflow/packflow/internal/coordination"
	"github.com/packflow/packflow/internal/integration"
	"github.com/packflow/packflow/internal/orchestrator"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

// runnerPlan declares verification steps as real shell commands so the
// worker loop exercises the full protocol.
func runnerPlan(stepCommand string) *plan.FeaturePlan {
	return &plan.FeaturePlan{
		FeatureID:         "checkout",
		PlanRevision:      1,
		ContractsRevision: 1,
		Packages: []plan.WorkPackage{
			{
				ID:       "contracts",
				TaskType: plan.TaskContracts,
				Locks:    plan.Locks{Keys: []string{"contract:checkout-api"}},
				Scope:    plan.Scope{WriteAllow: []string{"api/**"}},
				Verification: plan.Verification{
					Tier:  "standard",
					Steps: []plan.VerificationStep{{Name: "check", Kind: "command", Command: stepCommand}},
				},
			},
			{
				ID:        "backend",
				TaskType:  plan.TaskImplement,
				DependsOn: []string{"contracts"},
				Locks:     plan.Locks{Keys: []string{"db:schema:orders"}},
				Scope:     plan.Scope{WriteAllow: []string{"server/**"}},
				Verification: plan.Verification{
					Tier:  "standard",
					Steps: []plan.VerificationStep{{Name: "check", Kind: "command", Command: stepCommand}},
				},
			},
			{
				ID:        "integration",
				TaskType:  plan.TaskIntegrate,
				DependsOn: []string{"backend"},
				Scope:     plan.Scope{WriteAllow: []string{"**"}},
				Verification: plan.Verification{
					Tier:  "standard",
					Steps: []plan.VerificationStep{{Name: "check", Kind: "command", Command: stepCommand}},
				},
			},
		},
	}
}

func TestRunCompletesFeature(t *testing.T) {
	fp := runnerPlan("true")
	backend := coordination.NewMemory()
	rt, err := orchestrator.New(fp, backend)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	store := result.NewStore(t.TempDir())
	r := New(rt, backend, fp,
		WithWorkers(2),
		WithWorkDir(t.TempDir()),
		WithStore(store),
		WithAutoAcceptReviews(true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	status := rt.Queue().Status()
	if status.Completed != 3 {
		t.Fatalf("completed = %d, want 3: %+v", status.Completed, status)
	}
	if gate := rt.Gate(); gate.Status != integration.GatePass {
		t.Errorf("gate = %s, want PASS", gate.Status)
	}

	saved, err := store.LoadFeature("checkout")
	if err != nil {
		t.Fatalf("LoadFeature failed: %v", err)
	}
	if len(saved) != 3 {
		t.Errorf("persisted %d results, want 3", len(saved))
	}
}

func TestRunFailingStepTripsPackage(t *testing.T) {
	fp := runnerPlan("true")
	// backend's verification fails every attempt.
	fp.Packages[1].Verification.Steps[0].Command = "false"
	fp.Packages[1].RetryBudget = 1

	backend := coordination.NewMemory()
	rt, err := orchestrator.New(fp, backend)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	r := New(rt, backend, fp,
		WithWorkers(1),
		WithWorkDir(t.TempDir()),
		WithAutoAcceptReviews(true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !rt.Breaker().IsTripped("backend") {
		t.Error("backend should be tripped after exhausting retries")
	}
	if got := rt.Queue().Get("backend").Status; got != orchestrator.StatusFailed {
		t.Errorf("backend status = %s, want failed", got)
	}
	if got := rt.Queue().Get("integration").Status; got != orchestrator.StatusCancelled {
		t.Errorf("integration status = %s, want cancelled", got)
	}
}

func TestRunStepOutputCaptured(t *testing.T) {
	fp := runnerPlan("echo hello-from-step")
	backend := coordination.NewMemory()
	rt, err := orchestrator.New(fp, backend)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	store := result.NewStore(t.TempDir())
	r := New(rt, backend, fp,
		WithWorkers(1),
		WithWorkDir(t.TempDir()),
		WithStore(store),
		WithAutoAcceptReviews(true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res, err := store.Load("checkout", "contracts", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	output := res.Verification.Steps[0].Evidence.Artifacts["output"]
	if output != "hello-from-step\n" {
		t.Errorf("captured output = %q", output)
	}
}

func TestReadOutputsFromFile(t *testing.T) {
	fp := runnerPlan("true")
	// contracts declares an output key the step must surface.
	fp.Packages[0].Outputs = plan.Outputs{ResultKeys: []string{"openapi_digest"}}

	workDir := t.TempDir()
	outDir := filepath.Join(workDir, outputsDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(map[string]any{"openapi_digest": "sha256:abc"})
	if err := os.WriteFile(filepath.Join(outDir, "contracts.json"), payload, 0644); err != nil {
		t.Fatal(err)
	}

	backend := coordination.NewMemory()
	rt, err := orchestrator.New(fp, backend)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	store := result.NewStore(t.TempDir())
	r := New(rt, backend, fp,
		WithWorkers(1),
		WithWorkDir(workDir),
		WithStore(store),
		WithAutoAcceptReviews(true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res, err := store.Load("checkout", "contracts", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Outputs["openapi_digest"] != "sha256:abc" {
		t.Errorf("Outputs = %v, want openapi_digest surfaced", res.Outputs)
	}
}

// TestRunAbortsAttemptWhenPausedBeforeFinalize pauses the feature while
// a package's verification step is still running. The worker must
// re-check the pause sentinel before finalizing and abort the attempt
// instead of submitting a result across the pause boundary.
func TestRunAbortsAttemptWhenPausedBeforeFinalize(t *testing.T) {
	workDir := t.TempDir()
	marker := filepath.Join(workDir, "step-started")

	// The step signals that it is running, then holds long enough for
	// the pause below to land before the worker finalizes.
	fp := runnerPlan("touch " + marker + " && sleep 1")

	backend, err := coordination.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}
	rt, err := orchestrator.New(fp, backend)
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	go func() {
		for i := 0; i < 500; i++ {
			if _, err := os.Stat(marker); err == nil {
				if err := backend.Pause("checkout", "operator"); err != nil {
					t.Errorf("Pause failed: %v", err)
				}
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	store := result.NewStore(t.TempDir())
	r := New(rt, backend, fp,
		WithWorkers(1),
		WithWorkDir(workDir),
		WithStore(store),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Run(ctx); err == nil {
		t.Fatal("Run returned nil, want pause error")
	}

	if got := rt.Queue().Get("contracts").Status; got == orchestrator.StatusCompleted {
		t.Fatalf("contracts finalized as %q although the pause sentinel was active", got)
	}
	if gate := rt.Gate(); gate.Status == integration.GatePass {
		t.Error("gate passed although no result may be accepted across a pause")
	}

	// The aborted attempt is still recorded for the audit trail.
	aborted, err := store.Load("checkout", "contracts", 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if aborted.Status != result.StatusFailed || aborted.ErrorCode != "E_PAUSED" {
		t.Errorf("aborted attempt = status %q, code %q; want failed/E_PAUSED", aborted.Status, aborted.ErrorCode)
	}
}
