// Package runner hosts local workers for a feature run. Each worker
// claims packages from the orchestrator, walks the executor protocol,
// runs the package's declared verification commands, and submits the
// assembled result. It is the in-process stand-in for remote workers.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/packflow/packflow/internal/coordination"
	"github.com/packflow/packflow/internal/escalation"
	"github.com/packflow/packflow/internal/executor"
	"github.com/packflow/packflow/internal/logging"
	"github.com/packflow/packflow/internal/orchestrator"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

// outputsDir is where verification steps may drop declared output keys,
// one JSON object per package: {workDir}/.packflow/outputs/{package}.json
const outputsDir = ".packflow/outputs"

// errorCodePaused marks attempts aborted by the finalize pause check.
const errorCodePaused = "E_PAUSED"

// Runner drives a feature run to completion with local workers.
type Runner struct {
	runtime *orchestrator.Runtime
	backend coordination.Backend
	feature *plan.FeaturePlan
	store   *result.Store
	log     *logging.Logger

	workers        int
	workDir        string
	autoAccept     bool
	pollInterval   time.Duration
	sweepInterval  time.Duration
	heartbeatEvery time.Duration
	lockRetries    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets how many workers claim packages concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithWorkDir sets the directory verification commands run in.
func WithWorkDir(dir string) Option {
	return func(r *Runner) { r.workDir = dir }
}

// WithStore persists every submitted result.
func WithStore(store *result.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithLogger attaches a structured logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithAutoAcceptReviews records an empty finding list for every
// completed package, letting the integration gate pass without a human
// reviewer. Intended for local runs only.
func WithAutoAcceptReviews(enabled bool) Option {
	return func(r *Runner) { r.autoAccept = enabled }
}

// WithSweepInterval sets how often stuck-package detection runs.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// New builds a Runner over an orchestrator runtime.
func New(rt *orchestrator.Runtime, backend coordination.Backend, feature *plan.FeaturePlan, opts ...Option) *Runner {
	r := &Runner{
		runtime:        rt,
		backend:        backend,
		feature:        feature,
		log:            logging.NopLogger(),
		workers:        2,
		workDir:        ".",
		pollInterval:   200 * time.Millisecond,
		sweepInterval:  15 * time.Second,
		heartbeatEvery: 5 * time.Second,
		lockRetries:    3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pauseWatcher is implemented by backends that can push pause sentinel
// transitions instead of being polled for them.
type pauseWatcher interface {
	WatchPause(ctx context.Context, featureID string) (<-chan bool, error)
}

// Run blocks until every package reaches a terminal state or the
// context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Backends with sentinel watching push pause transitions into the
	// wait loop; a nil channel blocks in the select otherwise.
	var pauseCh <-chan bool
	if w, ok := r.backend.(pauseWatcher); ok {
		ch, err := w.WatchPause(ctx, r.feature.FeatureID)
		if err != nil {
			r.log.Warn("pause watch unavailable", "error", err)
		} else {
			pauseCh = ch
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.sweepLoop(ctx)
	}()

	for i := 0; i < r.workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workLoop(ctx, workerID)
		}()
	}

	// Wait for completion or cancellation.
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case paused, ok := <-pauseCh:
			if !ok {
				pauseCh = nil // watcher gone, fall back to polling
				continue
			}
			if !paused {
				continue
			}
		case <-time.After(r.pollInterval):
		}
		if r.runtime.Queue().IsComplete() {
			cancel()
			wg.Wait()
			return nil
		}
		if r.runtime.Paused() {
			// A pause with no human attached cannot resolve itself.
			cancel()
			wg.Wait()
			return fmt.Errorf("run paused: human intervention required")
		}
	}
}

// sweepLoop periodically checks heartbeat ages.
func (r *Runner) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.runtime.SweepStuck(now.UTC())
		}
	}
}

// workLoop claims and executes packages until the context ends.
func (r *Runner) workLoop(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkg, err := r.runtime.ClaimNext(workerID)
		if err != nil {
			r.log.Error("claim failed", "worker", workerID, "error", err)
			return
		}
		if pkg == nil {
			if r.autoAccept {
				r.acceptCompletedReviews()
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}
			continue
		}

		r.executePackage(ctx, workerID, pkg)
	}
}

// acceptCompletedReviews marks every completed-but-unreviewed package
// as reviewed with no findings.
func (r *Runner) acceptCompletedReviews() {
	gate := r.runtime.Gate()
	for _, id := range gate.MissingReviews {
		if r.runtime.Queue().Get(id).Status == orchestrator.StatusCompleted {
			r.runtime.RecordReview(id, nil)
		}
	}
}

// executePackage walks one package through the executor protocol.
func (r *Runner) executePackage(ctx context.Context, workerID string, pkg *orchestrator.QueuedPackage) {
	log := r.log.WithPackage(pkg.ID).With("worker", workerID)
	attempt := r.runtime.Breaker().AttemptCount(pkg.ID) + 1
	ex := executor.New(r.backend, r.feature, &pkg.WorkPackage, attempt)

	if err := r.runtime.MarkRunning(pkg.ID); err != nil {
		log.Error("mark running failed", "error", err)
		return
	}

	if err := r.acquireWithRetry(ctx, ex); err != nil {
		log.Warn("lock acquisition failed", "error", err)
		r.runtime.RaiseEscalation(escalation.Escalation{
			FeatureID: r.feature.FeatureID,
			PackageID: pkg.ID,
			Kind:      escalation.ResourceConflict,
			Summary:   err.Error(),
		})
		return
	}
	defer func() {
		if err := ex.ReleaseLocks(); err != nil {
			log.Error("lock release failed", "error", err)
		}
	}()

	steps := r.runSteps(ctx, pkg)

	// Pause check again before finalize: no unit of work may span a
	// pause boundary. The aborted attempt is recorded for the audit
	// trail but never submitted.
	if err := ex.CheckPauseLock(); err != nil {
		log.Warn("pause sentinel active before finalize, aborting attempt", "error", err)
		if r.store != nil {
			failure := ex.BuildFailureResult(errorCodePaused, "attempt aborted at finalize: pause sentinel active")
			if serr := r.store.Save(failure); serr != nil {
				log.Error("result persistence failed", "error", serr)
			}
		}
		return
	}

	outcome := executor.WorkOutcome{
		Steps:   steps,
		Outputs: r.readOutputs(pkg.ID),
	}
	res := ex.BuildResult(outcome)

	if r.store != nil {
		if err := r.store.Save(res); err != nil {
			log.Error("result persistence failed", "error", err)
		}
	}

	report, err := r.runtime.SubmitResult(res)
	if err != nil {
		log.Error("result submission failed", "error", err)
		return
	}
	if report.Valid && res.Status == result.StatusCompleted && r.autoAccept {
		r.runtime.RecordReview(pkg.ID, nil)
	}
}

// acquireWithRetry tolerates brief lock contention between workers.
func (r *Runner) acquireWithRetry(ctx context.Context, ex *executor.Executor) error {
	var err error
	for i := 0; i <= r.lockRetries; i++ {
		if err = ex.AcquireLocks(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
	return err
}

// runSteps executes a package's verification commands in order,
// heartbeating while each runs. A missing command is recorded as a
// failed step rather than skipped.
func (r *Runner) runSteps(ctx context.Context, pkg *orchestrator.QueuedPackage) []result.StepResult {
	steps := make([]result.StepResult, 0, len(pkg.Verification.Steps))
	for _, step := range pkg.Verification.Steps {
		r.runtime.Heartbeat(pkg.ID, time.Now().UTC())
		steps = append(steps, r.runStep(ctx, pkg.ID, step))
	}
	return steps
}

func (r *Runner) runStep(ctx context.Context, packageID string, step plan.VerificationStep) result.StepResult {
	sr := result.StepResult{Name: step.Name, Kind: step.Kind, Command: step.Command}
	if step.Command == "" {
		sr.ExitCode = -1
		return sr
	}

	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Heartbeat while the command runs so slow steps do not read as
	// stuck.
	go func() {
		ticker := time.NewTicker(r.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stepCtx.Done():
				return
			case now := <-ticker.C:
				r.runtime.Heartbeat(packageID, now.UTC())
			}
		}
	}()

	cmd := exec.CommandContext(stepCtx, "sh", "-c", step.Command)
	cmd.Dir = r.workDir
	output, err := cmd.CombinedOutput()

	sr.Evidence.Artifacts = map[string]string{"output": string(output)}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			sr.ExitCode = exitErr.ExitCode()
		} else {
			sr.ExitCode = -1
			sr.Evidence.Artifacts["error"] = err.Error()
		}
		return sr
	}
	sr.Passed = true
	return sr
}

// readOutputs loads declared output keys a step may have written to
// the package's outputs file. A missing or malformed file yields nil.
func (r *Runner) readOutputs(packageID string) map[string]any {
	path := filepath.Join(r.workDir, outputsDir, packageID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var outputs map[string]any
	if err := json.Unmarshal(data, &outputs); err != nil {
		r.log.WithPackage(packageID).Warn("outputs file is not valid JSON", "path", path)
		return nil
	}
	return outputs
}
