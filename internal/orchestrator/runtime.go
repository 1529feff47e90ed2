package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/packflow/packflow/internal/breaker"
	"github.com/packflow/packflow/internal/coordination"
	"github.com/packflow/packflow/internal/errors"
	"github.com/packflow/packflow/internal/escalation"
	"github.com/packflow/packflow/internal/event"
	"github.com/packflow/packflow/internal/integration"
	"github.com/packflow/packflow/internal/logging"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

// pauseOwner is the lock owner name the runtime uses when publishing
// the pause sentinel.
const pauseOwner = "orchestrator"

// Error codes the runtime attaches to failures it originates.
const (
	ErrorCodeTimeout        = "E_TIMEOUT"
	ErrorCodeResultRejected = "E_RESULT_REJECTED"
	ErrorCodeEscalation     = "E_ESCALATION"
	ErrorCodeUpstreamFailed = "E_UPSTREAM_FAILED"
)

// Runtime is the mutable context of one feature run. It owns the
// package queue and coordinates the breaker, escalation handler,
// result validation, and the integration gate. All methods are safe
// for concurrent use.
type Runtime struct {
	mu sync.Mutex

	feature *plan.FeaturePlan
	queue   *PackageQueue
	breaker *breaker.Breaker
	backend coordination.Backend
	handler *escalation.Handler
	tracker *integration.Tracker
	bus     *event.Bus
	log     *logging.Logger

	// Revision counters advance on escalation-driven bumps; results
	// carrying older revisions are rejected as stale.
	planRevision      int
	contractsRevision int

	paused      bool
	pauseReason string

	now func() time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithBus attaches an event bus for run lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(r *Runtime) { r.bus = bus }
}

// WithLogger attaches a structured logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithBreakerTimeout overrides the default heartbeat timeout for
// packages that do not declare their own.
func WithBreakerTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.breaker = breaker.New(r.feature, breaker.WithDefaultTimeout(d))
	}
}

// WithClock overrides the runtime's time source. Tests use this to
// drive stuck-package detection deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// New builds a Runtime for a feature plan. The plan is validated
// first; a plan with errors is rejected before any package can be
// dispatched.
func New(feature *plan.FeaturePlan, backend coordination.Backend, opts ...Option) (*Runtime, error) {
	vr := plan.Validate(feature)
	if !vr.Valid {
		problems := make([]string, 0, len(vr.Messages))
		for _, m := range vr.Messages {
			if m.Severity == plan.SeverityError {
				problems = append(problems, m.Message)
			}
		}
		return nil, errors.NewValidationError("plan", problems)
	}

	r := &Runtime{
		feature:           feature,
		queue:             NewQueue(feature),
		breaker:           breaker.New(feature),
		backend:           backend,
		handler:           escalation.NewHandler(),
		tracker:           integration.NewTracker(feature),
		log:               logging.NopLogger(),
		planRevision:      feature.PlanRevision,
		contractsRevision: feature.ContractsRevision,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithFeature(feature.FeatureID)
	return r, nil
}

// publish emits an event when a bus is attached.
func (r *Runtime) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// Paused reports whether dispatch is currently held, either by the
// runtime's own pause or an externally published pause sentinel.
func (r *Runtime) Paused() bool {
	r.mu.Lock()
	paused := r.paused
	r.mu.Unlock()
	return paused || r.backend.PauseActive(r.feature.FeatureID)
}

// ClaimNext hands the next dispatchable package to a worker. Returns
// nil with no error when nothing is available: the run is paused, all
// ready packages are claimed, or only the integration package remains
// and the gate has not passed.
func (r *Runtime) ClaimNext(workerID string) (*QueuedPackage, error) {
	if r.Paused() {
		return nil, nil
	}

	pkg, err := r.queue.ClaimNext(workerID)
	if err != nil || pkg == nil {
		return pkg, err
	}

	// The integration package is held until every other package has a
	// validated result, is reviewed, and nothing blocks.
	if pkg.TaskType == plan.TaskIntegrate {
		if gate := r.tracker.CheckIntegrationGate(); gate.Status != integration.GatePass {
			if err := r.queue.Requeue(pkg.ID, fmt.Sprintf("integration gate %s", gate.Status)); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}

	attempt := r.breaker.AttemptCount(pkg.ID) + 1
	r.breaker.Heartbeat(pkg.ID, r.now())
	r.log.WithPackage(pkg.ID).Info("package dispatched", "worker", workerID, "attempt", attempt)
	r.publish(event.NewPackageDispatchedEvent(r.feature.FeatureID, pkg.ID, attempt))
	return pkg, nil
}

// MarkRunning transitions a claimed package to running.
func (r *Runtime) MarkRunning(packageID string) error {
	return r.queue.MarkRunning(packageID)
}

// Heartbeat records executor liveness for a package.
func (r *Runtime) Heartbeat(packageID string, ts time.Time) {
	r.breaker.Heartbeat(packageID, ts)
}

// SweepStuck checks heartbeat ages and fails every stuck package,
// retrying within budget and tripping beyond it. Returns the IDs of
// packages found stuck.
func (r *Runtime) SweepStuck(now time.Time) []string {
	stuck := r.breaker.CheckStuckPackages(now)
	ids := make([]string, 0, len(stuck))
	for _, s := range stuck {
		ids = append(ids, s.PackageID)
		r.log.WithPackage(s.PackageID).Warn("package stuck", "last_seen", s.LastSeen)
		r.publish(event.NewPackageStuckEvent(r.feature.FeatureID, s.PackageID, s.LastSeen))
		r.failPackage(s.PackageID, ErrorCodeTimeout, "heartbeat timeout exceeded")
	}
	return ids
}

// Expectations returns what a submitted result for the package must
// match, pinned to the current revisions.
func (r *Runtime) Expectations(packageID string) result.Expectations {
	r.mu.Lock()
	defer r.mu.Unlock()
	return result.Expectations{
		FeatureID:         r.feature.FeatureID,
		PlanRevision:      r.planRevision,
		ContractsRevision: r.contractsRevision,
		Package:           r.feature.Package(packageID),
	}
}

// SubmitResult validates a completed or failed result record and
// advances the run. Invalid results and failed attempts go through
// the retry-or-trip path; valid completions unblock dependents and
// feed the integration gate.
func (r *Runtime) SubmitResult(res *result.WorkQueueResult) (*result.Report, error) {
	if res == nil {
		return nil, errors.NewRunError("nil result submitted", errors.ErrInvalidInput)
	}
	pkg := r.feature.Package(res.PackageID)
	if pkg == nil {
		return nil, errors.NewNotFoundError("package", res.PackageID)
	}

	report := result.Validate(res, r.Expectations(res.PackageID))
	log := r.log.WithPackage(res.PackageID)

	if !report.Valid {
		log.Warn("result rejected", "status", res.Status)
		r.failPackage(res.PackageID, ErrorCodeResultRejected, "result failed validation")
		return report, nil
	}

	if res.Status == result.StatusFailed {
		log.Info("package attempt failed", "error_code", res.ErrorCode)
		r.failPackage(res.PackageID, res.ErrorCode, res.Notes)
		return report, nil
	}

	unblocked, err := r.queue.Complete(res.PackageID)
	if err != nil {
		return report, err
	}
	r.tracker.RecordResult(res)
	log.Info("package completed", "attempt", res.Attempt, "unblocked", unblocked)
	r.publish(event.NewPackageCompletedEvent(r.feature.FeatureID, res.PackageID, res.Attempt))
	return report, nil
}

// failPackage applies the retry-or-trip policy for one failed attempt.
func (r *Runtime) failPackage(packageID, errorCode, context string) {
	r.breaker.SetLastError(packageID, context)

	if r.breaker.CanRetry(packageID) {
		r.breaker.RecordAttempt(packageID)
		attempt := r.breaker.AttemptCount(packageID)
		if err := r.queue.Requeue(packageID, context); err != nil {
			r.log.WithPackage(packageID).Error("requeue failed", "error", err)
			return
		}
		r.log.WithPackage(packageID).Info("package requeued", "attempt", attempt, "error_code", errorCode)
		r.publish(event.NewPackageFailedEvent(r.feature.FeatureID, packageID, attempt, errorCode, true))
		return
	}

	r.tripPackage(packageID, errorCode, context)
}

// tripPackage permanently fails a package and cancels everything
// downstream of it.
func (r *Runtime) tripPackage(packageID, errorCode, context string) {
	r.breaker.Trip(packageID)
	if err := r.queue.MarkFailed(packageID, context); err != nil {
		r.log.WithPackage(packageID).Error("mark failed", "error", err)
	}

	dependents := r.breaker.GetTransitiveDependents(packageID)
	cancelled := r.queue.Cancel(dependents, fmt.Sprintf("upstream package %s tripped", packageID))

	attempt := r.breaker.AttemptCount(packageID)
	r.log.WithPackage(packageID).Error("package tripped",
		"error_code", errorCode, "cancelled", cancelled)
	r.publish(event.NewPackageFailedEvent(r.feature.FeatureID, packageID, attempt, errorCode, false))
	r.publish(event.NewPackageTrippedEvent(r.feature.FeatureID, packageID, cancelled))
}

// RaiseEscalation routes an escalation through the decision table and
// applies the decided action to the run.
func (r *Runtime) RaiseEscalation(esc escalation.Escalation) escalation.Decision {
	decision := r.handler.Handle(esc)
	log := r.log.WithPackage(esc.PackageID)
	log.Warn("escalation raised", "kind", esc.Kind, "action", decision.Action)
	r.publish(event.NewEscalationRaisedEvent(
		r.feature.FeatureID, esc.PackageID, esc.ID, string(esc.Kind), string(decision.Action)))

	if decision.PauseRequired {
		r.pause(fmt.Sprintf("escalation %s: %s", esc.Kind, esc.Summary))
	}

	r.applyRevisionBump(decision.RevisionBump)

	switch decision.Action {
	case escalation.ActionRetryPackage, escalation.ActionQuarantineAndRetry:
		r.failPackage(esc.PackageID, ErrorCodeEscalation, esc.Summary)
	case escalation.ActionFailPackage:
		r.tripPackage(esc.PackageID, ErrorCodeEscalation, esc.Summary)
	case escalation.ActionPauseAndReschedule, escalation.ActionPauseAndReplan, escalation.ActionRequireHuman:
		// Pause already applied; dispatch stays held until Resume.
	}

	return decision
}

// applyRevisionBump advances the revision counters a decision names,
// making any in-flight result stale.
func (r *Runtime) applyRevisionBump(bump escalation.RevisionBump) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch bump {
	case escalation.BumpContracts:
		r.contractsRevision++
		r.log.Info("contracts revision bumped", "contracts_revision", r.contractsRevision)
	case escalation.BumpPlan:
		r.planRevision++
		r.log.Info("plan revision bumped", "plan_revision", r.planRevision)
	}
}

// pause publishes the pause sentinel and holds dispatch.
func (r *Runtime) pause(reason string) {
	r.mu.Lock()
	alreadyPaused := r.paused
	r.paused = true
	r.pauseReason = reason
	r.mu.Unlock()

	if alreadyPaused {
		return
	}
	if err := r.backend.Pause(r.feature.FeatureID, pauseOwner); err != nil {
		r.log.Error("pause sentinel publish failed", "error", err)
	}
	r.log.Warn("feature paused", "reason", reason)
	r.publish(event.NewFeaturePausedEvent(r.feature.FeatureID, reason))
}

// Pause holds dispatch with an operator-supplied reason.
func (r *Runtime) Pause(reason string) {
	r.pause(reason)
}

// Resume clears the pause sentinel and reopens dispatch.
func (r *Runtime) Resume() error {
	r.mu.Lock()
	wasPaused := r.paused
	r.paused = false
	r.pauseReason = ""
	r.mu.Unlock()

	if err := r.backend.Resume(r.feature.FeatureID); err != nil {
		return err
	}
	if wasPaused {
		r.log.Info("feature resumed")
		r.publish(event.NewFeatureResumedEvent(r.feature.FeatureID))
	}
	return nil
}

// RecordReview stores review findings for a package and re-evaluates
// the gate.
func (r *Runtime) RecordReview(packageID string, findings []integration.ReviewFinding) {
	r.tracker.RecordFindings(packageID, findings)
	gate := r.tracker.CheckIntegrationGate()

	var blocking []string
	for _, f := range gate.BlockingFinding {
		blocking = append(blocking, f.PackageID)
	}
	r.publish(event.NewGateEvaluatedEvent(r.feature.FeatureID, string(gate.Status), blocking))
}

// Gate evaluates the integration gate.
func (r *Runtime) Gate() integration.GateResult {
	return r.tracker.CheckIntegrationGate()
}

// Summary projects the run into an execution summary.
func (r *Runtime) Summary() integration.ExecutionSummary {
	return r.tracker.GenerateExecutionSummary()
}

// Queue exposes the package queue for status inspection.
func (r *Runtime) Queue() *PackageQueue { return r.queue }

// Breaker exposes the circuit breaker for state inspection.
func (r *Runtime) Breaker() *breaker.Breaker { return r.breaker }

// AuditLog returns the escalation decisions taken so far.
func (r *Runtime) AuditLog() []escalation.AuditEntry {
	return r.handler.AuditLog()
}

// Revisions returns the current plan and contracts revisions.
func (r *Runtime) Revisions() (planRev, contractsRev int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.planRevision, r.contractsRevision
}

// Reset discards all run state and starts the feature over from the
// plan: fresh queue, breaker, tracker, and revisions, pause cleared.
// Tests use this to rerun scenarios on one runtime.
func (r *Runtime) Reset() error {
	r.mu.Lock()
	r.queue = NewQueue(r.feature)
	r.breaker.Reset()
	r.tracker = integration.NewTracker(r.feature)
	r.planRevision = r.feature.PlanRevision
	r.contractsRevision = r.feature.ContractsRevision
	r.paused = false
	r.pauseReason = ""
	r.mu.Unlock()

	return r.backend.Resume(r.feature.FeatureID)
}
