// Package breaker provides per-package liveness and retry-budget tracking
// for one feature run.
//
// This package tracks heartbeats, detects stuck packages against their
// configured timeouts, accounts retry attempts against each package's
// budget, and marks packages as permanently tripped. It also answers
// dependent queries so the orchestrator can cascade cancellation to the
// transitive consumers of a failed package.
//
// The breaker only observes and reports; the orchestrator decides retry
// versus trip versus cascade. All state is transient and reset per run.
package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/packflow/packflow/internal/plan"
)

// PackageState tracks liveness and retry accounting for one package.
type PackageState struct {
	PackageID    string    `json:"package_id"`
	LastSeen     time.Time `json:"last_seen"`
	AttemptCount int       `json:"attempt_count"`
	RetryBudget  int       `json:"retry_budget"`
	Tripped      bool      `json:"tripped"`
	LastError    string    `json:"last_error,omitempty"`
}

// StuckPackage reports a monitored package whose heartbeat has gone silent
// past its timeout. Stuck is advisory and non-terminal; only Trip ends a
// package.
type StuckPackage struct {
	PackageID string
	LastSeen  time.Time
	Timeout   time.Duration
}

// Breaker tracks heartbeats, retry budgets, and tripped packages for one
// feature run. It is safe for concurrent use, though a single orchestrator
// goroutine owns it in practice.
type Breaker struct {
	mu             sync.RWMutex
	plan           *plan.FeaturePlan
	states         map[string]*PackageState
	defaultTimeout time.Duration
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithDefaultTimeout sets the stuck-detection timeout used for packages
// that declare no timeout_minutes of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		b.defaultTimeout = d
	}
}

// DefaultTimeout is the fallback stuck-detection window.
const DefaultTimeout = 30 * time.Minute

// New creates a Breaker for the given plan. Retry budgets come from the
// plan's packages; heartbeat state starts empty (unmonitored).
func New(fp *plan.FeaturePlan, opts ...Option) *Breaker {
	b := &Breaker{
		plan:           fp,
		states:         make(map[string]*PackageState),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// stateLocked returns or creates the state for a package while the write
// lock is held.
func (b *Breaker) stateLocked(id string) *PackageState {
	state, ok := b.states[id]
	if !ok {
		budget := 0
		if pkg := b.plan.Package(id); pkg != nil {
			budget = pkg.RetryBudget
		}
		state = &PackageState{PackageID: id, RetryBudget: budget}
		b.states[id] = state
	}
	return state
}

// Heartbeat records the last-seen time for a package, moving it into the
// monitored set. A refreshed heartbeat resets the stuck window.
func (b *Breaker) Heartbeat(id string, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked(id)
	if ts.After(state.LastSeen) {
		state.LastSeen = ts
	}
}

// CheckStuckPackages reports every monitored, non-tripped package whose
// last heartbeat is older than its timeout at the given check time.
// Packages that never heartbeat are unmonitored and never reported.
func (b *Breaker) CheckStuckPackages(now time.Time) []StuckPackage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var stuck []StuckPackage
	for id, state := range b.states {
		if state.Tripped || state.LastSeen.IsZero() {
			continue
		}
		timeout := b.timeoutFor(id)
		if now.Sub(state.LastSeen) > timeout {
			stuck = append(stuck, StuckPackage{
				PackageID: id,
				LastSeen:  state.LastSeen,
				Timeout:   timeout,
			})
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].PackageID < stuck[j].PackageID })
	return stuck
}

// timeoutFor resolves a package's stuck window, falling back to the
// process default when the plan declares none.
func (b *Breaker) timeoutFor(id string) time.Duration {
	if pkg := b.plan.Package(id); pkg != nil && pkg.TimeoutMinutes > 0 {
		return time.Duration(pkg.TimeoutMinutes) * time.Minute
	}
	return b.defaultTimeout
}

// CanRetry returns true while the package has retry budget left. The
// budget counts retries beyond the first dispatch: a budget of 1 allows
// exactly one retry, two total attempts.
func (b *Breaker) CanRetry(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[id]
	if !ok {
		pkg := b.plan.Package(id)
		return pkg != nil && pkg.RetryBudget > 0
	}
	return !state.Tripped && state.AttemptCount < state.RetryBudget
}

// RecordAttempt consumes one unit of retry budget. The count is monotone;
// nothing ever decreases it.
func (b *Breaker) RecordAttempt(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stateLocked(id).AttemptCount++
}

// AttemptCount returns the number of retries consumed so far.
func (b *Breaker) AttemptCount(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[id]
	if !ok {
		return 0
	}
	return state.AttemptCount
}

// SetLastError records the most recent failure for diagnostics.
func (b *Breaker) SetLastError(id, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stateLocked(id).LastError = errMsg
}

// Trip marks a package as permanently failed. Tripped packages are
// excluded from further stuck checks and can never retry.
func (b *Breaker) Trip(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stateLocked(id).Tripped = true
}

// IsTripped returns whether the package has been permanently failed.
func (b *Breaker) IsTripped(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[id]
	return ok && state.Tripped
}

// TrippedPackages returns the ids of all tripped packages, sorted.
func (b *Breaker) TrippedPackages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for id, state := range b.states {
		if state.Tripped {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// GetDependentPackages returns the direct consumers of a package.
func (b *Breaker) GetDependentPackages(id string) []string {
	return plan.DirectDependents(b.plan, id)
}

// GetTransitiveDependents returns every package that transitively depends
// on the given one. The orchestrator cancels these before dispatch once
// the package trips; cancellation is cooperative and never interrupts a
// dependent that is already running.
func (b *Breaker) GetTransitiveDependents(id string) []string {
	return plan.TransitiveDependents(b.plan, id)
}

// State returns a copy of a package's state, or nil if unmonitored.
func (b *Breaker) State(id string) *PackageState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.states[id]
	if !ok {
		return nil
	}
	copied := *state
	return &copied
}

// Reset clears all transient state, returning every package to
// unmonitored. Intended for tests and for starting a fresh run over the
// same plan.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = make(map[string]*PackageState)
}
