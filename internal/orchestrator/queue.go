package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packflow/packflow/internal/plan"
)

// Sentinel errors returned by queue operations.
var (
	ErrPackageNotFound   = errors.New("package not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PackageStatus tracks a package through the dispatch lifecycle.
type PackageStatus string

const (
	StatusPending   PackageStatus = "pending"
	StatusClaimed   PackageStatus = "claimed"
	StatusRunning   PackageStatus = "running"
	StatusCompleted PackageStatus = "completed"
	StatusFailed    PackageStatus = "failed"
	StatusCancelled PackageStatus = "cancelled"
)

func (s PackageStatus) String() string { return string(s) }

// IsTerminal reports whether the status is final.
func (s PackageStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QueuedPackage is a work package plus its dispatch state.
type QueuedPackage struct {
	plan.WorkPackage

	Status      PackageStatus
	ClaimedBy   string // worker id holding the claim, empty when unclaimed
	ClaimedAt   *time.Time
	CompletedAt *time.Time
	// FailureContext carries the last failure description for retries.
	FailureContext string
}

// QueueStatus is a snapshot of queue state counts.
type QueueStatus struct {
	Total     int
	Pending   int
	Claimed   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// PackageQueue manages the packages of one feature plan with
// dependency-aware claiming. All methods are safe for concurrent use
// via an internal mutex.
type PackageQueue struct {
	mu       sync.Mutex
	feature  *plan.FeaturePlan
	packages map[string]*QueuedPackage
	order    []string // package IDs in topological order
}

// NewQueue creates a PackageQueue from a validated feature plan.
// The claim order is the plan's topological order; Validate must have
// rejected cycles before the queue is built.
func NewQueue(feature *plan.FeaturePlan) *PackageQueue {
	packages := make(map[string]*QueuedPackage, len(feature.Packages))
	for i := range feature.Packages {
		pkg := feature.Packages[i]
		packages[pkg.ID] = &QueuedPackage{
			WorkPackage: pkg,
			Status:      StatusPending,
		}
	}

	order, rest := plan.TopologicalOrder(feature)
	// A validated plan has no cycles; keep any remainder anyway so every
	// package appears in the snapshot.
	order = append(order, rest...)

	return &PackageQueue{
		feature:  feature,
		packages: packages,
		order:    order,
	}
}

// isClaimable reports whether a package is pending with all
// dependencies completed. The caller must hold the mutex.
func (q *PackageQueue) isClaimable(pkg *QueuedPackage) bool {
	if pkg.Status != StatusPending {
		return false
	}
	for _, dep := range pkg.DependsOn {
		depPkg, ok := q.packages[dep]
		if !ok || depPkg.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// ClaimNext returns the next claimable package for the given worker,
// or nil with no error when nothing is currently available.
func (q *PackageQueue) ClaimNext(workerID string) (*QueuedPackage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if workerID == "" {
		return nil, errors.New("workerID must not be empty")
	}

	for _, id := range q.order {
		pkg := q.packages[id]
		if q.isClaimable(pkg) {
			now := time.Now().UTC()
			pkg.Status = StatusClaimed
			pkg.ClaimedBy = workerID
			pkg.ClaimedAt = &now
			// Return a copy to avoid data races on the internal pointer.
			cp := *pkg
			return &cp, nil
		}
	}
	return nil, nil
}

// MarkRunning transitions a claimed package to running.
func (q *PackageQueue) MarkRunning(packageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pkg, ok := q.packages[packageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}
	if pkg.Status != StatusClaimed {
		return fmt.Errorf("%w: cannot transition %s from %s to running", ErrInvalidTransition, packageID, pkg.Status)
	}
	pkg.Status = StatusRunning
	return nil
}

// Complete marks a package as completed and returns the IDs of
// packages that became claimable as a result.
func (q *PackageQueue) Complete(packageID string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pkg, ok := q.packages[packageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}
	if pkg.Status != StatusRunning && pkg.Status != StatusClaimed {
		return nil, fmt.Errorf("%w: cannot complete package %s in status %s", ErrInvalidTransition, packageID, pkg.Status)
	}
	now := time.Now().UTC()
	pkg.Status = StatusCompleted
	pkg.CompletedAt = &now

	return q.unblockedBy(packageID), nil
}

// unblockedBy returns pending packages whose dependencies all
// completed once packageID did. The caller must hold the mutex.
func (q *PackageQueue) unblockedBy(packageID string) []string {
	var unblocked []string
	for _, id := range q.order {
		pkg := q.packages[id]
		if pkg.Status != StatusPending {
			continue
		}
		depends := false
		ready := true
		for _, dep := range pkg.DependsOn {
			if dep == packageID {
				depends = true
			}
			if depPkg, ok := q.packages[dep]; !ok || depPkg.Status != StatusCompleted {
				ready = false
				break
			}
		}
		if depends && ready {
			unblocked = append(unblocked, id)
		}
	}
	return unblocked
}

// Requeue returns a claimed or running package to pending for another
// attempt. Retry accounting lives in the circuit breaker, not here.
func (q *PackageQueue) Requeue(packageID, failureContext string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pkg, ok := q.packages[packageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}
	if pkg.Status != StatusRunning && pkg.Status != StatusClaimed {
		return fmt.Errorf("%w: cannot requeue package %s in status %s", ErrInvalidTransition, packageID, pkg.Status)
	}
	pkg.Status = StatusPending
	pkg.ClaimedBy = ""
	pkg.ClaimedAt = nil
	pkg.FailureContext = failureContext
	return nil
}

// MarkFailed permanently fails a package.
func (q *PackageQueue) MarkFailed(packageID, failureContext string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pkg, ok := q.packages[packageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}
	if pkg.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail package %s in status %s", ErrInvalidTransition, packageID, pkg.Status)
	}
	now := time.Now().UTC()
	pkg.Status = StatusFailed
	pkg.CompletedAt = &now
	pkg.FailureContext = failureContext
	return nil
}

// Cancel marks each named non-terminal package as cancelled and
// returns the IDs actually cancelled. Unknown IDs are skipped.
func (q *PackageQueue) Cancel(packageIDs []string, reason string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var cancelled []string
	for _, id := range packageIDs {
		pkg, ok := q.packages[id]
		if !ok || pkg.Status.IsTerminal() {
			continue
		}
		now := time.Now().UTC()
		pkg.Status = StatusCancelled
		pkg.CompletedAt = &now
		pkg.FailureContext = reason
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// Get returns a copy of the package with the given ID, or nil.
func (q *PackageQueue) Get(packageID string) *QueuedPackage {
	q.mu.Lock()
	defer q.mu.Unlock()

	pkg, ok := q.packages[packageID]
	if !ok {
		return nil
	}
	cp := *pkg
	return &cp
}

// Status returns a snapshot of the current queue state counts.
func (q *PackageQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s QueueStatus
	s.Total = len(q.packages)
	for _, pkg := range q.packages {
		switch pkg.Status {
		case StatusPending:
			s.Pending++
		case StatusClaimed:
			s.Claimed++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// IsComplete reports whether every package is in a terminal state.
func (q *PackageQueue) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pkg := range q.packages {
		if !pkg.Status.IsTerminal() {
			return false
		}
	}
	return len(q.packages) > 0
}

// Snapshot returns copies of all packages in claim order.
func (q *PackageQueue) Snapshot() []QueuedPackage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedPackage, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.packages[id])
	}
	return out
}
