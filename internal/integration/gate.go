// Package integration tracks per-feature results and review findings and
// applies the merge gate for the integration package.
//
// The gate is a hold, not an error: a blocked feature is healthy but not
// mergeable, and clears once findings are addressed and re-reviewed. Only
// a PASS permits dispatching the integration package.
package integration

import (
	"sort"
	"sync"

	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

// Disposition is a reviewer's verdict on one finding.
type Disposition string

const (
	DispositionFix        Disposition = "fix"
	DispositionRegenerate Disposition = "regenerate"
	DispositionAccept     Disposition = "accept"
	DispositionEscalate   Disposition = "escalate"
)

// IsValid returns true if the disposition is a recognized value.
func (d Disposition) IsValid() bool {
	switch d {
	case DispositionFix, DispositionRegenerate, DispositionAccept, DispositionEscalate:
		return true
	}
	return false
}

// Blocking returns true for dispositions that hold the gate.
func (d Disposition) Blocking() bool {
	return d == DispositionFix || d == DispositionRegenerate || d == DispositionEscalate
}

// ReviewFinding is one typed verdict produced by the external review
// tooling for a package's accepted result.
type ReviewFinding struct {
	ID          string      `json:"finding_id"`
	PackageID   string      `json:"package_id"`
	Disposition Disposition `json:"disposition"`
	Summary     string      `json:"summary,omitempty"`
}

// GateStatus is the outcome of one integration gate check.
type GateStatus string

const (
	GatePass              GateStatus = "PASS"
	GateBlockedIncomplete GateStatus = "BLOCKED_INCOMPLETE"
	GateBlockedEscalate   GateStatus = "BLOCKED_ESCALATE"
	GateBlockedFix        GateStatus = "BLOCKED_FIX"
)

// GateResult carries the gate status plus what is holding it.
type GateResult struct {
	Status          GateStatus      `json:"status"`
	MissingResults  []string        `json:"missing_results,omitempty"`
	MissingReviews  []string        `json:"missing_reviews,omitempty"`
	BlockingFinding []ReviewFinding `json:"blocking_findings,omitempty"`
}

// Tracker owns a feature's accepted results and review findings. One
// orchestrator goroutine owns it per feature run; the mutex covers the
// CLI reading summaries mid-run.
type Tracker struct {
	mu       sync.RWMutex
	plan     *plan.FeaturePlan
	results  map[string]*result.WorkQueueResult
	findings map[string][]ReviewFinding
	reviewed map[string]bool
}

// NewTracker creates an empty tracker for the plan.
func NewTracker(fp *plan.FeaturePlan) *Tracker {
	return &Tracker{
		plan:     fp,
		results:  make(map[string]*result.WorkQueueResult),
		findings: make(map[string][]ReviewFinding),
		reviewed: make(map[string]bool),
	}
}

// RecordResult stores the accepted result for a package. A later attempt
// replaces an earlier one.
func (t *Tracker) RecordResult(r *result.WorkQueueResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[r.PackageID] = r
}

// Result returns the recorded result for a package, or nil.
func (t *Tracker) Result(packageID string) *result.WorkQueueResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.results[packageID]
}

// RecordFindings stores a package's review findings. An empty findings
// list still marks the package as reviewed; the gate distinguishes
// "reviewed clean" from "not yet reviewed".
func (t *Tracker) RecordFindings(packageID string, findings []ReviewFinding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.findings[packageID] = append([]ReviewFinding(nil), findings...)
	t.reviewed[packageID] = true
}

// Findings returns the recorded findings for a package.
func (t *Tracker) Findings(packageID string) []ReviewFinding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ReviewFinding(nil), t.findings[packageID]...)
}

// CheckIntegrationGate evaluates the merge gate:
//
//  1. any non-integration package missing a result blocks as incomplete;
//  2. any completed package missing review findings blocks as incomplete;
//  3. any escalate disposition blocks as escalate, pre-empting fixes;
//  4. any fix or regenerate disposition blocks as fix;
//  5. otherwise the gate passes.
func (t *Tracker) CheckIntegrationGate() GateResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.checkGateLocked()
}

// checkGateLocked evaluates the gate; the caller holds the lock.
func (t *Tracker) checkGateLocked() GateResult {
	var missingResults []string
	var missingReviews []string
	for i := range t.plan.Packages {
		pkg := &t.plan.Packages[i]
		if pkg.IsIntegration() {
			continue
		}
		if _, ok := t.results[pkg.ID]; !ok {
			missingResults = append(missingResults, pkg.ID)
			continue
		}
		if !t.reviewed[pkg.ID] {
			missingReviews = append(missingReviews, pkg.ID)
		}
	}
	sort.Strings(missingResults)
	sort.Strings(missingReviews)

	if len(missingResults) > 0 || len(missingReviews) > 0 {
		return GateResult{
			Status:         GateBlockedIncomplete,
			MissingResults: missingResults,
			MissingReviews: missingReviews,
		}
	}

	var escalate, fix []ReviewFinding
	for _, pkgID := range sortedKeys(t.findings) {
		for _, f := range t.findings[pkgID] {
			switch f.Disposition {
			case DispositionEscalate:
				escalate = append(escalate, f)
			case DispositionFix, DispositionRegenerate:
				fix = append(fix, f)
			}
		}
	}

	// Escalations pre-empt plain fixes even when both are present.
	if len(escalate) > 0 {
		return GateResult{Status: GateBlockedEscalate, BlockingFinding: escalate}
	}
	if len(fix) > 0 {
		return GateResult{Status: GateBlockedFix, BlockingFinding: fix}
	}
	return GateResult{Status: GatePass}
}

func sortedKeys(m map[string][]ReviewFinding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
