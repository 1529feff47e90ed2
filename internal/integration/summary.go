package integration

import (
	"time"

	"github.com/packflow/packflow/internal/result"
)

// PackageTimeline is one package's row in the execution summary.
type PackageTimeline struct {
	PackageID  string        `json:"package_id"`
	Status     result.Status `json:"status"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

// ReviewStats counts findings by disposition across the feature.
type ReviewStats struct {
	Fix        int `json:"fix"`
	Regenerate int `json:"regenerate"`
	Accept     int `json:"accept"`
	Escalate   int `json:"escalate"`
}

// ExecutionSummary is the read-only projection of a feature run: the
// feature's audit record.
type ExecutionSummary struct {
	FeatureID string            `json:"feature_id"`
	Packages  []PackageTimeline `json:"packages"`
	Reviews   ReviewStats       `json:"reviews"`
	Gate      GateResult        `json:"gate"`
}

// GenerateExecutionSummary projects the tracker's state into a summary.
// It reads and never mutates.
func (t *Tracker) GenerateExecutionSummary() ExecutionSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := ExecutionSummary{FeatureID: t.plan.FeatureID}

	for i := range t.plan.Packages {
		pkg := &t.plan.Packages[i]
		row := PackageTimeline{PackageID: pkg.ID, Status: result.StatusPending}
		if r, ok := t.results[pkg.ID]; ok {
			row.Status = r.Status
			row.Attempts = r.Attempt
			row.StartedAt = r.StartedAt
			row.FinishedAt = r.FinishedAt
			row.ErrorCode = r.ErrorCode
		}
		summary.Packages = append(summary.Packages, row)
	}

	for _, findings := range t.findings {
		for _, f := range findings {
			switch f.Disposition {
			case DispositionFix:
				summary.Reviews.Fix++
			case DispositionRegenerate:
				summary.Reviews.Regenerate++
			case DispositionAccept:
				summary.Reviews.Accept++
			case DispositionEscalate:
				summary.Reviews.Escalate++
			}
		}
	}

	summary.Gate = t.checkGateLocked()
	return summary
}
