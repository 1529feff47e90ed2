package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Severity classifies a validation message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Message is a single validation finding. Errors make the plan unsafe to
// execute; warnings are advisory.
type Message struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	PackageID  string   `json:"package_id,omitempty"`
	Field      string   `json:"field,omitempty"`
	RelatedIDs []string `json:"related_ids,omitempty"`
}

// IsError returns true if the message severity is error.
func (m Message) IsError() bool { return m.Severity == SeverityError }

// Result accumulates every violation found in a plan. Validation never
// short-circuits: a planner gets the full list in one round trip.
type Result struct {
	Valid        bool      `json:"valid"`
	Messages     []Message `json:"messages"`
	ErrorCount   int       `json:"error_count"`
	WarningCount int       `json:"warning_count"`
}

func (r *Result) add(msgs ...Message) {
	for _, m := range msgs {
		r.Messages = append(r.Messages, m)
		if m.IsError() {
			r.Valid = false
			r.ErrorCount++
		} else {
			r.WarningCount++
		}
	}
}

// Errors returns the messages with error severity.
func (r *Result) Errors() []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.IsError() {
			out = append(out, m)
		}
	}
	return out
}

var (
	featureIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	packageIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Validate runs the full validation suite over a plan and accumulates
// every violation. Execution must never start on a plan with errors.
func Validate(fp *FeaturePlan) *Result {
	result := &Result{Valid: true}
	if fp == nil {
		result.add(Message{Severity: SeverityError, Message: "plan is nil"})
		return result
	}

	result.add(CheckSchema(fp)...)
	result.add(CheckReferences(fp)...)
	result.add(CheckCycles(fp)...)
	result.add(CheckLockKeys(fp)...)
	result.add(CheckOverlap(fp)...)
	return result
}

// CheckSchema validates required fields, enum membership, and id naming.
func CheckSchema(fp *FeaturePlan) []Message {
	var msgs []Message

	if fp.FeatureID == "" {
		msgs = append(msgs, Message{Severity: SeverityError, Message: "feature_id is required", Field: "feature_id"})
	} else if !featureIDPattern.MatchString(fp.FeatureID) {
		msgs = append(msgs, Message{
			Severity: SeverityError,
			Message:  fmt.Sprintf("feature_id %q must match %s", fp.FeatureID, featureIDPattern),
			Field:    "feature_id",
		})
	}
	if fp.PlanRevision < 1 {
		msgs = append(msgs, Message{Severity: SeverityError, Message: "plan_revision must be at least 1", Field: "plan_revision"})
	}
	if fp.ContractsRevision < 1 {
		msgs = append(msgs, Message{Severity: SeverityError, Message: "contracts_revision must be at least 1", Field: "contracts_revision"})
	}
	if len(fp.Packages) == 0 {
		msgs = append(msgs, Message{Severity: SeverityError, Message: "plan has no packages", Field: "packages"})
		return msgs
	}

	seen := make(map[string]bool, len(fp.Packages))
	for i := range fp.Packages {
		pkg := &fp.Packages[i]

		if pkg.ID == "" {
			msgs = append(msgs, Message{Severity: SeverityError, Message: "package_id is required", Field: "package_id"})
		} else {
			if !packageIDPattern.MatchString(pkg.ID) {
				msgs = append(msgs, Message{
					Severity:  SeverityError,
					Message:   fmt.Sprintf("package_id %q must match %s", pkg.ID, packageIDPattern),
					PackageID: pkg.ID,
					Field:     "package_id",
				})
			}
			if seen[pkg.ID] {
				msgs = append(msgs, Message{
					Severity:  SeverityError,
					Message:   fmt.Sprintf("duplicate package_id %q", pkg.ID),
					PackageID: pkg.ID,
					Field:     "package_id",
				})
			}
			seen[pkg.ID] = true
		}

		if !pkg.TaskType.IsValid() {
			msgs = append(msgs, Message{
				Severity:  SeverityError,
				Message:   fmt.Sprintf("task_type %q is not one of contracts, implement, integrate", pkg.TaskType),
				PackageID: pkg.ID,
				Field:     "task_type",
			})
		}
		if pkg.TimeoutMinutes < 0 {
			msgs = append(msgs, Message{
				Severity:  SeverityError,
				Message:   "timeout_minutes must not be negative",
				PackageID: pkg.ID,
				Field:     "timeout_minutes",
			})
		}
		if pkg.RetryBudget < 0 {
			msgs = append(msgs, Message{
				Severity:  SeverityError,
				Message:   "retry_budget must not be negative",
				PackageID: pkg.ID,
				Field:     "retry_budget",
			})
		}
		for _, step := range pkg.Verification.Steps {
			if step.Name == "" {
				msgs = append(msgs, Message{
					Severity:  SeverityError,
					Message:   "verification step has no name",
					PackageID: pkg.ID,
					Field:     "verification.steps",
				})
			}
		}

		msgs = append(msgs, checkScopeGlobs(pkg)...)
	}

	integrations := 0
	for i := range fp.Packages {
		if fp.Packages[i].TaskType == TaskIntegrate {
			integrations++
		}
	}
	if integrations > 1 {
		msgs = append(msgs, Message{
			Severity: SeverityError,
			Message:  fmt.Sprintf("plan declares %d integration packages, at most one is allowed", integrations),
			Field:    "packages",
		})
	}

	return msgs
}

// checkScopeGlobs verifies every scope pattern compiles as a glob.
func checkScopeGlobs(pkg *WorkPackage) []Message {
	var msgs []Message
	check := func(field string, patterns []string) {
		for _, pat := range patterns {
			if _, err := glob.Compile(pat, '/'); err != nil {
				msgs = append(msgs, Message{
					Severity:  SeverityError,
					Message:   fmt.Sprintf("scope pattern %q does not compile: %v", pat, err),
					PackageID: pkg.ID,
					Field:     field,
				})
			}
		}
	}
	check("scope.write_allow", pkg.Scope.WriteAllow)
	check("scope.read_allow", pkg.Scope.ReadAllow)
	check("scope.deny", pkg.Scope.Deny)
	return msgs
}

// CheckReferences reports depends_on entries that name no existing package.
func CheckReferences(fp *FeaturePlan) []Message {
	known := make(map[string]bool, len(fp.Packages))
	for i := range fp.Packages {
		known[fp.Packages[i].ID] = true
	}

	var msgs []Message
	for i := range fp.Packages {
		pkg := &fp.Packages[i]
		for _, dep := range pkg.DependsOn {
			if !known[dep] {
				msgs = append(msgs, Message{
					Severity:   SeverityError,
					Message:    fmt.Sprintf("depends on unknown package %q", dep),
					PackageID:  pkg.ID,
					Field:      "depends_on",
					RelatedIDs: []string{dep},
				})
			}
		}
	}
	return msgs
}

// CheckCycles reports every recovered elementary dependency cycle.
func CheckCycles(fp *FeaturePlan) []Message {
	var msgs []Message
	for _, cycle := range DetectCycles(fp) {
		msgs = append(msgs, Message{
			Severity:   SeverityError,
			Message:    fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
			Field:      "depends_on",
			RelatedIDs: cycle,
		})
	}
	return msgs
}

// CheckLockKeys canonicalizes every logical lock key against the namespace
// grammar. Unknown namespaces and malformed keys in known namespaces are
// both reported, each with its own wording.
func CheckLockKeys(fp *FeaturePlan) []Message {
	var msgs []Message
	for i := range fp.Packages {
		pkg := &fp.Packages[i]
		for _, key := range pkg.Locks.Keys {
			if _, err := CanonicalizeLockKey(key); err != nil {
				msgs = append(msgs, Message{
					Severity:  SeverityError,
					Message:   err.Error(),
					PackageID: pkg.ID,
					Field:     "locks.keys",
				})
			}
		}
	}
	return msgs
}

// CheckOverlap flags scope and lock collisions between packages that may
// run in parallel. Pairs involving the integration package are exempt:
// integration runs alone behind the gate and is allowed to touch everything.
func CheckOverlap(fp *FeaturePlan) []Message {
	var msgs []Message
	for _, pair := range ParallelPairs(fp) {
		a, b := fp.Package(pair.A), fp.Package(pair.B)
		if a == nil || b == nil {
			continue
		}
		if a.IsIntegration() || b.IsIntegration() {
			continue
		}

		related := []string{a.ID, b.ID}

		for _, f := range intersect(a.Locks.Files, b.Locks.Files) {
			msgs = append(msgs, Message{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("parallel packages %s and %s both lock file %q", a.ID, b.ID, f),
				Field:      "locks.files",
				RelatedIDs: related,
			})
		}
		for _, k := range intersect(a.Locks.Keys, b.Locks.Keys) {
			msgs = append(msgs, Message{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("parallel packages %s and %s both lock key %q", a.ID, b.ID, k),
				Field:      "locks.keys",
				RelatedIDs: related,
			})
		}
		for _, overlap := range globOverlaps(a.Scope.WriteAllow, b.Scope.WriteAllow) {
			msgs = append(msgs, Message{
				Severity:   SeverityError,
				Message:    fmt.Sprintf("parallel packages %s and %s have overlapping write scopes %q and %q", a.ID, b.ID, overlap[0], overlap[1]),
				Field:      "scope.write_allow",
				RelatedIDs: related,
			})
		}
	}
	return msgs
}

// intersect returns the sorted common members of two string sets.
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range b {
		if set[s] && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	sort.Strings(out)
	return out
}

// globOverlaps reports pattern pairs from the two sets that can match a
// common path. Full glob-intersection is undecidable cheaply; the mutual
// match rule (either pattern matches the other's literal text, or they are
// equal) catches the collisions feature plans actually produce: identical
// patterns, and a wildcard pattern covering a literal path.
func globOverlaps(setA, setB []string) [][2]string {
	var out [][2]string
	for _, pa := range setA {
		ga, errA := glob.Compile(pa, '/')
		for _, pb := range setB {
			if pa == pb {
				out = append(out, [2]string{pa, pb})
				continue
			}
			gb, errB := glob.Compile(pb, '/')
			if errA == nil && ga.Match(pb) {
				out = append(out, [2]string{pa, pb})
				continue
			}
			if errB == nil && gb.Match(pa) {
				out = append(out, [2]string{pa, pb})
			}
		}
	}
	return out
}
