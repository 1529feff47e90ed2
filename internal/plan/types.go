package plan

// TaskType categorizes a work package's role within a feature.
type TaskType string

const (
	// TaskContracts produces the shared interfaces other packages build against.
	TaskContracts TaskType = "contracts"

	// TaskImplement implements one disjoint slice of the feature.
	TaskImplement TaskType = "implement"

	// TaskIntegrate merges completed slices; it is allowed to touch everything
	// and only runs once the integration gate passes.
	TaskIntegrate TaskType = "integrate"
)

// IsValid returns true if the task type is a recognized value.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskContracts, TaskImplement, TaskIntegrate:
		return true
	}
	return false
}

// String returns the string representation of the task type.
func (t TaskType) String() string {
	return string(t)
}

// Locks declares the resources a package claims before it touches anything.
type Locks struct {
	// Files are repository paths locked for exclusive modification.
	Files []string `yaml:"files" json:"files"`

	// Keys are logical resource identifiers (API routes, schemas, flags)
	// subject to the same mutual-exclusion discipline as files.
	Keys []string `yaml:"keys" json:"keys"`
}

// Scope bounds the files a package may read and write, as glob sets.
// Deny takes precedence over WriteAllow.
type Scope struct {
	WriteAllow []string `yaml:"write_allow" json:"write_allow"`
	ReadAllow  []string `yaml:"read_allow" json:"read_allow"`
	Deny       []string `yaml:"deny" json:"deny"`
}

// VerificationStep is one declared verification command for a package.
type VerificationStep struct {
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind" json:"kind"`
	Command string `yaml:"command" json:"command"`
}

// Verification declares how a package's work is checked before acceptance.
type Verification struct {
	Tier  string             `yaml:"tier" json:"tier"`
	Steps []VerificationStep `yaml:"steps" json:"steps"`
}

// Outputs declares the result keys a package must surface in its result.
type Outputs struct {
	ResultKeys []string `yaml:"result_keys" json:"result_keys"`
}

// WorkPackage is one unit of feature work assigned to a single worker.
type WorkPackage struct {
	ID             string       `yaml:"package_id" json:"package_id"`
	TaskType       TaskType     `yaml:"task_type" json:"task_type"`
	DependsOn      []string     `yaml:"depends_on" json:"depends_on"`
	Locks          Locks        `yaml:"locks" json:"locks"`
	Scope          Scope        `yaml:"scope" json:"scope"`
	TimeoutMinutes int          `yaml:"timeout_minutes" json:"timeout_minutes"`
	RetryBudget    int          `yaml:"retry_budget" json:"retry_budget"`
	MinTrustLevel  string       `yaml:"min_trust_level" json:"min_trust_level"`
	Verification   Verification `yaml:"verification" json:"verification"`
	Outputs        Outputs      `yaml:"outputs" json:"outputs"`
}

// IsIntegration returns true if this is the feature's integration package.
func (p *WorkPackage) IsIntegration() bool {
	return p.TaskType == TaskIntegrate
}

// FeaturePlan is the full decomposition of one feature into work packages.
// Revisions bump only in response to escalations; a bump invalidates every
// in-flight result carrying the superseded number.
type FeaturePlan struct {
	FeatureID         string        `yaml:"feature_id" json:"feature_id"`
	PlanRevision      int           `yaml:"plan_revision" json:"plan_revision"`
	ContractsRevision int           `yaml:"contracts_revision" json:"contracts_revision"`
	Packages          []WorkPackage `yaml:"packages" json:"packages"`
}

// Package returns the package with the given id, or nil if absent.
func (fp *FeaturePlan) Package(id string) *WorkPackage {
	for i := range fp.Packages {
		if fp.Packages[i].ID == id {
			return &fp.Packages[i]
		}
	}
	return nil
}

// PackageIDs returns the ids of all packages in declaration order.
func (fp *FeaturePlan) PackageIDs() []string {
	ids := make([]string, 0, len(fp.Packages))
	for i := range fp.Packages {
		ids = append(ids, fp.Packages[i].ID)
	}
	return ids
}

// IntegrationPackage returns the plan's integration package, or nil if the
// plan does not declare one.
func (fp *FeaturePlan) IntegrationPackage() *WorkPackage {
	for i := range fp.Packages {
		if fp.Packages[i].TaskType == TaskIntegrate {
			return &fp.Packages[i]
		}
	}
	return nil
}
