package plan

import (
	"reflect"
	"testing"
)

// makePlan builds a minimal valid plan around the given packages.
func makePlan(pkgs ...WorkPackage) *FeaturePlan {
	return &FeaturePlan{
		FeatureID:         "checkout",
		PlanRevision:      1,
		ContractsRevision: 1,
		Packages:          pkgs,
	}
}

func pkg(id string, deps ...string) WorkPackage {
	return WorkPackage{
		ID:        id,
		TaskType:  TaskImplement,
		DependsOn: deps,
	}
}

func TestTopologicalOrder(t *testing.T) {
	tests := []struct {
		name          string
		pkgs          []WorkPackage
		wantResolved  int
		wantRemainder []string
	}{
		{
			name:         "linear chain",
			pkgs:         []WorkPackage{pkg("a"), pkg("b", "a"), pkg("c", "b")},
			wantResolved: 3,
		},
		{
			name:         "diamond",
			pkgs:         []WorkPackage{pkg("a"), pkg("b", "a"), pkg("c", "a"), pkg("d", "b", "c")},
			wantResolved: 4,
		},
		{
			name:          "two node cycle",
			pkgs:          []WorkPackage{pkg("a", "b"), pkg("b", "a"), pkg("c")},
			wantResolved:  1,
			wantRemainder: []string{"a", "b"},
		},
		{
			name:          "self dependency",
			pkgs:          []WorkPackage{pkg("a", "a"), pkg("b")},
			wantResolved:  1,
			wantRemainder: []string{"a"},
		},
		{
			name:          "downstream of cycle is unresolved",
			pkgs:          []WorkPackage{pkg("a", "b"), pkg("b", "a"), pkg("c", "a")},
			wantResolved:  0,
			wantRemainder: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, remainder := TopologicalOrder(makePlan(tt.pkgs...))
			if len(order) != tt.wantResolved {
				t.Errorf("resolved %d packages, want %d (order=%v)", len(order), tt.wantResolved, order)
			}
			if !reflect.DeepEqual(remainder, tt.wantRemainder) {
				t.Errorf("remainder = %v, want %v", remainder, tt.wantRemainder)
			}
			// Every resolved package must come after its dependencies.
			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, p := range tt.pkgs {
				if _, ok := pos[p.ID]; !ok {
					continue
				}
				for _, dep := range p.DependsOn {
					dp, ok := pos[dep]
					if ok && dp > pos[p.ID] {
						t.Errorf("package %s sorted before its dependency %s", p.ID, dep)
					}
				}
			}
		})
	}
}

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic plan has no cycles", func(t *testing.T) {
		fp := makePlan(pkg("a"), pkg("b", "a"), pkg("c", "a", "b"))
		if cycles := DetectCycles(fp); cycles != nil {
			t.Errorf("DetectCycles() = %v, want nil", cycles)
		}
	})

	t.Run("self dependency contains the package twice", func(t *testing.T) {
		fp := makePlan(pkg("a", "a"))
		cycles := DetectCycles(fp)
		if len(cycles) != 1 {
			t.Fatalf("got %d cycles, want 1", len(cycles))
		}
		if !reflect.DeepEqual(cycles[0], []string{"a", "a"}) {
			t.Errorf("cycle = %v, want [a a]", cycles[0])
		}
	})

	t.Run("two node cycle", func(t *testing.T) {
		fp := makePlan(pkg("a", "b"), pkg("b", "a"))
		cycles := DetectCycles(fp)
		if len(cycles) != 1 {
			t.Fatalf("got %d cycles, want 1", len(cycles))
		}
		cycle := cycles[0]
		if len(cycle) != 3 || cycle[0] != cycle[len(cycle)-1] {
			t.Errorf("cycle = %v, want a closed walk of length 3", cycle)
		}
	})

	t.Run("two disjoint cycles recover one each", func(t *testing.T) {
		fp := makePlan(pkg("a", "b"), pkg("b", "a"), pkg("c", "d"), pkg("d", "c"))
		cycles := DetectCycles(fp)
		if len(cycles) != 2 {
			t.Fatalf("got %d cycles, want 2: %v", len(cycles), cycles)
		}
	})
}

func TestParallelPairs(t *testing.T) {
	tests := []struct {
		name string
		pkgs []WorkPackage
		want []PackagePair
	}{
		{
			name: "linear chain yields no pairs",
			pkgs: []WorkPackage{pkg("a"), pkg("b", "a"), pkg("c", "b")},
			want: nil,
		},
		{
			name: "three independent packages yield three pairs",
			pkgs: []WorkPackage{pkg("a"), pkg("b"), pkg("c")},
			want: []PackagePair{{"a", "b"}, {"a", "c"}, {"b", "c"}},
		},
		{
			name: "transitive dependency is not parallel",
			pkgs: []WorkPackage{pkg("a"), pkg("b", "a"), pkg("c", "b"), pkg("d")},
			want: []PackagePair{{"a", "d"}, {"b", "d"}, {"c", "d"}},
		},
		{
			name: "siblings are parallel",
			pkgs: []WorkPackage{pkg("a"), pkg("b", "a"), pkg("c", "a")},
			want: []PackagePair{{"b", "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParallelPairs(makePlan(tt.pkgs...))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParallelPairs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitiveDependents(t *testing.T) {
	fp := makePlan(
		pkg("contracts"),
		pkg("backend", "contracts"),
		pkg("frontend", "contracts"),
		pkg("integration", "backend", "frontend"),
	)

	tests := []struct {
		id   string
		want []string
	}{
		{"contracts", []string{"backend", "frontend", "integration"}},
		{"backend", []string{"integration"}},
		{"integration", nil},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := TransitiveDependents(fp, tt.id)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TransitiveDependents(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestDirectDependents(t *testing.T) {
	fp := makePlan(pkg("a"), pkg("b", "a"), pkg("c", "a"), pkg("d", "b"))
	got := DirectDependents(fp, "a")
	want := []string{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DirectDependents(a) = %v, want %v", got, want)
	}
}
