package plan

import "sort"

// PackagePair is an unordered pair of package ids, stored in lexicographic
// order so each pair is reported exactly once.
type PackagePair struct {
	A string
	B string
}

// NewPackagePair normalizes the pair ordering.
func NewPackagePair(a, b string) PackagePair {
	if b < a {
		a, b = b, a
	}
	return PackagePair{A: a, B: b}
}

// dependencyEdges builds the depends_on adjacency restricted to packages
// that actually exist in the plan. Dangling references are dropped here;
// the dangling-reference check reports them separately.
func dependencyEdges(fp *FeaturePlan) map[string][]string {
	known := make(map[string]bool, len(fp.Packages))
	for i := range fp.Packages {
		known[fp.Packages[i].ID] = true
	}

	edges := make(map[string][]string, len(fp.Packages))
	for i := range fp.Packages {
		pkg := &fp.Packages[i]
		for _, dep := range pkg.DependsOn {
			if known[dep] {
				edges[pkg.ID] = append(edges[pkg.ID], dep)
			}
		}
	}
	return edges
}

// DependencyClosure computes, for every package, the set of package ids it
// transitively depends on. Feature graphs are small (tens of packages), so
// a per-node worklist walk is plenty.
func DependencyClosure(fp *FeaturePlan) map[string]map[string]bool {
	edges := dependencyEdges(fp)

	closure := make(map[string]map[string]bool, len(fp.Packages))
	for i := range fp.Packages {
		id := fp.Packages[i].ID
		reach := make(map[string]bool)
		stack := append([]string(nil), edges[id]...)
		for len(stack) > 0 {
			next := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reach[next] {
				continue
			}
			reach[next] = true
			stack = append(stack, edges[next]...)
		}
		closure[id] = reach
	}
	return closure
}

// ParallelPairs returns every unordered pair of packages with no dependency
// relation in either direction of the transitive closure. Such pairs may
// execute fully in parallel, so the validator must prove they cannot
// collide on scope or locks.
func ParallelPairs(fp *FeaturePlan) []PackagePair {
	closure := DependencyClosure(fp)
	ids := fp.PackageIDs()
	sort.Strings(ids)

	var pairs []PackagePair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if closure[a][b] || closure[b][a] {
				continue
			}
			pairs = append(pairs, NewPackagePair(a, b))
		}
	}
	return pairs
}

// TopologicalOrder sorts the plan's packages by in-degree elimination.
// It returns the sorted ids and the unresolved remainder; a non-empty
// remainder means every remaining package participates in, or depends on,
// at least one dependency cycle.
func TopologicalOrder(fp *FeaturePlan) (order []string, remainder []string) {
	edges := dependencyEdges(fp)

	inDegree := make(map[string]int, len(fp.Packages))
	dependents := make(map[string][]string, len(fp.Packages))
	for i := range fp.Packages {
		inDegree[fp.Packages[i].ID] = 0
	}
	for id, deps := range edges {
		// Self-dependencies keep their node permanently unresolved.
		for _, dep := range deps {
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	resolved := make(map[string]bool, len(inDegree))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		resolved[id] = true

		var freed []string
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				freed = append(freed, dep)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	for id := range inDegree {
		if !resolved[id] {
			remainder = append(remainder, id)
		}
	}
	sort.Strings(remainder)
	return order, remainder
}

// DetectCycles recovers elementary dependency cycles. It topologically
// eliminates what it can, then runs a depth-first search restricted to the
// unresolved remainder, recovering at least one elementary cycle per
// unresolved component. A self-dependency yields a cycle containing that
// package twice.
func DetectCycles(fp *FeaturePlan) [][]string {
	_, remainder := TopologicalOrder(fp)
	if len(remainder) == 0 {
		return nil
	}

	inRemainder := make(map[string]bool, len(remainder))
	for _, id := range remainder {
		inRemainder[id] = true
	}

	edges := dependencyEdges(fp)

	var cycles [][]string
	visited := make(map[string]bool, len(remainder))

	// onPath tracks the current DFS stack for cycle extraction.
	var walk func(id string, path []string, onPath map[string]int) []string
	walk = func(id string, path []string, onPath map[string]int) []string {
		path = append(path, id)
		onPath[id] = len(path) - 1
		visited[id] = true

		deps := append([]string(nil), edges[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if !inRemainder[dep] {
				continue
			}
			if start, ok := onPath[dep]; ok {
				cycle := append([]string(nil), path[start:]...)
				return append(cycle, dep)
			}
			if visited[dep] {
				continue
			}
			if cycle := walk(dep, path, onPath); cycle != nil {
				return cycle
			}
		}
		delete(onPath, id)
		return nil
	}

	for _, id := range remainder {
		if visited[id] {
			continue
		}
		if cycle := walk(id, nil, make(map[string]int)); cycle != nil {
			cycles = append(cycles, cycle)
		}
	}
	return cycles
}

// DirectDependents returns the ids of packages that list the given package
// in depends_on, sorted for deterministic output.
func DirectDependents(fp *FeaturePlan, id string) []string {
	var out []string
	for i := range fp.Packages {
		pkg := &fp.Packages[i]
		for _, dep := range pkg.DependsOn {
			if dep == id {
				out = append(out, pkg.ID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// TransitiveDependents returns every package that transitively depends on
// the given package, via breadth-first search over the dependent edges.
// These are the packages that must be cancelled when the given package is
// permanently failed.
func TransitiveDependents(fp *FeaturePlan, id string) []string {
	dependents := make(map[string][]string, len(fp.Packages))
	for i := range fp.Packages {
		pkg := &fp.Packages[i]
		for _, dep := range pkg.DependsOn {
			dependents[dep] = append(dependents[dep], pkg.ID)
		}
	}

	seen := make(map[string]bool)
	queue := append([]string(nil), dependents[id]...)
	var out []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] || next == id {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, dependents[next]...)
	}
	sort.Strings(out)
	return out
}
