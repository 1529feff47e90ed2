// Package plan defines the feature plan data model and its validator.
//
// A feature plan decomposes one feature into work packages, each with a
// dependency list, declared file and logical-key locks, a write scope, a
// retry budget, and a verification spec. The validator certifies that a
// plan is safe to execute in parallel: it accumulates every violation it
// finds rather than stopping at the first, so a planner can fix a plan in
// one round trip.
//
// # Checks
//
// [Validate] runs the full suite:
//   - Schema: required fields, enum membership, id naming pattern
//   - Cycles: in-degree topological sort; unresolved remainders are walked
//     to recover at least one elementary cycle per component
//   - Dangling references: every depends_on entry must name a package
//   - Lock keys: each key is matched against the namespace grammar,
//     preferring the longest matching namespace prefix
//   - Parallel pairs: packages with no dependency relation in either
//     direction of the transitive closure
//   - Overlap: parallel pairs may not share lock files, lock keys, or
//     mutually matching write_allow globs (the integration package is
//     exempt, it is allowed to touch everything)
//
// All checks are pure functions over the plan; nothing here performs I/O
// except [Load], which reads a YAML plan document.
package plan
