// Package coordination defines the lock-table contract the orchestrator
// and executors depend on, plus two reference backends.
//
// The core never implements mutual exclusion itself: it computes what to
// lock and in what order, and delegates the atomic claim to a [Backend].
// Locks are keyed by the union of file paths and logical keys from the
// plan. The reserved key "feature:<feature_id>:pause" is the pause
// sentinel: while held, every worker on the feature must stop acquiring
// new locks and must not finalize work.
//
// [Memory] is the in-process backend used by the orchestrator's local mode
// and by tests. [Dir] keeps the lock table as files in a directory so
// workers in separate processes on one machine can share it; its pause
// sentinel is observable via fsnotify.
package coordination
