// Package orchestrator drives a feature run end to end. It owns the
// dependency-aware package queue, routes heartbeats into the circuit
// breaker, applies escalation decisions, validates submitted results,
// and holds the integration package until the gate passes.
//
// The Runtime is the single mutable context for a run. Nothing in this
// package uses global state; tests construct a fresh Runtime per case.
package orchestrator
