// Package logging provides structured logging for feature runs.
// It wraps Go's log/slog package to produce JSON-formatted logs with
// persistent run context (feature, package, stage) for post-hoc analysis
// of coordination decisions.
package logging
