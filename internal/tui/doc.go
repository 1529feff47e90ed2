// Package tui renders a live terminal monitor for a feature run. The
// model subscribes to the run's event bus and shows per-package status,
// the integration gate, and a scrolling tail of recent events.
package tui
