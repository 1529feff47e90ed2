// Package util holds small string helpers shared by the monitor and CLI.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateString shortens s to at most maxLen runes, appending "..."
// when anything is cut. It counts runes, not display columns, so it is
// unsuitable for styled terminal output; use TruncateANSI there.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// TruncateANSI shortens s to at most maxWidth display columns,
// appending "..." when anything is cut. Escape sequences and wide
// runes are measured by their rendered width.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate counts the tail against maxWidth.
	return ansi.Truncate(s, maxWidth, "...")
}
