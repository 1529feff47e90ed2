package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#888888"))

	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))

	gatePassStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32")).Bold(true)
	gateBlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#AA0000")).
			Bold(true).
			Padding(0, 1)

	eventStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)
)

// statusStyle picks the rendering style for a package status cell.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running", "claimed":
		return runningStyle
	case "completed":
		return completedStyle
	case "failed":
		return failedStyle
	case "cancelled":
		return cancelledStyle
	default:
		return pendingStyle
	}
}
