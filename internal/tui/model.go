package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/packflow/packflow/internal/event"
	"github.com/packflow/packflow/internal/integration"
	"github.com/packflow/packflow/internal/orchestrator"
	"github.com/packflow/packflow/internal/util"
)

// eventBuffer caps how many bus events the model retains between draws.
const eventBuffer = 256

type tickMsg time.Time

// busMsg wraps an event received from the run's event bus.
type busMsg struct{ event event.Event }

// Model is the bubbletea model for the run monitor.
type Model struct {
	runtime *orchestrator.Runtime
	events  chan event.Event

	refresh   time.Duration
	maxEvents int

	spin   spinner.Model
	recent []string
	width  int
	done   bool
}

// NewModel builds a monitor for the runtime, subscribed to the bus.
// The subscription stays live for the lifetime of the program.
func NewModel(rt *orchestrator.Runtime, bus *event.Bus, refresh time.Duration, maxEvents int) Model {
	events := make(chan event.Event, eventBuffer)
	bus.SubscribeAll(func(e event.Event) {
		select {
		case events <- e:
		default:
			// A full buffer drops the event; the status table is
			// rebuilt from the runtime on every tick regardless.
		}
	})

	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	if maxEvents <= 0 {
		maxEvents = 12
	}

	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))

	return Model{
		runtime:   rt,
		events:    events,
		refresh:   refresh,
		maxEvents: maxEvents,
		spin:      sp,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent blocks on the bus channel and resurfaces the next event
// as a message.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return busMsg{event: <-m.events}
	}
}

// Init starts the redraw ticker, the spinner, and the bus pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitForEvent(), m.spin.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case busMsg:
		m.recent = append(m.recent, formatEvent(msg.event))
		if len(m.recent) > m.maxEvents {
			m.recent = m.recent[len(m.recent)-m.maxEvents:]
		}
		return m, m.waitForEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		if m.runtime.Queue().IsComplete() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

// View renders the status table, gate line, and recent events.
func (m Model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	summary := m.runtime.Summary()

	b.WriteString(titleStyle.Render(fmt.Sprintf("packflow run · %s", summary.FeatureID)))
	b.WriteString("\n")

	if m.runtime.Paused() {
		b.WriteString(pausedStyle.Render("PAUSED"))
		b.WriteString("\n\n")
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-16s %-10s %-9s %s", "PACKAGE", "STATUS", "ATTEMPTS", "WORKER")))
	b.WriteString("\n")
	for _, pkg := range m.runtime.Queue().Snapshot() {
		status := string(pkg.Status)
		attempts := m.runtime.Breaker().AttemptCount(pkg.ID) + 1
		marker := " "
		if pkg.Status == orchestrator.StatusRunning {
			marker = m.spin.View()
		}
		line := fmt.Sprintf("%-16s %-10s %-9d %s", pkg.ID, status, attempts, pkg.ClaimedBy)
		b.WriteString(marker)
		b.WriteString(" ")
		b.WriteString(statusStyle(status).Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderGate(m.runtime.Gate()))
	b.WriteString("\n")

	if len(m.recent) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("RECENT EVENTS"))
		b.WriteString("\n")
		maxWidth := m.width
		if maxWidth <= 0 {
			maxWidth = 80
		}
		for _, line := range m.recent {
			b.WriteString(eventStyle.Render(util.TruncateANSI(line, maxWidth)))
			b.WriteString("\n")
		}
	}

	b.WriteString(footerStyle.Render("q: quit"))
	return b.String()
}

// renderGate formats the integration gate status line.
func renderGate(gate integration.GateResult) string {
	label := fmt.Sprintf("gate: %s", gate.Status)
	if gate.Status == integration.GatePass {
		return gatePassStyle.Render(label)
	}
	var detail string
	switch {
	case len(gate.BlockingFinding) > 0:
		f := gate.BlockingFinding[0]
		detail = fmt.Sprintf(" (%s: %s)", f.PackageID, f.Disposition)
	case len(gate.MissingResults) > 0:
		detail = fmt.Sprintf(" (missing results: %s)", util.TruncateString(strings.Join(gate.MissingResults, ", "), 60))
	case len(gate.MissingReviews) > 0:
		detail = fmt.Sprintf(" (missing reviews: %s)", util.TruncateString(strings.Join(gate.MissingReviews, ", "), 60))
	}
	return gateBlockedStyle.Render(label + detail)
}

// formatEvent renders one bus event as a single monitor line.
func formatEvent(e event.Event) string {
	ts := e.Timestamp().Format("15:04:05")
	switch ev := e.(type) {
	case event.PackageDispatchedEvent:
		return fmt.Sprintf("%s  %s dispatched (attempt %d)", ts, ev.PackageID, ev.Attempt)
	case event.PackageCompletedEvent:
		return fmt.Sprintf("%s  %s completed", ts, ev.PackageID)
	case event.PackageFailedEvent:
		if ev.WillRetry {
			return fmt.Sprintf("%s  %s failed (%s), retrying", ts, ev.PackageID, ev.ErrorCode)
		}
		return fmt.Sprintf("%s  %s failed (%s)", ts, ev.PackageID, ev.ErrorCode)
	case event.PackageTrippedEvent:
		return fmt.Sprintf("%s  %s tripped, cancelled: %s", ts, ev.PackageID, strings.Join(ev.Cancelled, ", "))
	case event.PackageStuckEvent:
		return fmt.Sprintf("%s  %s stuck, last heartbeat %s", ts, ev.PackageID, ev.LastSeen.Format("15:04:05"))
	case event.EscalationRaisedEvent:
		return fmt.Sprintf("%s  escalation %s on %s → %s", ts, ev.Kind, ev.PackageID, ev.Action)
	case event.FeaturePausedEvent:
		return fmt.Sprintf("%s  feature paused: %s", ts, ev.Reason)
	case event.FeatureResumedEvent:
		return fmt.Sprintf("%s  feature resumed", ts)
	case event.GateEvaluatedEvent:
		return fmt.Sprintf("%s  gate evaluated: %s", ts, ev.Status)
	case event.LockAcquiredEvent:
		return fmt.Sprintf("%s  lock %s acquired by %s", ts, ev.Key, ev.Owner)
	case event.LockReleasedEvent:
		return fmt.Sprintf("%s  lock %s released by %s", ts, ev.Key, ev.Owner)
	default:
		return fmt.Sprintf("%s  %s", ts, e.EventType())
	}
}
