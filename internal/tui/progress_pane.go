package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/events"
)

// ProgressPaneModel shows counts for the current workflow, the last
// finished run and agent health.
type ProgressPaneModel struct {
	workflow   string
	wavefront  int
	total      int
	completed  int
	running    int
	failed     int
	skipped    int
	pending    int
	lastState  string
	efficiency float64
	finished   int
	unhealthy  map[agent.Type]bool
	width      int
	height     int
	focused    bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{unhealthy: make(map[agent.Type]bool)}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.WorkflowStartedEvent:
		m.workflow = msg.Workflow
		m.wavefront = 0
		m.total = len(msg.Tasks)
		m.pending = m.total
		m.completed, m.running, m.failed, m.skipped = 0, 0, 0, 0

	case events.WavefrontStartedEvent:
		if msg.Workflow == m.workflow {
			m.wavefront = msg.Wavefront
			m.running = len(msg.TaskIDs)
			m.pending -= len(msg.TaskIDs)
		}

	case events.WorkflowProgressEvent:
		if msg.Workflow == m.workflow {
			m.total = msg.Total
			m.completed = msg.Completed
			m.running = msg.InProgress
			m.failed = msg.Failed
			m.skipped = msg.Skipped
			m.pending = msg.Pending
		}

	case events.WorkflowFinishedEvent:
		m.finished++
		m.lastState = msg.State
		m.efficiency = msg.ParallelEfficiency
		if msg.Workflow == m.workflow {
			m.running = 0
			m.completed = msg.Completed
			m.failed = msg.Failed
			m.skipped = msg.Skipped
			m.pending = 0
		}

	case events.AgentHealthEvent:
		if msg.Healthy {
			delete(m.unhealthy, msg.AgentType)
		} else {
			m.unhealthy[msg.AgentType] = true
		}
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Workflow Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.workflow == "" {
		b.WriteString(StyleStatusPending.Render("No workflow started"))
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Workflow:  %s\n", m.workflow)
		fmt.Fprintf(&b, "Wavefront: %d\n\n", m.wavefront)
	}

	fmt.Fprintf(&b, "Total:     %d\n", m.total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(m.running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed)))
	fmt.Fprintf(&b, "Skipped:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.skipped)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.pending)))
	b.WriteString("\n")

	if m.total > 0 {
		b.WriteString(m.renderBar())
		b.WriteString("\n")
	}

	if m.finished > 0 {
		fmt.Fprintf(&b, "\nRuns finished: %d (last: %s, %.2fx speedup)\n", m.finished, m.lastState, m.efficiency)
	}

	if len(m.unhealthy) > 0 {
		types := make([]string, 0, len(m.unhealthy))
		for t := range m.unhealthy {
			types = append(types, t.String())
		}
		sort.Strings(types)
		b.WriteString("\n")
		b.WriteString(StyleStatusFailed.Render("Unhealthy: " + strings.Join(types, ", ")))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) renderBar() string {
	barWidth := min(m.width-4, 40)
	completedWidth := (m.completed * barWidth) / m.total
	failedWidth := (m.failed * barWidth) / m.total
	skippedWidth := (m.skipped * barWidth) / m.total
	runningWidth := (m.running * barWidth) / m.total
	pendingWidth := barWidth - completedWidth - failedWidth - skippedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusPending.Render(strings.Repeat("x", max(0, skippedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s]  %d/%d", bar, m.completed+m.failed+m.skipped, m.total)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
