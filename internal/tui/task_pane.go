package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/events"
)

// Task status labels shown in the list.
const (
	statusPending   = "pending"
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// TaskState is the pane's view of a single task.
type TaskState struct {
	TaskID    string
	Workflow  string
	AgentType string
	Priority  int
	Instance  string
	Status    string
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list and the selected task's log.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: vp,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.WorkflowStartedEvent:
		for _, info := range msg.Tasks {
			deps := make([]string, len(info.DependsOn))
			for i, d := range info.DependsOn {
				deps[i] = d.String()
			}
			task := m.add(info.ID, msg.Workflow, info.AgentType.String())
			task.Priority = info.Priority
			line := fmt.Sprintf("queued with priority %d", info.Priority)
			if len(deps) > 0 {
				line += ", waiting for " + strings.Join(deps, ", ")
			}
			task.Output = append(task.Output, line)
		}
		m.updateViewportContent()

	case events.TaskStartedEvent:
		task := m.add(msg.ID, msg.Workflow, msg.AgentType.String())
		task.Status = statusRunning
		task.Instance = msg.Instance
		task.StartTime = msg.Timestamp
		task.Output = append(task.Output, fmt.Sprintf("[%s] dispatched to %s", msg.Timestamp.Format(time.TimeOnly), msg.Instance))
		m.refreshIfSelected(msg.ID)

	case events.TaskCompletedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = statusCompleted
			task.Duration = msg.Duration
			task.Output = append(task.Output, resultLines(msg.Result)...)
			task.Output = append(task.Output, fmt.Sprintf("[Completed in %v]", msg.Duration.Round(time.Millisecond)))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskFailedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = statusFailed
			task.Duration = msg.Duration
			task.Output = append(task.Output, fmt.Sprintf("[Failed: %v]", msg.Err))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskSkippedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = statusSkipped
			task.Output = append(task.Output, fmt.Sprintf("[Skipped: %v]", msg.Reason))
			m.refreshIfSelected(msg.ID)
		}
	}

	return m, cmd
}

// add returns the state for id, creating a pending entry on first sight.
func (m *TaskPaneModel) add(id, workflow, agentType string) *TaskState {
	if task, exists := m.tasks[id]; exists {
		return task
	}
	task := &TaskState{
		TaskID:    id,
		Workflow:  workflow,
		AgentType: agentType,
		Status:    statusPending,
	}
	m.tasks[id] = task
	m.taskOrder = append(m.taskOrder, id)
	return task
}

func (m *TaskPaneModel) refreshIfSelected(id string) {
	if m.SelectedTaskID() == id {
		m.updateViewportContent()
	}
}

func resultLines(result map[string]any) []string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, result[k]))
	}
	return lines
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.taskOrder {
			task := m.tasks[id]
			name := task.AgentType
			if len(name) > width-4 {
				name = name[:width-7] + "..."
			}

			line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case statusRunning:
		return StyleStatusRunning.Render("●")
	case statusCompleted:
		return StyleStatusComplete.Render("✓")
	case statusFailed:
		return StyleStatusFailed.Render("✗")
	case statusSkipped:
		return StyleStatusPending.Render("-")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedTaskID returns the ID of the selected task, or "".
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Task returns the pane's state for id.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	task, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) updateViewportContent() {
	task, exists := m.tasks[m.SelectedTaskID()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s  %s  (%s)", task.TaskID, task.AgentType, task.Status)
	m.viewport.SetContent(header + "\n\n" + strings.Join(task.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	listWidth := 28
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
