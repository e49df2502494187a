package tui

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/config"
)

// settingsAgents are the pools whose capacity is editable from the form.
var settingsAgents = []string{"code_review", "security_scan", "test_generation", "documentation", "deployment"}

// SettingsPaneModel manages the settings form overlay. Saved values take
// effect on the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
	fields      *settingsFields // shared across model copies; the form binds into it
}

// settingsFields are the form bindings (strings for Huh).
type settingsFields struct {
	saveTarget     string
	maxParallel    string
	taskTimeout    string
	healthInterval string
	capacities     map[string]*string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

// loadFields copies the config into the form bindings.
func (m *SettingsPaneModel) loadFields() {
	f := &settingsFields{
		saveTarget:     "global",
		maxParallel:    strconv.Itoa(m.config.MaxParallelTasks),
		taskTimeout:    m.config.TaskTimeout.String(),
		healthInterval: m.config.HealthInterval.String(),
		capacities:     make(map[string]*string, len(settingsAgents)),
	}
	for _, name := range settingsAgents {
		v := strconv.Itoa(m.config.Agents[name].Capacity)
		f.capacities[name] = &v
	}
	m.fields = f
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be a whole number")
	}
	if n < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 5m or 30s")
	}
	if d < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	capacityFields := make([]huh.Field, 0, len(settingsAgents))
	for _, name := range settingsAgents {
		capacityFields = append(capacityFields, huh.NewInput().
			Key("capacity."+name).
			Title(name+" capacity").
			Value(m.fields.capacities[name]).
			Validate(validateCount))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", "global"),
					huh.NewOption("Project ("+m.projectPath+")", "project"),
				).
				Value(&m.fields.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxParallel").
				Title("Max Parallel Tasks (0 = wavefront size)").
				Value(&m.fields.maxParallel).
				Validate(validateCount),

			huh.NewInput().
				Key("taskTimeout").
				Title("Task Timeout").
				Value(&m.fields.taskTimeout).
				Placeholder("5m").
				Validate(validateDuration),

			huh.NewInput().
				Key("healthInterval").
				Title("Health Check Interval").
				Value(&m.fields.healthInterval).
				Placeholder("30s").
				Validate(validateDuration),
		).Title("Scheduling"),

		huh.NewGroup(capacityFields...).Title("Agent Capacity"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.applyFormToConfig()
		if m.err == nil {
			targetPath := m.globalPath
			if m.fields.saveTarget == "project" {
				targetPath = m.projectPath
			}
			m.err = config.Save(m.config, targetPath)
		}
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// Inputs are validated by the form, so parse errors only surface if a
// field was bypassed.
func (m *SettingsPaneModel) applyFormToConfig() error {
	maxParallel, err := strconv.Atoi(m.fields.maxParallel)
	if err != nil {
		return fmt.Errorf("max parallel tasks: %w", err)
	}
	timeout, err := time.ParseDuration(m.fields.taskTimeout)
	if err != nil {
		return fmt.Errorf("task timeout: %w", err)
	}
	interval, err := time.ParseDuration(m.fields.healthInterval)
	if err != nil {
		return fmt.Errorf("health interval: %w", err)
	}

	m.config.MaxParallelTasks = maxParallel
	m.config.TaskTimeout = config.Duration(timeout)
	m.config.HealthInterval = config.Duration(interval)
	for name, v := range m.fields.capacities {
		capacity, err := strconv.Atoi(*v)
		if err != nil {
			return fmt.Errorf("%s capacity: %w", name, err)
		}
		a := m.config.Agents[name]
		a.Capacity = capacity
		m.config.Agents[name] = a
	}
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it reloads the
// fields from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
