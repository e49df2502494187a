package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/orchestrator"
	"github.com/aristath/agentflow/internal/scheduler"
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func statusText(s scheduler.TaskStatus) string {
	switch s {
	case scheduler.TaskCompleted:
		return styleOK.Render("✓ " + s.String())
	case scheduler.TaskFailed:
		return styleFailed.Render("✗ " + s.String())
	default:
		return styleMuted.Render("- " + s.String())
	}
}

func stateText(s orchestrator.RunState) string {
	if s == orchestrator.StateCompleted {
		return styleOK.Render(s.String())
	}
	return styleFailed.Render(s.String())
}

func printResult(w io.Writer, r *orchestrator.WorkflowResult) {
	fmt.Fprintln(w, styleHeader.Render("Workflow "+r.WorkflowID))
	fmt.Fprintf(w, "  state:      %s\n", stateText(r.State))
	fmt.Fprintf(w, "  total time: %s\n", r.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(w, "  tasks:      %d completed, %d failed, %d skipped\n", r.TasksCompleted, r.TasksFailed, r.TasksSkipped)
	fmt.Fprintf(w, "  wavefronts: %d (%d tasks ran in parallel)\n", r.Wavefronts, r.ParallelTasks)
	fmt.Fprintf(w, "  efficiency: %.2fx speedup\n", r.ParallelEfficiency)

	for _, task := range r.Tasks {
		line := fmt.Sprintf("    %-22s %s", task.AgentType, statusText(task.Status))
		if d := task.Duration(); d > 0 {
			line += styleMuted.Render(fmt.Sprintf("  %s", d.Round(time.Millisecond)))
		}
		if task.AssignedAgent != "" {
			line += styleMuted.Render("  on " + task.AssignedAgent)
		}
		if task.Err != nil {
			line += "  " + task.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func printMetrics(w io.Writer, m orchestrator.MetricsSnapshot) {
	fmt.Fprintln(w, styleHeader.Render("Orchestrator Metrics"))
	fmt.Fprintf(w, "  workflows processed:   %d\n", m.WorkflowsProcessed)
	fmt.Fprintf(w, "  tasks executed:        %d\n", m.TasksExecuted)
	fmt.Fprintf(w, "  parallel tasks:        %d\n", m.ParallelTasksExecuted)
	fmt.Fprintf(w, "  tasks failed/skipped:  %d/%d\n", m.TasksFailed, m.TasksSkipped)
	fmt.Fprintf(w, "  average workflow time: %s\n", m.AverageWorkflowTime.Round(time.Millisecond))

	if len(m.AgentUtilization) == 0 {
		return
	}
	names := make([]string, 0, len(m.AgentUtilization))
	byName := make(map[string]float64, len(m.AgentUtilization))
	for t, u := range m.AgentUtilization {
		names = append(names, t.String())
		byName[t.String()] = u
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.0f%%", name, byName[name]*100)
	}
	fmt.Fprintf(w, "  agent utilization:     %s\n", strings.Join(parts, " "))
}

type jsonReport struct {
	Results []*orchestrator.WorkflowResult `json:"results"`
	Metrics orchestrator.MetricsSnapshot   `json:"metrics"`
}

func writeJSON(w io.Writer, results []*orchestrator.WorkflowResult, m orchestrator.MetricsSnapshot) error {
	if results == nil {
		results = []*orchestrator.WorkflowResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Results: results, Metrics: m})
}
