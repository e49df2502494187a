package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// testConfig keeps runs fast: no health monitor and a single attempt per task.
const testConfig = `
health_interval: 0s
retry:
  attempts: 1
`

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig+extra), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTemplatesCmd(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "templates", "--config", cfg)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	for _, want := range []string{"pull_request", "issue_triage", "after security_scan, test_generation"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "templates", "--config", cfg, "--agent", "deployment")
	if err != nil {
		t.Fatalf("templates --agent: %v", err)
	}
	if !strings.Contains(out, "pull_request") || strings.Contains(out, "issue_triage") {
		t.Errorf("filter by agent type failed:\n%s", out)
	}

	if _, err := execute(t, "templates", "--config", cfg, "--agent", "linting"); err == nil {
		t.Error("expected error for unknown agent type")
	}
}

const cyclicWorkflow = `
workflows:
  loop:
    tasks:
      - type: code_review
        depends_on: [security_scan]
      - type: security_scan
        depends_on: [code_review]
`

const orphanWorkflow = `
workflows:
  orphan:
    tasks:
      - type: deployment
        depends_on: [security_scan]
`

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		args    []string
		wantErr bool
		wantOut string
	}{
		{name: "defaults are valid", wantOut: "✓ pull_request (5 tasks)"},
		{name: "cycle is reported", extra: cyclicWorkflow, args: []string{"loop"}, wantErr: true, wantOut: "cyclic"},
		{name: "unsatisfiable dependency is reported", extra: orphanWorkflow, args: []string{"orphan"}, wantErr: true, wantOut: "✗ orphan"},
		{name: "unknown workflow", args: []string{"missing"}, wantErr: true, wantOut: "unknown workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeConfig(t, tt.extra)
			out, err := execute(t, append([]string{"validate", "--config", cfg}, tt.args...)...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out)
			}
		})
	}
}

func TestValidateCmd_PrintsDependencyOrder(t *testing.T) {
	out, err := execute(t, "validate", "--config", writeConfig(t, ""), "pull_request")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var order string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "order: ") {
			order = line
		}
	}
	if order == "" {
		t.Fatalf("no dependency order printed:\n%s", out)
	}
	before := func(a, b string) bool {
		return strings.Index(order, a) < strings.Index(order, b)
	}
	for _, pair := range [][2]string{
		{"code_review", "test_generation"},
		{"code_review", "documentation"},
		{"security_scan", "deployment"},
		{"test_generation", "deployment"},
	} {
		if !before(pair[0], pair[1]) {
			t.Errorf("%s should precede %s in %q", pair[0], pair[1], order)
		}
	}
}

type report struct {
	Results []struct {
		WorkflowID     string  `json:"workflow_id"`
		State          string  `json:"state"`
		TasksCompleted int     `json:"tasks_completed"`
		TasksSkipped   int     `json:"tasks_skipped"`
		Efficiency     float64 `json:"parallel_efficiency"`
	} `json:"results"`
	Metrics struct {
		WorkflowsProcessed int `json:"workflows_processed"`
		TasksExecuted      int `json:"total_tasks_executed"`
	} `json:"metrics"`
}

func TestRunCmd_JSON(t *testing.T) {
	cfg := writeConfig(t, "")
	ctxFile := filepath.Join(t.TempDir(), "pr.json")
	if err := os.WriteFile(ctxFile, []byte(`{"pr_number": 123, "repository": "org/repo"}`), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "run", "pull_request", "--config", cfg, "--json",
		"--time-scale", "0.001", "--repeat", "2", "--context", ctxFile)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	var r report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(r.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(r.Results))
	}
	for _, res := range r.Results {
		if res.State != "completed" || res.TasksCompleted != 5 || res.Efficiency <= 0 {
			t.Errorf("unexpected result %+v", res)
		}
		if !strings.HasPrefix(res.WorkflowID, "pull_request_") {
			t.Errorf("workflow ID %q lacks the template prefix", res.WorkflowID)
		}
	}
	if r.Results[0].WorkflowID == r.Results[1].WorkflowID {
		t.Error("workflow IDs must be unique per run")
	}
	if r.Metrics.WorkflowsProcessed != 2 || r.Metrics.TasksExecuted != 10 {
		t.Errorf("unexpected metrics %+v", r.Metrics)
	}
}

func TestRunCmd_Text(t *testing.T) {
	cfg := writeConfig(t, "")
	out, err := execute(t, "run", "issue_triage", "--config", cfg, "--time-scale", "0.001")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"Workflow issue_triage_", "state:      completed", "Orchestrator Metrics", "workflows processed:   1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// A failing agent stalls its dependents and the command reports it.
func TestRunCmd_FailingAgent(t *testing.T) {
	cfg := writeConfig(t, `
agents:
  security_scan:
    capacity: 2
    command: "false"
`)
	out, err := execute(t, "run", "pull_request", "--config", cfg, "--json", "--time-scale", "0.001")
	if err == nil || !strings.Contains(err.Error(), "did not complete") {
		t.Fatalf("expected incomplete run error, got %v", err)
	}

	var r report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	res := r.Results[0]
	if res.State != "stalled_no_progress" {
		t.Errorf("state = %q", res.State)
	}
	// code_review, test_generation and documentation complete; deployment is skipped
	if res.TasksCompleted != 3 || res.TasksSkipped != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
}

func TestRunCmd_Errors(t *testing.T) {
	cfg := writeConfig(t, "")
	tests := []struct {
		name string
		args []string
	}{
		{"unknown workflow", []string{"run", "nope", "--config", cfg}},
		{"bad repeat", []string{"run", "pull_request", "--config", cfg, "--repeat", "0"}},
		{"zero time scale", []string{"run", "pull_request", "--config", cfg, "--time-scale", "0"}},
		{"negative time scale", []string{"run", "pull_request", "--config", cfg, "--time-scale", "-1"}},
		{"missing context", []string{"run", "pull_request", "--config", cfg, "--context", "/nonexistent.json"}},
		{"missing config", []string{"run", "pull_request", "--config", "/nonexistent.yaml"}},
		{"bad log level", []string{"run", "pull_request", "--config", cfg, "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := parseLevel(s); err != nil {
			t.Errorf("parseLevel(%q): %v", s, err)
		}
	}
	if _, err := parseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}
	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
