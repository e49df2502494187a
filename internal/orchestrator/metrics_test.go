package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/scheduler"
)

func timedTask(t agent.Type, status scheduler.TaskStatus, start time.Time, d time.Duration) *scheduler.Task {
	task := &scheduler.Task{AgentType: t, Status: status}
	if d > 0 {
		task.StartedAt = start
		task.FinishedAt = start.Add(d)
	}
	return task
}

func TestParallelEfficiency(t *testing.T) {
	start := time.Now()
	tests := []struct {
		name  string
		tasks []*scheduler.Task
		wall  time.Duration
		want  float64
	}{
		{
			name: "two overlapped tasks",
			tasks: []*scheduler.Task{
				timedTask(agent.CodeReview, scheduler.TaskCompleted, start, 5*time.Second),
				timedTask(agent.SecurityScan, scheduler.TaskCompleted, start, 5*time.Second),
			},
			wall: 5 * time.Second,
			want: 2.0,
		},
		{
			name: "serial tasks",
			tasks: []*scheduler.Task{
				timedTask(agent.CodeReview, scheduler.TaskCompleted, start, 2*time.Second),
				timedTask(agent.SecurityScan, scheduler.TaskFailed, start.Add(2*time.Second), 3*time.Second),
			},
			wall: 5 * time.Second,
			want: 1.0,
		},
		{
			name: "skipped tasks contribute nothing",
			tasks: []*scheduler.Task{
				timedTask(agent.CodeReview, scheduler.TaskCompleted, start, time.Second),
				timedTask(agent.Deployment, scheduler.TaskSkipped, start, 0),
			},
			wall: 2 * time.Second,
			want: 0.5,
		},
		{
			name:  "zero wall clock",
			tasks: []*scheduler.Task{timedTask(agent.CodeReview, scheduler.TaskCompleted, start, time.Second)},
			wall:  0,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParallelEfficiency(tt.tasks, tt.wall); got != tt.want {
				t.Errorf("ParallelEfficiency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_RollingAverage(t *testing.T) {
	m, err := NewMetrics(10, nil)
	if err != nil {
		t.Fatal(err)
	}

	times := []time.Duration{3 * time.Second, 4 * time.Second, 8 * time.Second}
	wantAvg := []time.Duration{3 * time.Second, 3500 * time.Millisecond, 5 * time.Second}
	for i, d := range times {
		m.Record(&WorkflowResult{
			WorkflowID:     fmt.Sprintf("wf_%d", i),
			TotalTime:      d,
			TasksCompleted: 2,
			TasksFailed:    1,
			TasksSkipped:   i,
			ParallelTasks:  2,
		})
		if got := m.Snapshot().AverageWorkflowTime; got != wantAvg[i] {
			t.Errorf("after %d runs: average %s, want %s", i+1, got, wantAvg[i])
		}
	}

	snap := m.Snapshot()
	if snap.WorkflowsProcessed != 3 || snap.TasksExecuted != 6 || snap.TasksFailed != 3 || snap.TasksSkipped != 3 {
		t.Errorf("unexpected counters %+v", snap)
	}
	if snap.ParallelTasksExecuted != 6 {
		t.Errorf("expected 6 parallel tasks, got %d", snap.ParallelTasksExecuted)
	}
	if snap.AverageWorkflowSecs != 5 {
		t.Errorf("expected 5s average, got %v", snap.AverageWorkflowSecs)
	}
}

func TestMetrics_HistoryBounded(t *testing.T) {
	m, err := NewMetrics(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		m.Record(&WorkflowResult{WorkflowID: id})
	}

	if _, ok := m.History("a"); ok {
		t.Error("oldest result should have been evicted")
	}
	if r, ok := m.History("c"); !ok || r.WorkflowID != "c" {
		t.Error("newest result missing")
	}
	recent := m.Recent()
	if len(recent) != 2 || recent[0].WorkflowID != "b" || recent[1].WorkflowID != "c" {
		t.Errorf("unexpected recent order %v", recent)
	}
	// Evicted results still count toward the aggregates
	if m.Snapshot().WorkflowsProcessed != 3 {
		t.Error("aggregates should not depend on history size")
	}
}

func TestMetrics_Collectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(10, reg)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	m.Record(&WorkflowResult{
		WorkflowID:         "pull_request_1",
		WorkflowType:       "pull_request",
		State:              StateStalledNoProgress,
		TotalTime:          2 * time.Second,
		ParallelEfficiency: 1.5,
		AgentUtilization:   map[agent.Type]float64{agent.CodeReview: 0.5},
		Tasks: []*scheduler.Task{
			timedTask(agent.CodeReview, scheduler.TaskCompleted, start, time.Second),
			timedTask(agent.CodeReview, scheduler.TaskFailed, start, time.Second),
			timedTask(agent.Deployment, scheduler.TaskSkipped, start, 0),
		},
	})

	if got := testutil.ToFloat64(m.efficiency); got != 1.5 {
		t.Errorf("efficiency gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.agentUtilization.WithLabelValues("code_review")); got != 0.5 {
		t.Errorf("utilization gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.taskOutcomes.WithLabelValues("code_review", "failed")); got != 1 {
		t.Errorf("failed counter = %v", got)
	}
	if got := testutil.ToFloat64(m.taskOutcomes.WithLabelValues("deployment", "skipped")); got != 1 {
		t.Errorf("skipped counter = %v", got)
	}

	m.TaskStarted(agent.SecurityScan)
	m.TaskStarted(agent.SecurityScan)
	m.TaskFinished(agent.SecurityScan)
	if got := testutil.ToFloat64(m.tasksInFlight.WithLabelValues("security_scan")); got != 1 {
		t.Errorf("in-flight gauge = %v", got)
	}

	expected := `
# HELP agentflow_workflow_duration_seconds Wall-clock duration of workflow runs.
# TYPE agentflow_workflow_duration_seconds histogram
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="0.1"} 0
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="0.5"} 0
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="1"} 0
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="2.5"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="5"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="10"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="30"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="60"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="120"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="300"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="600"} 1
agentflow_workflow_duration_seconds_bucket{state="stalled_no_progress",workflow="pull_request",le="+Inf"} 1
agentflow_workflow_duration_seconds_sum{state="stalled_no_progress",workflow="pull_request"} 2
agentflow_workflow_duration_seconds_count{state="stalled_no_progress",workflow="pull_request"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "agentflow_workflow_duration_seconds"); err != nil {
		t.Error(err)
	}
}

// A second aggregator on the same registerer reuses the collectors.
func TestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(10, reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewMetrics(10, reg)
	if err != nil {
		t.Fatalf("second NewMetrics: %v", err)
	}
	second.TaskStarted(agent.Deployment)
	if got := testutil.ToFloat64(first.tasksInFlight.WithLabelValues("deployment")); got != 1 {
		t.Errorf("collectors not shared, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Record(&WorkflowResult{})
	m.TaskStarted(agent.CodeReview)
	m.TaskFinished(agent.CodeReview)

	if snap := m.Snapshot(); snap.WorkflowsProcessed != 0 || snap.AgentUtilization != nil {
		t.Errorf("nil metrics snapshot = %+v", snap)
	}
	if _, ok := m.History("wf"); ok {
		t.Error("nil metrics should retain no history")
	}
	if recent := m.Recent(); len(recent) != 0 {
		t.Errorf("nil metrics recent = %v", recent)
	}
}

func TestWorkflowResult_MarshalJSON(t *testing.T) {
	r := &WorkflowResult{
		WorkflowID:         "issue_triage_1",
		WorkflowType:       "issue_triage",
		State:              StateCompleted,
		TotalTime:          2500 * time.Millisecond,
		TasksCompleted:     4,
		ParallelEfficiency: 1.25,
		AgentUtilization:   map[agent.Type]float64{agent.Classification: 0},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["state"] != "completed" || decoded["total_time_seconds"] != 2.5 {
		t.Errorf("unexpected JSON %s", data)
	}
	util, ok := decoded["agent_utilization"].(map[string]any)
	if !ok || util["classification"] != 0.0 {
		t.Errorf("utilization keys should be type names: %s", data)
	}
}
