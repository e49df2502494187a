package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/scheduler"
)

// RunState is the state of the wavefront loop.
type RunState int

const (
	StateRunning           RunState = iota // dispatching wavefronts
	StateStalledNoProgress                 // pending tasks remain but none can become ready
	StateCompleted                         // no pending tasks remain
	StateCanceled                          // caller canceled the run
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStalledNoProgress:
		return "stalled_no_progress"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	}
	return "unknown"
}

// MarshalText renders the state as its lowercase name.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// WorkflowResult summarizes one workflow run. It is returned for every run
// that passes build-time validation, including stalled and canceled runs.
type WorkflowResult struct {
	WorkflowID         string
	WorkflowType       string
	State              RunState
	StartedAt          time.Time
	TotalTime          time.Duration
	TasksCompleted     int
	TasksFailed        int
	TasksSkipped       int
	ParallelEfficiency float64
	AgentUtilization   map[agent.Type]float64
	Wavefronts         int
	ParallelTasks      int // tasks dispatched in a wavefront shared with another task
	Tasks              []*scheduler.Task
}

// Degraded reports whether any task failed or was skipped.
func (r *WorkflowResult) Degraded() bool {
	return r.TasksFailed > 0 || r.TasksSkipped > 0
}

type resultJSON struct {
	WorkflowID         string                 `json:"workflow_id"`
	WorkflowType       string                 `json:"workflow_type"`
	State              RunState               `json:"state"`
	StartedAt          time.Time              `json:"started_at"`
	TotalTimeSecs      float64                `json:"total_time_seconds"`
	TasksCompleted     int                    `json:"tasks_completed"`
	TasksFailed        int                    `json:"tasks_failed"`
	TasksSkipped       int                    `json:"tasks_skipped"`
	ParallelEfficiency float64                `json:"parallel_efficiency"`
	AgentUtilization   map[agent.Type]float64 `json:"agent_utilization"`
	Wavefronts         int                    `json:"wavefronts"`
	ParallelTasks      int                    `json:"parallel_tasks"`
	Tasks              []*scheduler.Task      `json:"tasks"`
}

// MarshalJSON renders durations in seconds.
func (r *WorkflowResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		WorkflowID:         r.WorkflowID,
		WorkflowType:       r.WorkflowType,
		State:              r.State,
		StartedAt:          r.StartedAt,
		TotalTimeSecs:      r.TotalTime.Seconds(),
		TasksCompleted:     r.TasksCompleted,
		TasksFailed:        r.TasksFailed,
		TasksSkipped:       r.TasksSkipped,
		ParallelEfficiency: r.ParallelEfficiency,
		AgentUtilization:   r.AgentUtilization,
		Wavefronts:         r.Wavefronts,
		ParallelTasks:      r.ParallelTasks,
		Tasks:              r.Tasks,
	})
}

// ParallelEfficiency returns the summed task durations divided by wall.
// Values above 1 indicate overlapped execution. Returns 0 when wall is 0.
func ParallelEfficiency(tasks []*scheduler.Task, wall time.Duration) float64 {
	if wall <= 0 {
		return 0
	}
	var busy time.Duration
	for _, task := range tasks {
		busy += task.Duration()
	}
	return float64(busy) / float64(wall)
}
