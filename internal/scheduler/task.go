package scheduler

import (
	"encoding/json"
	"time"

	"github.com/aristath/agentflow/internal/agent"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending    TaskStatus = iota // Waiting for dependency types
	TaskInProgress                   // Dispatched to its capability
	TaskCompleted                    // Finished successfully
	TaskFailed                       // Capability error or timeout
	TaskSkipped                      // Never dispatched (stalled or cancelled run)
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskInProgress:
		return "in_progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	}
	return "unknown"
}

// MarshalText renders the status as its lowercase name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// canTransition enforces Pending -> InProgress -> {Completed|Failed} and
// Pending -> Skipped. Nothing ever moves backwards.
func (s TaskStatus) canTransition(to TaskStatus) bool {
	switch s {
	case TaskPending:
		return to == TaskInProgress || to == TaskSkipped
	case TaskInProgress:
		return to == TaskCompleted || to == TaskFailed
	}
	return false
}

// Task represents a unit of work in a workflow instance.
type Task struct {
	ID            string        // <workflowID>_task_<index>
	Index         int           // position in the template
	AgentType     agent.Type    // capability that performs the task
	Priority      int           // higher runs first under contention
	Payload       agent.Payload // data handed to the capability
	DependsOn     []agent.Type  // types that need one Completed task first
	Resources     []string      // resources written by the task (exclusive)
	Status        TaskStatus
	AssignedAgent string // registry instance that served the task
	StartedAt     time.Time
	FinishedAt    time.Time
	Result        agent.Payload // success payload
	Err           error         // *ExecutionError, *TimeoutError or skip reason
}

// Duration returns FinishedAt-StartedAt, or 0 if the task never ran to a
// terminal state.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

type taskJSON struct {
	ID            string        `json:"id"`
	AgentType     agent.Type    `json:"agent_type"`
	Priority      int           `json:"priority"`
	DependsOn     []agent.Type  `json:"depends_on,omitempty"`
	Status        TaskStatus    `json:"status"`
	AssignedAgent string        `json:"assigned_agent,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	DurationSecs  float64       `json:"duration_seconds,omitempty"`
	Result        agent.Payload `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// MarshalJSON renders the task with its error as a string.
func (t *Task) MarshalJSON() ([]byte, error) {
	out := taskJSON{
		ID:            t.ID,
		AgentType:     t.AgentType,
		Priority:      t.Priority,
		DependsOn:     t.DependsOn,
		Status:        t.Status,
		AssignedAgent: t.AssignedAgent,
		DurationSecs:  t.Duration().Seconds(),
		Result:        t.Result,
	}
	if !t.StartedAt.IsZero() {
		out.StartedAt = &t.StartedAt
	}
	if !t.FinishedAt.IsZero() {
		out.FinishedAt = &t.FinishedAt
	}
	if t.Err != nil {
		out.Error = t.Err.Error()
	}
	return json.Marshal(out)
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	cp.Payload = task.Payload.Clone()
	cp.Result = task.Result.Clone()
	if task.DependsOn != nil {
		cp.DependsOn = append([]agent.Type(nil), task.DependsOn...)
	}
	if task.Resources != nil {
		cp.Resources = append([]string(nil), task.Resources...)
	}
	return &cp
}
