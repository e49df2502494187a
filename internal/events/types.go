package events

import (
	"time"

	"github.com/aristath/agentflow/internal/agent"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	WorkflowID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicWorkflow = "workflow"
	TopicAgent    = "agent"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskSkipped      = "task.skipped"
	EventTypeWorkflowStarted  = "workflow.started"
	EventTypeWavefrontStarted = "workflow.wavefront"
	EventTypeWorkflowProgress = "workflow.progress"
	EventTypeWorkflowFinished = "workflow.finished"
	EventTypeAgentHealth      = "agent.health"
)

// TaskInfo describes a task when a workflow starts.
type TaskInfo struct {
	ID        string
	AgentType agent.Type
	Priority  int
	DependsOn []agent.Type
}

// WorkflowStartedEvent is published once the graph is built and before the
// first wavefront.
type WorkflowStartedEvent struct {
	Workflow  string
	Name      string
	Tasks     []TaskInfo
	Timestamp time.Time
}

func (e WorkflowStartedEvent) EventType() string  { return EventTypeWorkflowStarted }
func (e WorkflowStartedEvent) Topic() string      { return TopicWorkflow }
func (e WorkflowStartedEvent) WorkflowID() string { return e.Workflow }

// TaskStartedEvent is published when a task is dispatched.
type TaskStartedEvent struct {
	Workflow  string
	ID        string
	AgentType agent.Type
	Instance  string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string  { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string      { return TopicTask }
func (e TaskStartedEvent) WorkflowID() string { return e.Workflow }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	Workflow  string
	ID        string
	AgentType agent.Type
	Result    agent.Payload
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string  { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string      { return TopicTask }
func (e TaskCompletedEvent) WorkflowID() string { return e.Workflow }

// TaskFailedEvent is published when a task fails or times out.
type TaskFailedEvent struct {
	Workflow  string
	ID        string
	AgentType agent.Type
	Err       error
	Timeout   bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string  { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string      { return TopicTask }
func (e TaskFailedEvent) WorkflowID() string { return e.Workflow }

// TaskSkippedEvent is published for each task skipped by a stalled or
// cancelled run.
type TaskSkippedEvent struct {
	Workflow  string
	ID        string
	AgentType agent.Type
	Reason    error
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string  { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Topic() string      { return TopicTask }
func (e TaskSkippedEvent) WorkflowID() string { return e.Workflow }

// WavefrontStartedEvent is published before a group of tasks is dispatched.
type WavefrontStartedEvent struct {
	Workflow  string
	Wavefront int // 1-based, counted across the whole run
	TaskIDs   []string
	Timestamp time.Time
}

func (e WavefrontStartedEvent) EventType() string  { return EventTypeWavefrontStarted }
func (e WavefrontStartedEvent) Topic() string      { return TopicWorkflow }
func (e WavefrontStartedEvent) WorkflowID() string { return e.Workflow }

// WorkflowProgressEvent is published after each wavefront barrier.
type WorkflowProgressEvent struct {
	Workflow   string
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
	Timestamp  time.Time
}

func (e WorkflowProgressEvent) EventType() string  { return EventTypeWorkflowProgress }
func (e WorkflowProgressEvent) Topic() string      { return TopicWorkflow }
func (e WorkflowProgressEvent) WorkflowID() string { return e.Workflow }

// WorkflowFinishedEvent is published when a run reaches a terminal state.
type WorkflowFinishedEvent struct {
	Workflow           string
	State              string
	TotalTime          time.Duration
	Completed          int
	Failed             int
	Skipped            int
	ParallelEfficiency float64
	Timestamp          time.Time
}

func (e WorkflowFinishedEvent) EventType() string  { return EventTypeWorkflowFinished }
func (e WorkflowFinishedEvent) Topic() string      { return TopicWorkflow }
func (e WorkflowFinishedEvent) WorkflowID() string { return e.Workflow }

// AgentHealthEvent is published when an agent type's health flips.
type AgentHealthEvent struct {
	AgentType agent.Type
	Healthy   bool
	Timestamp time.Time
}

func (e AgentHealthEvent) EventType() string  { return EventTypeAgentHealth }
func (e AgentHealthEvent) Topic() string      { return TopicAgent }
func (e AgentHealthEvent) WorkflowID() string { return "" }
