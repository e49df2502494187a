package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/registry"
)

// ExecutorConfig holds optional executor settings.
type ExecutorConfig struct {
	Timeout  time.Duration                // default per-task deadline; <= 0 disables it
	Timeouts map[agent.Type]time.Duration // per-type overrides of Timeout
	Logger   *slog.Logger
	Bus      *events.EventBus
	Locks    *ResourceLockManager
	Now      func() time.Time
}

// Executor runs single tasks of a graph against their capabilities,
// accounting for load in the registry.
type Executor struct {
	graph *Graph
	reg   *registry.Registry
	caps  agent.Capabilities

	timeout  time.Duration
	timeouts map[agent.Type]time.Duration
	logger   *slog.Logger
	bus      *events.EventBus
	locks    *ResourceLockManager
	now      func() time.Time
}

// NewExecutor creates an Executor for graph.
func NewExecutor(graph *Graph, reg *registry.Registry, caps agent.Capabilities, cfg ExecutorConfig) *Executor {
	e := &Executor{
		graph:    graph,
		reg:      reg,
		caps:     caps,
		timeout:  cfg.Timeout,
		timeouts: cfg.Timeouts,
		logger:   cfg.Logger,
		bus:      cfg.Bus,
		locks:    cfg.Locks,
		now:      cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.locks == nil {
		e.locks = NewResourceLockManager()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// TimeoutFor returns the deadline applied to tasks of type t.
func (e *Executor) TimeoutFor(t agent.Type) time.Duration {
	if d, ok := e.timeouts[t]; ok && d > 0 {
		return d
	}
	return e.timeout
}

type invokeResult struct {
	payload agent.Payload
	err     error
}

// Execute dispatches one Pending task and blocks until it reaches a
// terminal state. The outcome is recorded on the task and returned as a
// snapshot; the error is non-nil only when the task cannot be dispatched
// at all (unknown ID, not Pending, dependencies unmet, no capability).
// Registry capacity acquired for the task is released exactly once on
// every path.
func (e *Executor) Execute(ctx context.Context, taskID string) (*Task, error) {
	task, ok := e.graph.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, taskID, task.Status)
	}

	capability, err := e.caps.Lookup(task.AgentType)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}

	if err := ctx.Err(); err != nil {
		return e.skip(task, err)
	}
	if err := e.locks.LockAll(ctx, task.Resources); err != nil {
		return e.skip(task, fmt.Errorf("waiting for resources %v: %w", task.Resources, err))
	}
	defer e.locks.UnlockAll(task.Resources)

	instance, err := e.reg.Reserve(ctx, task.AgentType)
	if err != nil {
		return e.skip(task, fmt.Errorf("waiting for %s capacity: %w", task.AgentType, err))
	}
	defer e.reg.Release(task.AgentType)

	startedAt := e.now()
	if err := e.graph.Claim(taskID, instance, startedAt); err != nil {
		return nil, err
	}

	log := e.logger.With("workflow", e.graph.WorkflowID(), "task", taskID, "agent_type", task.AgentType.String())
	log.Debug("task dispatched", "instance", instance)
	e.bus.Publish(events.TaskStartedEvent{
		Workflow:  e.graph.WorkflowID(),
		ID:        taskID,
		AgentType: task.AgentType,
		Instance:  instance,
		Timestamp: startedAt,
	})

	timeout := e.TimeoutFor(task.AgentType)
	var tctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		tctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	payload, invokeErr := e.invoke(tctx, capability, task.Payload)
	finishedAt := e.now()
	duration := finishedAt.Sub(startedAt)

	if invokeErr == nil {
		if err := e.graph.Complete(taskID, payload, finishedAt); err != nil {
			return nil, err
		}
		log.Debug("task completed", "duration", duration)
		e.bus.Publish(events.TaskCompletedEvent{
			Workflow:  e.graph.WorkflowID(),
			ID:        taskID,
			AgentType: task.AgentType,
			Result:    payload.Clone(),
			Duration:  duration,
			Timestamp: finishedAt,
		})
	} else {
		var taskErr error
		timedOut := ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded)
		if timedOut {
			taskErr = &TimeoutError{TaskID: taskID, AgentType: task.AgentType, Timeout: timeout}
			log.Warn("task timed out", "timeout", timeout)
		} else {
			if ctx.Err() != nil && !errors.Is(invokeErr, ctx.Err()) {
				invokeErr = fmt.Errorf("%w: %v", ctx.Err(), invokeErr)
			}
			taskErr = &ExecutionError{TaskID: taskID, AgentType: task.AgentType, Err: invokeErr}
			log.Warn("task failed", "error", invokeErr)
		}
		if err := e.graph.Fail(taskID, taskErr, finishedAt); err != nil {
			return nil, err
		}
		e.bus.Publish(events.TaskFailedEvent{
			Workflow:  e.graph.WorkflowID(),
			ID:        taskID,
			AgentType: task.AgentType,
			Err:       taskErr,
			Timeout:   timedOut,
			Duration:  duration,
			Timestamp: finishedAt,
		})
	}

	snap, _ := e.graph.Get(taskID)
	return snap, nil
}

// skip records a task that was never dispatched because ctx ended while it
// waited for resources or capacity.
func (e *Executor) skip(task *Task, reason error) (*Task, error) {
	if err := e.graph.Skip(task.ID, reason); err != nil {
		return nil, err
	}
	e.bus.Publish(events.TaskSkippedEvent{
		Workflow:  e.graph.WorkflowID(),
		ID:        task.ID,
		AgentType: task.AgentType,
		Reason:    reason,
		Timestamp: e.now(),
	})
	snap, _ := e.graph.Get(task.ID)
	return snap, nil
}

// invoke runs the capability in its own goroutine and waits for either
// its result or the end of ctx. A capability that ignores ctx is
// abandoned; its late result is discarded.
func (e *Executor) invoke(ctx context.Context, c agent.Capability, payload agent.Payload) (agent.Payload, error) {
	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		out, err := c.Invoke(ctx, payload)
		done <- invokeResult{payload: out, err: err}
	}()

	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
