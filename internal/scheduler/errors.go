package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/agentflow/internal/agent"
)

// DependencyErrorKind classifies a build-time dependency failure.
type DependencyErrorKind int

const (
	// UnsatisfiableDependency: a task depends on a type no task provides.
	UnsatisfiableDependency DependencyErrorKind = iota
	// Cyclic: some type transitively depends on itself.
	Cyclic
)

func (k DependencyErrorKind) String() string {
	switch k {
	case UnsatisfiableDependency:
		return "unsatisfiable dependency"
	case Cyclic:
		return "cyclic dependency"
	}
	return "unknown dependency error"
}

var (
	// ErrUnsatisfiable matches any *DependencyError of kind UnsatisfiableDependency.
	ErrUnsatisfiable = errors.New("unsatisfiable dependency")
	// ErrCyclic matches any *DependencyError of kind Cyclic.
	ErrCyclic = errors.New("cyclic dependency")

	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change would move a
	// task backwards or skip a state.
	ErrInvalidTransition = errors.New("invalid task status transition")
	// ErrDependenciesUnmet is returned when a task is claimed before every
	// dependency type has a completed task.
	ErrDependenciesUnmet = errors.New("task dependencies not met")
	// ErrStalledWorkflow is recorded on tasks skipped because no remaining
	// task could become ready.
	ErrStalledWorkflow = errors.New("workflow stalled: no ready tasks")
)

// DependencyError is fatal at build time; the workflow never starts.
type DependencyError struct {
	Kind       DependencyErrorKind
	Type       agent.Type // task type that declared the dependency (unsatisfiable only)
	Dependency agent.Type // missing dependency type (unsatisfiable only)
	Detail     string
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case UnsatisfiableDependency:
		return fmt.Sprintf("%s: %s depends on %s, which no task in the workflow provides", e.Kind, e.Type, e.Dependency)
	case Cyclic:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
	}
	return e.Kind.String()
}

// Is lets errors.Is match the kind sentinels.
func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrUnsatisfiable:
		return e.Kind == UnsatisfiableDependency
	case ErrCyclic:
		return e.Kind == Cyclic
	}
	return false
}

// ExecutionError records a capability failure on a single task.
type ExecutionError struct {
	TaskID    string
	AgentType agent.Type
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.AgentType, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError records a task that exceeded its deadline.
type TimeoutError struct {
	TaskID    string
	AgentType agent.Type
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s (%s) timed out after %s", e.TaskID, e.AgentType, e.Timeout)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) hold.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }
