package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/toposort"

	"github.com/aristath/agentflow/internal/agent"
)

// Graph holds the tasks of one workflow instance and their status.
// Dependencies are tracked at agent-type granularity: a task is unblocked
// by any Completed task of each type it depends on.
type Graph struct {
	mu         sync.RWMutex
	workflowID string
	tasks      []*Task          // template order
	byID       map[string]*Task // All tasks indexed by ID
	typeOrder  []agent.Type     // topological order of agent types
}

// Build instantiates a template into a graph of Pending tasks. Each task's
// payload is ctx overlaid with the entry's hints and the workflow ID.
// It fails with *DependencyError if a dependency type has no provider in the
// template or if the type-level dependency edges contain a cycle.
func Build(workflowID string, tmpl Template, ctx agent.Payload) (*Graph, error) {
	g := &Graph{
		workflowID: workflowID,
		byID:       make(map[string]*Task, len(tmpl.Tasks)),
	}

	provided := make(map[agent.Type]bool)
	for i, tt := range tmpl.Tasks {
		if !tt.AgentType.Valid() {
			return nil, fmt.Errorf("template entry %d: %w: %d", i, agent.ErrUnknownType, uint8(tt.AgentType))
		}
		provided[tt.AgentType] = true
	}

	for i, tt := range tmpl.Tasks {
		deps := dedupeTypes(tt.DependsOn)
		for _, dep := range deps {
			if !provided[dep] {
				return nil, &DependencyError{Kind: UnsatisfiableDependency, Type: tt.AgentType, Dependency: dep}
			}
			if dep == tt.AgentType {
				return nil, &DependencyError{Kind: Cyclic, Detail: fmt.Sprintf("%s depends on itself", dep)}
			}
		}

		task := &Task{
			ID:        fmt.Sprintf("%s_task_%d", workflowID, i),
			Index:     i,
			AgentType: tt.AgentType,
			Priority:  tt.Priority,
			Payload:   ctx.Merge(tt.PayloadHints, agent.Payload{"workflow_id": workflowID}),
			DependsOn: deps,
			Status:    TaskPending,
		}
		if len(tt.Resources) > 0 {
			task.Resources = append([]string(nil), tt.Resources...)
		}
		g.tasks = append(g.tasks, task)
		g.byID[task.ID] = task
	}

	order, err := typeOrder(g.tasks)
	if err != nil {
		return nil, err
	}
	g.typeOrder = order

	return g, nil
}

// typeOrder sorts agent types topologically over dependency edges
// (dep -> dependent) and reports a cycle as *DependencyError.
func typeOrder(tasks []*Task) ([]agent.Type, error) {
	type edgeKey struct{ from, to agent.Type }
	seen := make(map[edgeKey]bool)
	var edges []toposort.Edge

	for _, task := range tasks {
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps types without dependencies in the output
			edges = append(edges, toposort.Edge{nil, task.AgentType})
			continue
		}
		for _, dep := range task.DependsOn {
			k := edgeKey{dep, task.AgentType}
			if seen[k] {
				continue
			}
			seen[k] = true
			edges = append(edges, toposort.Edge{dep, task.AgentType})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &DependencyError{Kind: Cyclic, Detail: err.Error()}
	}

	order := make([]agent.Type, 0, len(sorted))
	for _, node := range sorted {
		if node == nil {
			continue
		}
		order = append(order, node.(agent.Type))
	}
	return order, nil
}

func dedupeTypes(types []agent.Type) []agent.Type {
	if len(types) == 0 {
		return nil
	}
	seen := make(map[agent.Type]bool, len(types))
	out := make([]agent.Type, 0, len(types))
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// WorkflowID returns the identifier the graph was built with.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// TypeOrder returns the agent types in dependency order.
func (g *Graph) TypeOrder() []agent.Type {
	return append([]agent.Type(nil), g.typeOrder...)
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// CompletedTypes returns the set of types with at least one Completed task.
func (g *Graph) CompletedTypes() map[agent.Type]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completedTypesLocked()
}

func (g *Graph) completedTypesLocked() map[agent.Type]bool {
	out := make(map[agent.Type]bool)
	for _, task := range g.tasks {
		if task.Status == TaskCompleted {
			out[task.AgentType] = true
		}
	}
	return out
}

// ReadySet returns Pending tasks whose every dependency type is in
// completed, in template order. Tasks without dependencies are always ready
// while Pending.
func (g *Graph) ReadySet(completed map[agent.Type]bool) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := []*Task{}
	for _, task := range g.tasks {
		if task.Status != TaskPending {
			continue
		}
		if depsSatisfied(task, completed) {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

func depsSatisfied(task *Task, completed map[agent.Type]bool) bool {
	for _, dep := range task.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// Claim moves a Pending task to InProgress, recording the serving instance
// and start time. It fails if the task was already claimed or if a
// dependency type has no Completed task yet, so a task is dispatched at
// most once.
func (g *Graph) Claim(taskID, instance string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.transitionLocked(taskID, TaskInProgress)
	if err != nil {
		return err
	}
	if !depsSatisfied(task, g.completedTypesLocked()) {
		return fmt.Errorf("%w: %s", ErrDependenciesUnmet, taskID)
	}

	task.Status = TaskInProgress
	task.AssignedAgent = instance
	task.StartedAt = at
	return nil
}

// Complete moves an InProgress task to Completed with its result.
func (g *Graph) Complete(taskID string, result agent.Payload, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.transitionLocked(taskID, TaskCompleted)
	if err != nil {
		return err
	}
	task.Status = TaskCompleted
	task.Result = result.Clone()
	task.FinishedAt = at
	return nil
}

// Fail moves an InProgress task to Failed with the captured error.
func (g *Graph) Fail(taskID string, taskErr error, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.transitionLocked(taskID, TaskFailed)
	if err != nil {
		return err
	}
	task.Status = TaskFailed
	task.Err = taskErr
	task.FinishedAt = at
	return nil
}

// Skip moves a Pending task to Skipped, recording why.
func (g *Graph) Skip(taskID string, reason error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, err := g.transitionLocked(taskID, TaskSkipped)
	if err != nil {
		return err
	}
	task.Status = TaskSkipped
	task.Err = reason
	return nil
}

// SkipPending marks every remaining Pending task Skipped and returns how
// many were skipped.
func (g *Graph) SkipPending(reason error) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, task := range g.tasks {
		if task.Status == TaskPending {
			task.Status = TaskSkipped
			task.Err = reason
			n++
		}
	}
	return n
}

// transitionLocked looks up taskID and checks that moving it to `to` is
// allowed. Caller holds g.mu.
func (g *Graph) transitionLocked(taskID string, to TaskStatus) (*Task, error) {
	task, ok := g.byID[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !task.Status.canTransition(to) {
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, taskID, task.Status, to)
	}
	return task, nil
}

// Get returns a snapshot of the task with the given ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, ok := g.byID[taskID]
	if !ok {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns snapshots of all tasks in template order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.tasks))
	for _, task := range g.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	return tasks
}

// Counts tallies tasks by status.
type Counts struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// Counts returns the current status tally.
func (g *Graph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := Counts{Total: len(g.tasks)}
	for _, task := range g.tasks {
		switch task.Status {
		case TaskPending:
			c.Pending++
		case TaskInProgress:
			c.InProgress++
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		case TaskSkipped:
			c.Skipped++
		}
	}
	return c
}
