package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/events"
	"github.com/aristath/agentflow/internal/registry"
	"github.com/aristath/agentflow/internal/scheduler"
)

// ErrNoCatalog is returned by RunTemplate when the runner has no catalog.
var ErrNoCatalog = errors.New("runner has no workflow catalog")

// RunnerConfig configures the workflow runner.
type RunnerConfig struct {
	MaxParallelTasks int                          // Max concurrent tasks within a wavefront (0 = group size)
	TaskTimeout      time.Duration                // Default per-task deadline (0 disables)
	Timeouts         map[agent.Type]time.Duration // Per-type deadline overrides
	Logger           *slog.Logger
	Bus              *events.EventBus               // Optional event bus (nil disables)
	Metrics          *Metrics                       // Optional aggregator (nil disables)
	Catalog          *scheduler.Catalog             // Templates for RunTemplate
	Locks            *scheduler.ResourceLockManager // Shared across runs; created if nil
}

// Runner executes workflow templates wavefront by wavefront against a
// shared registry and capability table.
type Runner struct {
	config RunnerConfig
	reg    *registry.Registry
	caps   agent.Capabilities
	logger *slog.Logger
}

// NewRunner creates a runner. The registry is owned by the caller and may
// be shared by several runners; tasks then wait for a free slot instead of
// exceeding a type's capacity.
func NewRunner(reg *registry.Registry, caps agent.Capabilities, cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxParallelTasks < 0 {
		cfg.MaxParallelTasks = 0
	}
	if cfg.Locks == nil {
		cfg.Locks = scheduler.NewResourceLockManager()
	}
	return &Runner{
		config: cfg,
		reg:    reg,
		caps:   caps,
		logger: cfg.Logger,
	}
}

// RunTemplate runs the catalog template registered under name with a
// generated workflow ID of the form <name>_<uuid>.
func (r *Runner) RunTemplate(ctx context.Context, name string, payload agent.Payload) (*WorkflowResult, error) {
	if r.config.Catalog == nil {
		return nil, ErrNoCatalog
	}
	tmpl, err := r.config.Catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, name+"_"+uuid.NewString(), tmpl, payload)
}

// Run builds the template and executes it until no task can make progress.
//
// Build errors and missing capabilities are returned before any task is
// dispatched, with a nil result. Otherwise a result is always returned:
// task failures and stalls are reported on it, not as errors. If ctx is
// canceled the partial result is returned together with ctx.Err().
func (r *Runner) Run(ctx context.Context, workflowID string, tmpl scheduler.Template, payload agent.Payload) (*WorkflowResult, error) {
	graph, err := scheduler.Build(workflowID, tmpl, payload)
	if err != nil {
		return nil, fmt.Errorf("build workflow %s: %w", workflowID, err)
	}
	if err := r.caps.Require(tmpl.Types()); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}

	exec := scheduler.NewExecutor(graph, r.reg, r.caps, scheduler.ExecutorConfig{
		Timeout:  r.config.TaskTimeout,
		Timeouts: r.config.Timeouts,
		Logger:   r.logger,
		Bus:      r.config.Bus,
		Locks:    r.config.Locks,
	})

	log := r.logger.With("workflow", workflowID)
	start := time.Now()
	log.Info("workflow started", "template", tmpl.Name, "tasks", graph.Len())
	r.config.Bus.Publish(events.WorkflowStartedEvent{
		Workflow:  workflowID,
		Name:      tmpl.Name,
		Tasks:     taskInfos(graph.Tasks()),
		Timestamp: start,
	})

	result := &WorkflowResult{
		WorkflowID:   workflowID,
		WorkflowType: tmpl.Name,
		State:        StateRunning,
		StartedAt:    start,
	}

	for result.State == StateRunning {
		if err := ctx.Err(); err != nil {
			n := r.skipPending(graph, err)
			log.Warn("workflow canceled", "skipped", n, "error", err)
			result.State = StateCanceled
			break
		}

		ready := graph.ReadySet(graph.CompletedTypes())
		if len(ready) == 0 {
			if graph.Counts().Pending == 0 {
				result.State = StateCompleted
				break
			}
			n := r.skipPending(graph, scheduler.ErrStalledWorkflow)
			log.Warn("workflow stalled: pending tasks depend on types with no completed task", "skipped", n)
			result.State = StateStalledNoProgress
			break
		}

		// Groups are planned from a snapshot; the executor's Reserve enforces
		// the limit when other runners share the registry.
		for _, group := range scheduler.GroupForExecution(ready, r.reg.Available()) {
			if ctx.Err() != nil {
				break
			}
			result.Wavefronts++
			if len(group) > 1 {
				result.ParallelTasks += len(group)
			}
			r.runWavefront(ctx, log, graph, exec, result.Wavefronts, group)
		}
	}

	tasks := graph.Tasks()
	counts := graph.Counts()
	result.TotalTime = time.Since(start)
	result.TasksCompleted = counts.Completed
	result.TasksFailed = counts.Failed
	result.TasksSkipped = counts.Skipped
	result.ParallelEfficiency = ParallelEfficiency(tasks, result.TotalTime)
	result.AgentUtilization = r.reg.Utilization()
	result.Tasks = tasks

	r.config.Metrics.Record(result)

	log.Info("workflow finished",
		"state", result.State.String(),
		"duration", result.TotalTime,
		"completed", result.TasksCompleted,
		"failed", result.TasksFailed,
		"skipped", result.TasksSkipped,
		"efficiency", fmt.Sprintf("%.2f", result.ParallelEfficiency),
	)
	r.config.Bus.Publish(events.WorkflowFinishedEvent{
		Workflow:           workflowID,
		State:              result.State.String(),
		TotalTime:          result.TotalTime,
		Completed:          result.TasksCompleted,
		Failed:             result.TasksFailed,
		Skipped:            result.TasksSkipped,
		ParallelEfficiency: result.ParallelEfficiency,
		Timestamp:          time.Now(),
	})

	if result.State == StateCanceled {
		return result, ctx.Err()
	}
	return result, nil
}

// runWavefront dispatches every task of group concurrently and returns once
// all of them are terminal.
func (r *Runner) runWavefront(ctx context.Context, log *slog.Logger, graph *scheduler.Graph, exec *scheduler.Executor, n int, group []*scheduler.Task) {
	ids := make([]string, len(group))
	for i, task := range group {
		ids[i] = task.ID
	}
	log.Debug("wavefront started", "wavefront", n, "tasks", len(group))
	r.config.Bus.Publish(events.WavefrontStartedEvent{
		Workflow:  graph.WorkflowID(),
		Wavefront: n,
		TaskIDs:   ids,
		Timestamp: time.Now(),
	})

	// Plain group: one task's failure must not cancel its siblings
	var g errgroup.Group
	if r.config.MaxParallelTasks > 0 {
		g.SetLimit(r.config.MaxParallelTasks)
	}
	for _, task := range group {
		task := task
		g.Go(func() error {
			r.config.Metrics.TaskStarted(task.AgentType)
			defer r.config.Metrics.TaskFinished(task.AgentType)

			if _, err := exec.Execute(ctx, task.ID); err != nil {
				// The task never left Pending; skip it so the loop terminates
				log.Error("task could not be dispatched", "task", task.ID, "error", err)
				if skipErr := graph.Skip(task.ID, err); skipErr == nil {
					r.publishSkipped(graph, task, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	c := graph.Counts()
	r.config.Bus.Publish(events.WorkflowProgressEvent{
		Workflow:   graph.WorkflowID(),
		Total:      c.Total,
		Pending:    c.Pending,
		InProgress: c.InProgress,
		Completed:  c.Completed,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		Timestamp:  time.Now(),
	})
}

// skipPending marks every Pending task Skipped with reason. Called only
// between wavefronts, when nothing is in flight.
func (r *Runner) skipPending(graph *scheduler.Graph, reason error) int {
	n := 0
	for _, task := range graph.Tasks() {
		if task.Status != scheduler.TaskPending {
			continue
		}
		if err := graph.Skip(task.ID, reason); err != nil {
			continue
		}
		r.publishSkipped(graph, task, reason)
		n++
	}
	return n
}

func (r *Runner) publishSkipped(graph *scheduler.Graph, task *scheduler.Task, reason error) {
	r.config.Bus.Publish(events.TaskSkippedEvent{
		Workflow:  graph.WorkflowID(),
		ID:        task.ID,
		AgentType: task.AgentType,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func taskInfos(tasks []*scheduler.Task) []events.TaskInfo {
	infos := make([]events.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = events.TaskInfo{
			ID:        task.ID,
			AgentType: task.AgentType,
			Priority:  task.Priority,
			DependsOn: task.DependsOn,
		}
	}
	return infos
}
