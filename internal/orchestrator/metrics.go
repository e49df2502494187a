package orchestrator

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/agentflow/internal/agent"
)

// DefaultHistorySize bounds the in-memory workflow history.
const DefaultHistorySize = 100

// MetricsSnapshot is a point-in-time copy of the aggregate counters.
type MetricsSnapshot struct {
	WorkflowsProcessed    int                    `json:"workflows_processed"`
	TasksExecuted         int                    `json:"total_tasks_executed"`
	ParallelTasksExecuted int                    `json:"parallel_tasks_executed"`
	TasksFailed           int                    `json:"total_tasks_failed"`
	TasksSkipped          int                    `json:"total_tasks_skipped"`
	AverageWorkflowTime   time.Duration          `json:"-"`
	AverageWorkflowSecs   float64                `json:"average_workflow_time_seconds"`
	AgentUtilization      map[agent.Type]float64 `json:"agent_utilization"`
}

// Metrics aggregates workflow results across runs and mirrors them into
// Prometheus collectors. Safe for concurrent use. A nil *Metrics records
// nothing and reports zero values.
type Metrics struct {
	mu          sync.Mutex
	processed   int
	average     time.Duration
	executed    int
	parallel    int
	failed      int
	skipped     int
	utilization map[agent.Type]float64
	history     *lru.Cache[string, *WorkflowResult]

	workflowDuration *prometheus.HistogramVec
	taskOutcomes     *prometheus.CounterVec
	efficiency       prometheus.Gauge
	agentUtilization *prometheus.GaugeVec
	tasksInFlight    *prometheus.GaugeVec
}

// NewMetrics creates an aggregator keeping the last historySize results
// (DefaultHistorySize when <= 0) and registers its collectors on reg.
// A nil reg leaves the collectors unregistered. Collectors already
// registered on reg are reused.
func NewMetrics(historySize int, reg prometheus.Registerer) (*Metrics, error) {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	history, err := lru.New[string, *WorkflowResult](historySize)
	if err != nil {
		return nil, fmt.Errorf("create workflow history: %w", err)
	}

	m := &Metrics{
		history:     history,
		utilization: make(map[agent.Type]float64),
		workflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentflow",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of workflow runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"workflow", "state"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentflow",
			Subsystem: "task",
			Name:      "outcomes_total",
			Help:      "Tasks reaching a terminal state, by agent type and status.",
		}, []string{"agent_type", "status"}),
		efficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Subsystem: "workflow",
			Name:      "parallel_efficiency",
			Help:      "Parallel efficiency of the most recent workflow run.",
		}),
		agentUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Subsystem: "agent",
			Name:      "utilization_ratio",
			Help:      "Current over total capacity per agent type, sampled at the end of the last run.",
		}, []string{"agent_type"}),
		tasksInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentflow",
			Subsystem: "agent",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently dispatched per agent type.",
		}, []string{"agent_type"}),
	}

	if reg == nil {
		return m, nil
	}
	if m.workflowDuration, err = register(reg, m.workflowDuration); err != nil {
		return nil, fmt.Errorf("register workflow duration histogram: %w", err)
	}
	if m.taskOutcomes, err = register(reg, m.taskOutcomes); err != nil {
		return nil, fmt.Errorf("register task outcome counter: %w", err)
	}
	if m.efficiency, err = register(reg, m.efficiency); err != nil {
		return nil, fmt.Errorf("register efficiency gauge: %w", err)
	}
	if m.agentUtilization, err = register(reg, m.agentUtilization); err != nil {
		return nil, fmt.Errorf("register utilization gauge: %w", err)
	}
	if m.tasksInFlight, err = register(reg, m.tasksInFlight); err != nil {
		return nil, fmt.Errorf("register in-flight gauge: %w", err)
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Record folds one result into the aggregates. The rolling average is
// updated incrementally: avg' = (avg*(n-1) + t) / n.
func (m *Metrics) Record(result *WorkflowResult) {
	if m == nil || result == nil {
		return
	}

	m.mu.Lock()
	m.processed++
	n := time.Duration(m.processed)
	m.average = (m.average*(n-1) + result.TotalTime) / n
	m.executed += result.TasksCompleted
	m.parallel += result.ParallelTasks
	m.failed += result.TasksFailed
	m.skipped += result.TasksSkipped
	m.utilization = maps.Clone(result.AgentUtilization)
	m.mu.Unlock()

	m.history.Add(result.WorkflowID, result)

	m.workflowDuration.WithLabelValues(result.WorkflowType, result.State.String()).Observe(result.TotalTime.Seconds())
	m.efficiency.Set(result.ParallelEfficiency)
	for t, u := range result.AgentUtilization {
		m.agentUtilization.WithLabelValues(t.String()).Set(u)
	}
	for _, task := range result.Tasks {
		if task.Status.Terminal() {
			m.taskOutcomes.WithLabelValues(task.AgentType.String(), task.Status.String()).Inc()
		}
	}
}

// TaskStarted and TaskFinished track in-flight dispatches per type.
func (m *Metrics) TaskStarted(t agent.Type) {
	if m == nil {
		return
	}
	m.tasksInFlight.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) TaskFinished(t agent.Type) {
	if m == nil {
		return
	}
	m.tasksInFlight.WithLabelValues(t.String()).Dec()
}

// Snapshot returns the current aggregates.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		WorkflowsProcessed:    m.processed,
		TasksExecuted:         m.executed,
		ParallelTasksExecuted: m.parallel,
		TasksFailed:           m.failed,
		TasksSkipped:          m.skipped,
		AverageWorkflowTime:   m.average,
		AverageWorkflowSecs:   m.average.Seconds(),
		AgentUtilization:      maps.Clone(m.utilization),
	}
}

// History returns the recorded result for workflowID, if still retained.
func (m *Metrics) History(workflowID string) (*WorkflowResult, bool) {
	if m == nil {
		return nil, false
	}
	return m.history.Peek(workflowID)
}

// Recent returns retained results from oldest to newest.
func (m *Metrics) Recent() []*WorkflowResult {
	if m == nil {
		return nil
	}
	return m.history.Values()
}
