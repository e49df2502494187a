package config

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/registry"
	"github.com/aristath/agentflow/internal/scheduler"
)

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxParallelTasks < 0 {
		errs = append(errs, fmt.Errorf("max_parallel_tasks must not be negative, got %d", c.MaxParallelTasks))
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must not be negative, got %s", c.TaskTimeout))
	}
	if c.HealthInterval < 0 {
		errs = append(errs, fmt.Errorf("health_interval must not be negative, got %s", c.HealthInterval))
	}
	if c.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts must not be negative, got %d", c.Retry.Attempts))
	}

	for _, name := range sortedKeys(c.Agents) {
		a := c.Agents[name]
		if _, err := agent.ParseType(name); err != nil {
			errs = append(errs, fmt.Errorf("agents: %w", err))
		}
		if a.Capacity < 0 {
			errs = append(errs, fmt.Errorf("agents.%s: capacity must not be negative, got %d", name, a.Capacity))
		}
		if a.Timeout < 0 {
			errs = append(errs, fmt.Errorf("agents.%s: timeout must not be negative, got %s", name, a.Timeout))
		}
	}

	for _, name := range sortedKeys(c.Workflows) {
		if _, err := c.Template(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Template converts the named workflow into a scheduler template.
func (c *Config) Template(name string) (scheduler.Template, error) {
	wf, ok := c.Workflows[name]
	if !ok {
		return scheduler.Template{}, fmt.Errorf("unknown workflow %q", name)
	}

	tmpl := scheduler.Template{Name: name, Tasks: make([]scheduler.TemplateTask, 0, len(wf.Tasks))}
	for i, tc := range wf.Tasks {
		t, err := agent.ParseType(tc.Type)
		if err != nil {
			return scheduler.Template{}, fmt.Errorf("workflows.%s.tasks[%d]: %w", name, i, err)
		}
		deps := make([]agent.Type, 0, len(tc.DependsOn))
		for _, d := range tc.DependsOn {
			dt, err := agent.ParseType(d)
			if err != nil {
				return scheduler.Template{}, fmt.Errorf("workflows.%s.tasks[%d].depends_on: %w", name, i, err)
			}
			deps = append(deps, dt)
		}
		prio := scheduler.DefaultPriority
		if tc.Priority != nil {
			prio = *tc.Priority
		}
		tmpl.Tasks = append(tmpl.Tasks, scheduler.TemplateTask{
			AgentType:    t,
			Priority:     prio,
			DependsOn:    deps,
			PayloadHints: agent.Payload(tc.Payload).Clone(),
			Resources:    tc.Resources,
		})
	}
	return tmpl, nil
}

// Catalog converts every configured workflow.
func (c *Config) Catalog() (*scheduler.Catalog, error) {
	templates := make(map[string]scheduler.Template, len(c.Workflows))
	for _, name := range sortedKeys(c.Workflows) {
		tmpl, err := c.Template(name)
		if err != nil {
			return nil, err
		}
		templates[name] = tmpl
	}
	return scheduler.NewCatalog(templates), nil
}

// RegisterAgents registers every configured pool on reg.
func (c *Config) RegisterAgents(reg *registry.Registry) error {
	for _, name := range sortedKeys(c.Agents) {
		t, err := agent.ParseType(name)
		if err != nil {
			return fmt.Errorf("agents: %w", err)
		}
		a := c.Agents[name]
		if err := reg.Register(t, a.Capacity, a.Instances...); err != nil {
			return fmt.Errorf("agents.%s: %w", name, err)
		}
	}
	return nil
}

// Timeouts returns the per-type timeout overrides. Unknown type names are
// ignored; Validate reports them.
func (c *Config) Timeouts() map[agent.Type]time.Duration {
	out := make(map[agent.Type]time.Duration)
	for name, a := range c.Agents {
		if a.Timeout <= 0 {
			continue
		}
		if t, err := agent.ParseType(name); err == nil {
			out[t] = a.Timeout.Std()
		}
	}
	return out
}

// RetryPolicy returns the backoff settings for resilient capabilities,
// falling back to the agent defaults for unset intervals.
func (c *Config) RetryPolicy() agent.RetryConfig {
	rc := agent.DefaultRetryConfig()
	if c.Retry.Attempts > 0 {
		rc.MaxAttempts = c.Retry.Attempts
	}
	if c.Retry.InitialInterval > 0 {
		rc.InitialInterval = c.Retry.InitialInterval.Std()
	}
	if c.Retry.MaxInterval > 0 {
		rc.MaxInterval = c.Retry.MaxInterval.Std()
	}
	return rc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
