package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as a Go duration string ("5m", "30s")
// in JSON and YAML files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// RetryConfig controls retries of failed agent invocations.
type RetryConfig struct {
	Attempts        int      `json:"attempts" yaml:"attempts"`                                     // Total attempts including the first
	InitialInterval Duration `json:"initial_interval,omitempty" yaml:"initial_interval,omitempty"` // First backoff interval
	MaxInterval     Duration `json:"max_interval,omitempty" yaml:"max_interval,omitempty"`         // Backoff ceiling
}

// AgentConfig describes the pool serving one agent type.
type AgentConfig struct {
	Capacity  int      `json:"capacity" yaml:"capacity"`                       // Concurrent tasks the pool accepts
	Instances []string `json:"instances,omitempty" yaml:"instances,omitempty"` // Instance names handed out round-robin
	Command   string   `json:"command,omitempty" yaml:"command,omitempty"`     // External binary; empty runs the simulated agent
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`           // Arguments passed to Command
	Timeout   Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`     // Overrides task_timeout for this type
}

// TaskConfig is one entry of a workflow definition.
type TaskConfig struct {
	Type      string         `json:"type" yaml:"type"`                                 // Agent type name
	Priority  *int           `json:"priority,omitempty" yaml:"priority,omitempty"`     // Higher runs first; default 5
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"` // Agent types that must complete first
	Resources []string       `json:"resources,omitempty" yaml:"resources,omitempty"`   // Named locks held while running
	Payload   map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`       // Merged over the run context
}

// WorkflowConfig defines the tasks of one workflow type.
type WorkflowConfig struct {
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []TaskConfig `json:"tasks" yaml:"tasks"`
}

// Config is the top-level configuration.
type Config struct {
	MaxParallelTasks        int                       `json:"max_parallel_tasks" yaml:"max_parallel_tasks"`
	TaskTimeout             Duration                  `json:"task_timeout" yaml:"task_timeout"`
	HistorySize             int                       `json:"history_size" yaml:"history_size"`
	HealthInterval          Duration                  `json:"health_interval" yaml:"health_interval"`
	Retry                   RetryConfig               `json:"retry" yaml:"retry"`
	CircuitBreakerThreshold int                       `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	Agents                  map[string]AgentConfig    `json:"agents" yaml:"agents"`
	Workflows               map[string]WorkflowConfig `json:"workflows" yaml:"workflows"`
}
