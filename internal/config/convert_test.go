package config

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aristath/agentflow/internal/agent"
	"github.com/aristath/agentflow/internal/registry"
	"github.com/aristath/agentflow/internal/scheduler"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:    "unknown agent type",
			mutate:  func(c *Config) { c.Agents["linting"] = AgentConfig{Capacity: 1} },
			wantErr: []string{`"linting"`},
		},
		{
			name:    "negative capacity",
			mutate:  func(c *Config) { c.Agents["deployment"] = AgentConfig{Capacity: -1} },
			wantErr: []string{"agents.deployment: capacity"},
		},
		{
			name: "negative durations",
			mutate: func(c *Config) {
				c.TaskTimeout = Duration(-time.Second)
				c.HealthInterval = Duration(-time.Second)
			},
			wantErr: []string{"task_timeout", "health_interval"},
		},
		{
			name: "unknown workflow dependency",
			mutate: func(c *Config) {
				c.Workflows["broken"] = WorkflowConfig{Tasks: []TaskConfig{
					{Type: "deployment", DependsOn: []string{"approval"}},
				}}
			},
			wantErr: []string{"workflows.broken.tasks[0].depends_on"},
		},
		{
			name:    "negative parallelism",
			mutate:  func(c *Config) { c.MaxParallelTasks = -2 },
			wantErr: []string{"max_parallel_tasks"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %q", err, want)
				}
			}
		})
	}
}

func TestTemplate(t *testing.T) {
	cfg := DefaultConfig()
	tmpl, err := cfg.Template("pull_request")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Name != "pull_request" || len(tmpl.Tasks) != 5 {
		t.Fatalf("unexpected template %+v", tmpl)
	}

	deploy := tmpl.Tasks[4]
	if deploy.AgentType != agent.Deployment || deploy.Priority != 5 {
		t.Errorf("deployment entry = %+v", deploy)
	}
	if len(deploy.DependsOn) != 2 || deploy.DependsOn[0] != agent.SecurityScan || deploy.DependsOn[1] != agent.TestGeneration {
		t.Errorf("deployment deps = %v", deploy.DependsOn)
	}

	cfg.Workflows["plain"] = WorkflowConfig{Tasks: []TaskConfig{{Type: "code-review"}}}
	plain, err := cfg.Template("plain")
	if err != nil {
		t.Fatal(err)
	}
	if plain.Tasks[0].AgentType != agent.CodeReview || plain.Tasks[0].Priority != scheduler.DefaultPriority {
		t.Errorf("default priority not applied: %+v", plain.Tasks[0])
	}

	if _, err := cfg.Template("missing"); err == nil {
		t.Error("expected error for unknown workflow")
	}
}

// The default workflows build into graphs without dependency errors.
func TestCatalogBuilds(t *testing.T) {
	catalog, err := DefaultConfig().Catalog()
	if err != nil {
		t.Fatal(err)
	}
	names := catalog.Names()
	if len(names) != 2 || names[0] != "issue_triage" || names[1] != "pull_request" {
		t.Fatalf("names = %v", names)
	}
	for _, name := range names {
		tmpl, _ := catalog.Lookup(name)
		if _, err := scheduler.Build(name+"_test", tmpl, nil); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestRegisterAgents(t *testing.T) {
	reg := registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg := DefaultConfig()
	if err := cfg.RegisterAgents(reg); err != nil {
		t.Fatal(err)
	}
	c, ok := reg.Get(agent.CodeReview)
	if !ok || c.Total != 3 || len(c.Instances) != 2 {
		t.Errorf("code_review capacity = %+v", c)
	}

	cfg.Agents["nonsense"] = AgentConfig{}
	if err := cfg.RegisterAgents(reg); !errors.Is(err, agent.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestTimeoutsAndRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents["security_scan"] = AgentConfig{Capacity: 2, Timeout: Duration(2 * time.Minute)}
	cfg.Retry = RetryConfig{Attempts: 5}

	timeouts := cfg.Timeouts()
	if len(timeouts) != 1 || timeouts[agent.SecurityScan] != 2*time.Minute {
		t.Errorf("timeouts = %v", timeouts)
	}

	rc := cfg.RetryPolicy()
	def := agent.DefaultRetryConfig()
	if rc.MaxAttempts != 5 {
		t.Errorf("attempts = %d", rc.MaxAttempts)
	}
	if rc.InitialInterval != def.InitialInterval || rc.MaxInterval != def.MaxInterval {
		t.Errorf("unset intervals should fall back to defaults: %+v", rc)
	}
}
