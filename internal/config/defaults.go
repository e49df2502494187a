package config

import "time"

func priority(p int) *int { return &p }

// DefaultConfig returns the built-in agent pools and workflows.
func DefaultConfig() *Config {
	return &Config{
		MaxParallelTasks: 5,
		TaskTimeout:      Duration(5 * time.Minute),
		HistorySize:      100,
		HealthInterval:   Duration(30 * time.Second),
		Retry: RetryConfig{
			Attempts:        3,
			InitialInterval: Duration(100 * time.Millisecond),
			MaxInterval:     Duration(10 * time.Second),
		},
		CircuitBreakerThreshold: 5,
		Agents: map[string]AgentConfig{
			"code_review":          {Capacity: 3, Instances: []string{"code-review-1", "code-review-2"}},
			"security_scan":        {Capacity: 2, Instances: []string{"security-1"}},
			"test_generation":      {Capacity: 2, Instances: []string{"test-gen-1"}},
			"documentation":        {Capacity: 1, Instances: []string{"docs-1"}},
			"deployment":           {Capacity: 2, Instances: []string{"deploy-1"}},
			"classification":       {Capacity: 1, Instances: []string{"classify-1"}},
			"assignment":           {Capacity: 1, Instances: []string{"assign-1"}},
			"template_application": {Capacity: 1, Instances: []string{"template-1"}},
			"notification":         {Capacity: 1, Instances: []string{"notify-1"}},
		},
		Workflows: map[string]WorkflowConfig{
			"pull_request": {
				Description: "Review, scan, test, document and deploy a pull request",
				Tasks: []TaskConfig{
					{Type: "code_review", Priority: priority(8)},
					{Type: "security_scan", Priority: priority(9)},
					{Type: "test_generation", Priority: priority(6), DependsOn: []string{"code_review"}},
					{Type: "documentation", Priority: priority(4), DependsOn: []string{"code_review"}},
					{Type: "deployment", Priority: priority(5), DependsOn: []string{"security_scan", "test_generation"}},
				},
			},
			"issue_triage": {
				Description: "Classify, assign and notify on a new issue",
				Tasks: []TaskConfig{
					{Type: "classification", Priority: priority(10)},
					{Type: "assignment", Priority: priority(8), DependsOn: []string{"classification"}},
					{Type: "template_application", Priority: priority(6), DependsOn: []string{"classification"}},
					{Type: "notification", Priority: priority(7), DependsOn: []string{"assignment"}},
				},
			},
		},
	}
}
