package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}
}

func TestSaveFormatByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	if err := Save(DefaultConfig(), jsonPath); err != nil {
		t.Fatalf("Save JSON failed: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	if decoded["task_timeout"] != "5m0s" {
		t.Errorf("durations should be written as strings, got %v", decoded["task_timeout"])
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := Save(DefaultConfig(), yamlPath); err != nil {
		t.Fatalf("Save YAML failed: %v", err)
	}
	data, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "task_timeout: 5m0s") {
		t.Errorf("expected YAML output, got:\n%s", data)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			cfg := DefaultConfig()
			cfg.MaxParallelTasks = 0
			cfg.TaskTimeout = Duration(45 * time.Second)
			cfg.Agents["deployment"] = AgentConfig{
				Capacity:  4,
				Instances: []string{"deploy-a", "deploy-b"},
				Command:   "deploy-agent",
				Args:      []string{"--dry-run"},
				Timeout:   Duration(time.Minute),
			}
			p := 3
			cfg.Workflows["release"] = WorkflowConfig{
				Tasks: []TaskConfig{
					{Type: "deployment", Priority: &p, Resources: []string{"prod"}},
					{Type: "notification", DependsOn: []string{"deployment"}},
				},
			}

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load(path, "")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.MaxParallelTasks != 0 {
				t.Errorf("explicit zero should survive, got %d", loaded.MaxParallelTasks)
			}
			if loaded.TaskTimeout.Std() != 45*time.Second {
				t.Errorf("task_timeout = %s", loaded.TaskTimeout)
			}
			dep := loaded.Agents["deployment"]
			if dep.Capacity != 4 || dep.Command != "deploy-agent" || len(dep.Instances) != 2 || dep.Timeout.Std() != time.Minute {
				t.Errorf("deployment agent mismatch: %+v", dep)
			}
			release := loaded.Workflows["release"]
			if len(release.Tasks) != 2 {
				t.Fatalf("release tasks = %d", len(release.Tasks))
			}
			if release.Tasks[0].Priority == nil || *release.Tasks[0].Priority != 3 {
				t.Errorf("priority lost: %+v", release.Tasks[0])
			}
			if release.Tasks[1].Priority != nil {
				t.Errorf("unset priority should stay unset")
			}
		})
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.HistorySize = 10
	if err := Save(first, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second := DefaultConfig()
	second.HistorySize = 20
	if err := Save(second, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.HistorySize != 20 {
		t.Errorf("Expected 20, got %d", loaded.HistorySize)
	}
}
