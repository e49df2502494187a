package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// configNames are tried in order inside a config directory.
var configNames = []string{"config.yaml", "config.yml", "config.json"}

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads a single file over the defaults. Unlike Load, the file must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return Load("", path)
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.agentflow/config.{yaml,yml,json}
// Project: .agentflow/config.{yaml,yml,json} (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := findConfig(filepath.Join(homeDir, ".agentflow"))
	projectPath := findConfig(".agentflow")

	return Load(globalPath, projectPath)
}

// findConfig returns the first config file present in dir, or "".
func findConfig(dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// mergeConfigFile reads a config file and merges it into the base config.
// Scalars present in the file replace the base values; agents and workflows
// are merged by key, with file entries replacing whole base entries.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	loaded := *base
	loaded.Agents = nil
	loaded.Workflows = nil
	if isYAML(path) {
		err = yaml.Unmarshal(data, &loaded)
	} else {
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	agents, workflows := base.Agents, base.Workflows
	if agents == nil {
		agents = make(map[string]AgentConfig)
	}
	if workflows == nil {
		workflows = make(map[string]WorkflowConfig)
	}
	maps.Copy(agents, loaded.Agents)
	maps.Copy(workflows, loaded.Workflows)

	*base = loaded
	base.Agents = agents
	base.Workflows = workflows
	return nil
}
