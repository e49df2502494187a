package scheduler

import (
	"fmt"
	"sort"

	"github.com/aristath/agentflow/internal/agent"
)

// DefaultPriority is applied by template loaders when an entry omits one.
const DefaultPriority = 5

// TemplateTask is one entry of a workflow template.
type TemplateTask struct {
	AgentType    agent.Type
	Priority     int
	DependsOn    []agent.Type
	PayloadHints agent.Payload
	Resources    []string
}

// Template is an ordered list of task specs. Order breaks priority ties.
type Template struct {
	Name  string
	Tasks []TemplateTask
}

// Types returns the distinct agent types used by the template, in first-use order.
func (t Template) Types() []agent.Type {
	seen := make(map[agent.Type]bool)
	var types []agent.Type
	for _, tt := range t.Tasks {
		if !seen[tt.AgentType] {
			seen[tt.AgentType] = true
			types = append(types, tt.AgentType)
		}
	}
	return types
}

// Catalog holds named workflow templates.
type Catalog struct {
	templates map[string]Template
}

// NewCatalog creates a catalog from the given templates keyed by name.
func NewCatalog(templates map[string]Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template, len(templates))}
	for name, tmpl := range templates {
		tmpl.Name = name
		c.templates[name] = tmpl
	}
	return c
}

// Lookup returns the template registered under name.
func (c *Catalog) Lookup(name string) (Template, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown workflow %q", name)
	}
	return tmpl, nil
}

// Names returns the template names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindByType returns the names of templates containing a task of type t.
func (c *Catalog) FindByType(t agent.Type) []string {
	var names []string
	for _, name := range c.Names() {
		for _, tt := range c.templates[name].Tasks {
			if tt.AgentType == t {
				names = append(names, name)
				break
			}
		}
	}
	return names
}
