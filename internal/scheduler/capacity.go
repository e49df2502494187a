package scheduler

import (
	"sort"

	"github.com/aristath/agentflow/internal/agent"
)

// GroupForExecution partitions ready tasks into wavefront groups that
// respect per-type available capacity. Groups run sequentially; tasks
// within a group run concurrently.
//
// Tasks are ordered by priority (descending), ties in template order, then
// packed greedily: a task joins the current group while its type has
// capacity left in that group, otherwise the group is closed and a new one
// started. A task whose type has no available capacity at all is placed in
// a group by itself so the workflow still makes progress.
func GroupForExecution(ready []*Task, available map[agent.Type]int) [][]*Task {
	sorted := append([]*Task(nil), ready...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Index < sorted[j].Index
	})

	var groups [][]*Task
	var current []*Task
	used := make(map[agent.Type]int)

	closeCurrent := func() {
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = nil
		used = make(map[agent.Type]int)
	}

	for _, task := range sorted {
		avail := available[task.AgentType]

		if avail <= 0 {
			closeCurrent()
			groups = append(groups, []*Task{task})
			continue
		}

		if used[task.AgentType]+1 > avail {
			closeCurrent()
		}
		current = append(current, task)
		used[task.AgentType]++
	}
	closeCurrent()

	return groups
}
