package scheduler

import (
	"testing"

	"github.com/aristath/agentflow/internal/agent"
)

func readyTask(index int, t agent.Type, priority int) *Task {
	return &Task{ID: string(rune('a' + index)), Index: index, AgentType: t, Priority: priority}
}

func groupIDs(groups [][]*Task) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		for _, task := range g {
			out[i] = append(out[i], task.ID)
		}
	}
	return out
}

func TestGroupForExecution(t *testing.T) {
	tests := []struct {
		name      string
		ready     []*Task
		available map[agent.Type]int
		want      [][]string
	}{
		{
			name: "empty ready set",
			want: [][]string{},
		},
		{
			name: "all fit in one group",
			ready: []*Task{
				readyTask(0, agent.CodeReview, 5),
				readyTask(1, agent.SecurityScan, 5),
			},
			available: map[agent.Type]int{agent.CodeReview: 1, agent.SecurityScan: 1},
			want:      [][]string{{"a", "b"}},
		},
		{
			name: "priority orders the group",
			ready: []*Task{
				readyTask(0, agent.CodeReview, 8),
				readyTask(1, agent.SecurityScan, 9),
			},
			available: map[agent.Type]int{agent.CodeReview: 3, agent.SecurityScan: 2},
			want:      [][]string{{"b", "a"}},
		},
		{
			name: "ties keep template order",
			ready: []*Task{
				readyTask(0, agent.Documentation, 5),
				readyTask(1, agent.CodeReview, 5),
				readyTask(2, agent.SecurityScan, 5),
			},
			available: map[agent.Type]int{agent.Documentation: 1, agent.CodeReview: 1, agent.SecurityScan: 1},
			want:      [][]string{{"a", "b", "c"}},
		},
		{
			name: "overflow opens a new group",
			ready: []*Task{
				readyTask(0, agent.CodeReview, 5),
				readyTask(1, agent.CodeReview, 5),
				readyTask(2, agent.CodeReview, 5),
			},
			available: map[agent.Type]int{agent.CodeReview: 2},
			want:      [][]string{{"a", "b"}, {"c"}},
		},
		{
			name: "overflow closes group for other types too",
			ready: []*Task{
				readyTask(0, agent.CodeReview, 9),
				readyTask(1, agent.CodeReview, 8),
				readyTask(2, agent.Documentation, 7),
			},
			available: map[agent.Type]int{agent.CodeReview: 1, agent.Documentation: 1},
			want:      [][]string{{"a"}, {"b", "c"}},
		},
		{
			name: "zero capacity becomes a singleton",
			ready: []*Task{
				readyTask(0, agent.CodeReview, 9),
				readyTask(1, agent.Deployment, 8),
				readyTask(2, agent.SecurityScan, 7),
			},
			available: map[agent.Type]int{agent.CodeReview: 1, agent.SecurityScan: 1},
			want:      [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "negative capacity treated as zero",
			ready: []*Task{
				readyTask(0, agent.Monitoring, 5),
				readyTask(1, agent.Monitoring, 5),
			},
			available: map[agent.Type]int{agent.Monitoring: -1},
			want:      [][]string{{"a"}, {"b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := groupIDs(GroupForExecution(tt.ready, tt.available))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d groups %v, want %v", len(got), got, tt.want)
			}
			for i := range got {
				if len(got[i]) != len(tt.want[i]) {
					t.Fatalf("group %d = %v, want %v", i, got[i], tt.want[i])
				}
				for j := range got[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("group %d = %v, want %v", i, got[i], tt.want[i])
						break
					}
				}
			}
		})
	}
}

// Every ready task appears exactly once and no group exceeds a positive capacity.
func TestGroupForExecution_CoversEveryTask(t *testing.T) {
	types := agent.AllTypes()
	var ready []*Task
	for i := 0; i < 40; i++ {
		ready = append(ready, &Task{
			ID:        string(rune('A' + i)),
			Index:     i,
			AgentType: types[i%len(types)],
			Priority:  i % 7,
		})
	}
	available := map[agent.Type]int{
		agent.CodeReview:     3,
		agent.SecurityScan:   2,
		agent.TestGeneration: 2,
		agent.Documentation:  1,
		agent.Deployment:     2,
	}

	seen := make(map[string]int)
	for _, group := range GroupForExecution(ready, available) {
		perType := make(map[agent.Type]int)
		for _, task := range group {
			seen[task.ID]++
			perType[task.AgentType]++
		}
		for typ, n := range perType {
			if avail := available[typ]; avail > 0 && n > avail {
				t.Errorf("group has %d %s tasks, capacity %d", n, typ, avail)
			}
			if available[typ] <= 0 && len(group) != 1 {
				t.Errorf("zero-capacity %s task shares a group of %d", typ, len(group))
			}
		}
	}
	if len(seen) != len(ready) {
		t.Fatalf("expected %d tasks grouped, got %d", len(ready), len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("task %s grouped %d times", id, n)
		}
	}
}

func TestGroupForExecution_DoesNotReorderInput(t *testing.T) {
	ready := []*Task{
		readyTask(0, agent.CodeReview, 1),
		readyTask(1, agent.CodeReview, 9),
	}
	_ = GroupForExecution(ready, map[agent.Type]int{agent.CodeReview: 2})
	if ready[0].ID != "a" || ready[1].ID != "b" {
		t.Error("input slice was reordered")
	}
}
