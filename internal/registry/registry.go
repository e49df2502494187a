package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aristath/agentflow/internal/agent"
)

// Capacity is a point-in-time view of one agent type's resource ledger.
type Capacity struct {
	Type      agent.Type
	Total     int // max concurrent executions
	Current   int // in-flight executions
	Healthy   bool
	Instances []string // named instances serving this type
}

// Available returns Total-Current, floored at zero.
func (c Capacity) Available() int {
	return max(0, c.Total-c.Current)
}

type ledger struct {
	total     int
	current   int
	healthy   bool
	instances []string
	next      int // round-robin cursor into instances
}

// HealthChangeFunc is called after a type's healthy flag flips.
type HealthChangeFunc func(t agent.Type, healthy bool)

// Registry tracks per-type capacity and load. All methods are safe for
// concurrent use. A Registry is constructed once and passed to the runner.
type Registry struct {
	mu       sync.Mutex
	ledgers  map[agent.Type]*ledger
	freed    chan struct{} // closed and replaced whenever a slot may have opened
	logger   *slog.Logger
	onHealth HealthChangeFunc

	monitorMu sync.Mutex
	stop      context.CancelFunc
	done      chan struct{}
}

// New creates an empty registry. logger may be nil.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		ledgers: make(map[agent.Type]*ledger),
		freed:   make(chan struct{}),
		logger:  logger,
	}
}

// OnHealthChange installs a callback for health transitions. Must be set
// before the registry is shared.
func (r *Registry) OnHealthChange(fn HealthChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHealth = fn
}

// Register sets the total capacity and instances for t. Re-registering a
// type keeps its in-flight count.
func (r *Registry) Register(t agent.Type, total int, instances ...string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", agent.ErrUnknownType, uint8(t))
	}
	if total < 0 {
		return fmt.Errorf("negative capacity %d for agent type %s", total, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[t]
	if !ok {
		l = &ledger{healthy: true}
		r.ledgers[t] = l
	}
	l.total = total
	l.instances = append([]string(nil), instances...)
	l.next = 0
	r.broadcastLocked()
	return nil
}

// broadcastLocked wakes every Reserve waiting for a slot. Caller holds r.mu.
func (r *Registry) broadcastLocked() {
	close(r.freed)
	r.freed = make(chan struct{})
}

// ledgerFor returns the ledger for t, creating a zero-capacity one for types
// that were never registered. Caller holds r.mu.
func (r *Registry) ledgerFor(t agent.Type) *ledger {
	l, ok := r.ledgers[t]
	if !ok {
		l = &ledger{healthy: true}
		r.ledgers[t] = l
	}
	return l
}

// Reserve blocks until t has a free slot, records one in-flight execution
// and returns the name of the instance assigned to it. The check and the
// increment happen under one lock, so runners sharing the registry never
// push Current past Total. A type with Total < 1 admits one execution at a
// time so its tasks still make progress; that dispatch is logged.
//
// Reserve returns ctx.Err() if ctx ends while waiting. Every successful
// Reserve must be paired with one Release.
func (r *Registry) Reserve(ctx context.Context, t agent.Type) (string, error) {
	for {
		r.mu.Lock()
		l := r.ledgerFor(t)
		if l.current < max(l.total, 1) {
			inst := r.takeLocked(t, l)
			r.mu.Unlock()
			return inst, nil
		}
		wait := r.freed
		r.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// takeLocked records one execution on l and picks its instance round-robin.
// Caller holds r.mu.
func (r *Registry) takeLocked(t agent.Type, l *ledger) string {
	l.current++
	if l.current > l.total {
		r.logger.Warn("agent type over capacity", "agent_type", t.String(), "current", l.current, "total", l.total)
	}

	if len(l.instances) == 0 {
		return t.String()
	}
	inst := l.instances[l.next%len(l.instances)]
	l.next++
	return inst
}

// Release records the end of one in-flight execution for t.
func (r *Registry) Release(t agent.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.ledgerFor(t)
	if l.current == 0 {
		r.logger.Error("release without matching acquire", "agent_type", t.String())
		return
	}
	l.current--
	r.broadcastLocked()
}

// Get returns the capacity view for t.
func (r *Registry) Get(t agent.Type) (Capacity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.ledgers[t]
	if !ok {
		return Capacity{}, false
	}
	return l.view(t), true
}

// Snapshot returns every ledger, sorted by type.
func (r *Registry) Snapshot() []Capacity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Capacity, 0, len(r.ledgers))
	for t, l := range r.ledgers {
		out = append(out, l.view(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Available returns max(0, total-current) for every known type.
// Unregistered types are absent, which schedulers treat as zero.
func (r *Registry) Available() map[agent.Type]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[agent.Type]int, len(r.ledgers))
	for t, l := range r.ledgers {
		out[t] = max(0, l.total-l.current)
	}
	return out
}

// Utilization returns current/total per type at the moment of the call
// (0 when total is 0).
func (r *Registry) Utilization() map[agent.Type]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[agent.Type]float64, len(r.ledgers))
	for t, l := range r.ledgers {
		if l.total > 0 {
			out[t] = float64(l.current) / float64(l.total)
		} else {
			out[t] = 0
		}
	}
	return out
}

// SetHealthy updates the health flag for t and notifies the health callback
// when it changes.
func (r *Registry) SetHealthy(t agent.Type, healthy bool) {
	r.mu.Lock()
	l := r.ledgerFor(t)
	changed := l.healthy != healthy
	l.healthy = healthy
	fn := r.onHealth
	r.mu.Unlock()

	if !changed {
		return
	}
	if healthy {
		r.logger.Info("agent type recovered", "agent_type", t.String())
	} else {
		r.logger.Warn("agent type unhealthy", "agent_type", t.String())
	}
	if fn != nil {
		fn(t, healthy)
	}
}

func (l *ledger) view(t agent.Type) Capacity {
	return Capacity{
		Type:      t,
		Total:     l.total,
		Current:   l.current,
		Healthy:   l.healthy,
		Instances: append([]string(nil), l.instances...),
	}
}
