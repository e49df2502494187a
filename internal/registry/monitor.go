package registry

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/agentflow/internal/agent"
)

// HealthCheck reports whether agent type t is currently healthy.
type HealthCheck func(ctx context.Context, t agent.Type) bool

// ErrMonitorRunning is returned when a health monitor is already active.
var ErrMonitorRunning = errors.New("health monitor already running")

// StartHealthMonitor launches a goroutine that runs check for every known
// type on each tick of interval and records the outcome. The monitor exits
// when ctx is cancelled or Close is called.
func (r *Registry) StartHealthMonitor(ctx context.Context, interval time.Duration, check HealthCheck) error {
	if interval <= 0 {
		return errors.New("health monitor interval must be positive")
	}
	if check == nil {
		return errors.New("nil health check")
	}

	r.monitorMu.Lock()
	defer r.monitorMu.Unlock()

	if r.stop != nil {
		return ErrMonitorRunning
	}

	mctx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	r.done = make(chan struct{})

	go r.monitor(mctx, interval, check, r.done)
	return nil
}

func (r *Registry) monitor(ctx context.Context, interval time.Duration, check HealthCheck, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkAll(ctx, check)
		}
	}
}

func (r *Registry) checkAll(ctx context.Context, check HealthCheck) {
	for _, c := range r.Snapshot() {
		if ctx.Err() != nil {
			return
		}
		healthy := check(ctx, c.Type)
		r.SetHealthy(c.Type, healthy)
		if !healthy {
			r.logger.Warn("agent type failed health check", "agent_type", c.Type.String())
		}
	}
}

// Close stops the health monitor, if running, and waits for it to exit.
// Safe to call multiple times.
func (r *Registry) Close() error {
	r.monitorMu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.monitorMu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done
	return nil
}
