package scheduler

import (
	"context"
	"sort"
	"sync"
)

// ResourceLockManager provides per-resource mutual exclusion between tasks
// running in the same wavefront. Each resource name gets its own one-slot
// channel, so tasks touching different resources proceed concurrently and
// a waiter can give up when its context ends.
type ResourceLockManager struct {
	mu    sync.Mutex               // Guards the locks map itself
	locks map[string]chan struct{} // Per-resource slots
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]chan struct{}),
	}
}

func (r *ResourceLockManager) slot(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[name] = ch
	}
	return ch
}

// Lock acquires the named resource or returns ctx.Err().
func (r *ResourceLockManager) Lock(ctx context.Context, name string) error {
	select {
	case r.slot(name) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the named resource. Unlocking a free resource is a no-op.
func (r *ResourceLockManager) Unlock(name string) {
	select {
	case <-r.slot(name):
	default:
	}
}

// LockAll acquires every named resource in lexicographic order, which rules
// out lock-order deadlocks between tasks. On failure nothing stays held.
func (r *ResourceLockManager) LockAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	sorted := sortedUnique(names)
	for i, name := range sorted {
		if err := r.Lock(ctx, name); err != nil {
			for j := i - 1; j >= 0; j-- {
				r.Unlock(sorted[j])
			}
			return err
		}
	}
	return nil
}

// UnlockAll releases every named resource in reverse order.
func (r *ResourceLockManager) UnlockAll(names []string) {
	if len(names) == 0 {
		return
	}

	sorted := sortedUnique(names)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

func sortedUnique(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	out := make([]string, 0, len(sorted))
	for _, name := range sorted {
		if len(out) == 0 || out[len(out)-1] != name {
			out = append(out, name)
		}
	}
	return out
}
