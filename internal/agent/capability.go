package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Capability performs one unit of work for an agent type.
// Implementations must honor ctx cancellation; the task deadline travels in ctx.
type Capability interface {
	Invoke(ctx context.Context, payload Payload) (Payload, error)
}

// CapabilityFunc adapts a plain function to the Capability interface.
type CapabilityFunc func(ctx context.Context, payload Payload) (Payload, error)

// Invoke calls f(ctx, payload).
func (f CapabilityFunc) Invoke(ctx context.Context, payload Payload) (Payload, error) {
	return f(ctx, payload)
}

// ErrUnknownCapability is returned when no capability is registered for a type.
var ErrUnknownCapability = errors.New("no capability registered for agent type")

// Capabilities maps each agent type to the capability that serves it.
type Capabilities map[Type]Capability

// Register binds c to t. Invalid types are rejected so the table can only
// ever be keyed by declared agent types.
func (cs Capabilities) Register(t Type, c Capability) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if c == nil {
		return fmt.Errorf("nil capability for agent type %s", t)
	}
	cs[t] = c
	return nil
}

// Lookup returns the capability for t.
func (cs Capabilities) Lookup(t Type) (Capability, error) {
	c, ok := cs[t]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, t)
	}
	return c, nil
}

// Require verifies that every type in types has a registered capability.
// Missing types are reported together, sorted.
func (cs Capabilities) Require(types []Type) error {
	seen := make(map[Type]bool)
	var missing []Type
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		if _, ok := cs[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return fmt.Errorf("%w: %v", ErrUnknownCapability, missing)
}
