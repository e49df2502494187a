package agent

import (
	"context"
	"fmt"
	"time"
)

// simulatedDurations holds the midpoint execution time used for each type.
var simulatedDurations = map[Type]time.Duration{
	CodeReview:     3500 * time.Millisecond,
	SecurityScan:   5500 * time.Millisecond,
	TestGeneration: 7 * time.Second,
	Documentation:  2 * time.Second,
	Deployment:     4 * time.Second,
}

const defaultSimulatedDuration = 2 * time.Second

// Simulated is a stand-in capability that sleeps for a per-type duration
// and reports a canned success payload. Used by the CLI when no command is
// configured for a type.
type Simulated struct {
	Type  Type
	Scale float64 // multiplier applied to the base duration; <= 0 means 1
}

// NewSimulated returns a Simulated capability for t.
func NewSimulated(t Type, scale float64) *Simulated {
	return &Simulated{Type: t, Scale: scale}
}

// Duration returns the scaled time Invoke will take.
func (s *Simulated) Duration() time.Duration {
	base, ok := simulatedDurations[s.Type]
	if !ok {
		base = defaultSimulatedDuration
	}
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	return time.Duration(float64(base) * scale)
}

// Invoke sleeps for Duration or until ctx is done.
func (s *Simulated) Invoke(ctx context.Context, payload Payload) (Payload, error) {
	d := s.Duration()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return Payload{
		"success":        true,
		"agent_type":     s.Type.String(),
		"execution_time": d.Seconds(),
		"data":           fmt.Sprintf("Processed by %s agent", s.Type),
	}, nil
}
