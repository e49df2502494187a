package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff for a Resilient capability.
type RetryConfig struct {
	MaxAttempts         int           // Total attempts including the first (default 3)
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// HealthFunc is notified when a type's circuit breaker opens (healthy=false)
// or closes again (healthy=true).
type HealthFunc func(t Type, healthy bool)

// BreakerRegistry manages one circuit breaker per agent type.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[Type]*gobreaker.CircuitBreaker
	threshold uint32
	openFor   time.Duration
	onHealth  HealthFunc
	logger    *slog.Logger
}

// NewBreakerRegistry creates a registry whose breakers trip after threshold
// consecutive failures (default 5) and stay open for 30s. onHealth may be nil.
func NewBreakerRegistry(threshold int, onHealth HealthFunc, logger *slog.Logger) *BreakerRegistry {
	if threshold <= 0 {
		threshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers:  make(map[Type]*gobreaker.CircuitBreaker),
		threshold: uint32(threshold),
		openFor:   30 * time.Second,
		onHealth:  onHealth,
		logger:    logger,
	}
}

// Get returns the breaker for t, creating it on first use.
func (r *BreakerRegistry) Get(t Type) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[t]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        t.String(),
		MaxRequests: 3,
		Interval:    0,
		Timeout:     r.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "agent_type", name, "from", from.String(), "to", to.String())
			if r.onHealth == nil {
				return
			}
			switch to {
			case gobreaker.StateOpen:
				r.onHealth(t, false)
			case gobreaker.StateClosed:
				r.onHealth(t, true)
			}
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation and deadlines are not capability faults.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[t] = cb
	return cb
}

// Healthy reports whether t's breaker is not open. Types that never had a
// breaker are healthy.
func (r *BreakerRegistry) Healthy(t Type) bool {
	r.mu.Lock()
	cb, ok := r.breakers[t]
	r.mu.Unlock()
	if !ok {
		return true
	}
	return cb.State() != gobreaker.StateOpen
}

// Resilient decorates a capability with retry and a circuit breaker.
// Retrying is the decorator's concern; the executor itself never retries.
type Resilient struct {
	inner   Capability
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

// NewResilient wraps inner with retry and the breaker for t.
func NewResilient(t Type, inner Capability, breakers *BreakerRegistry, retry RetryConfig) *Resilient {
	return &Resilient{
		inner:   inner,
		breaker: breakers.Get(t),
		retry:   retry,
	}
}

// Invoke calls the wrapped capability, retrying transient failures with
// exponential backoff until attempts are exhausted, the breaker opens, or
// ctx ends.
func (r *Resilient) Invoke(ctx context.Context, payload Payload) (Payload, error) {
	var out Payload

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.Invoke(ctx, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		out, _ = result.(Payload)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor
	policy.MaxElapsedTime = 0 // bounded by attempts and ctx instead

	attempts := r.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(operation, b)
	return out, err
}
