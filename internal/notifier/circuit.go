package notifier

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig mirrors the closed/open/half_open tuning knobs
// used across the system's resilience wrappers (SPEC_FULL.md §4.3),
// generalized here from a single-method notifier guard to any
// Notifier backend (redis, or a future webhook sink).
type CircuitBreakerConfig struct {
	FailureThreshold uint32
	Cooldown         time.Duration
	HalfOpenMaxCalls uint32
	Timeout          time.Duration
}

// CircuitBreakerNotifier wraps a Notifier so a struggling backend
// (e.g. a redis outage) fails fast instead of blocking every
// publishing worker on a successor of timeouts.
type CircuitBreakerNotifier struct {
	inner   Notifier
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewCircuitBreakerNotifier wraps inner with a gobreaker instance
// tripped after cfg.FailureThreshold consecutive failures.
func NewCircuitBreakerNotifier(inner Notifier, cfg CircuitBreakerConfig) *CircuitBreakerNotifier {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}

	return &CircuitBreakerNotifier{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: cfg.Timeout,
	}
}

// Publish implements Notifier, gating calls through the breaker.
func (n *CircuitBreakerNotifier) Publish(ctx context.Context, projectID string, kind EventKind, payload any) error {
	_, err := n.breaker.Execute(func() (any, error) {
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return nil, n.inner.Publish(sendCtx, projectID, kind, payload)
	})
	return err
}

// Subscribe implements Notifier by delegating directly: subscription
// is a one-time setup call, not a per-event operation the breaker
// needs to guard.
func (n *CircuitBreakerNotifier) Subscribe(projectID string) (<-chan Event, func()) {
	return n.inner.Subscribe(projectID)
}
