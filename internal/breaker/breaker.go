// Package breaker wraps circuit breakers around the engine's external
// dependencies: the outbound bus and the config store.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/telemetry"
)

// Settings controls trip and recovery behavior.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold uint32
	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration
}

// Breaker guards an external dependency with open/half-open/closed states.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New constructs a named breaker. Zero settings fall back to five consecutive
// failures and a sixty second recovery window.
func New(name string, settings Settings) *Breaker {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := settings.RecoveryTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.Log().Warn("circuit breaker state change",
				observability.Field{Key: "breaker", Value: name},
				observability.Field{Key: "from", Value: from.String()},
				observability.Field{Key: "to", Value: to.String()},
			)
			observability.Telemetry().SetGauge(telemetry.MetricBreakerState, stateValue(to), map[string]string{"breaker": name})
		},
		IsSuccessful: nil,
	})
	return &Breaker{name: name, cb: cb}
}

// Do runs fn through the breaker. An open breaker returns an unavailable
// error without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errs.New("breaker", errs.CodeUnavailable,
			errs.WithMessage("circuit breaker open"),
			errs.WithField("breaker", b.name),
			errs.WithCause(err),
		)
	}
	return err
}

// Name returns the breaker's identifier.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state as a lower-case string.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "open"
	}
}

// Counts returns the breaker's rolling request counts.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Open reports whether calls are currently rejected outright.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
