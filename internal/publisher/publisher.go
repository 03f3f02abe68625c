// Package publisher delivers adapted trade orders to the outbound bus topic
// with bounded retries, rate limiting, and a circuit breaker.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/breaker"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/schema"
	"github.com/petrosa/realtime-strategies/internal/telemetry"
)

// Bus is the minimal outbound surface. *nats.Conn satisfies it.
type Bus interface {
	Publish(subject string, data []byte) error
}

// Settings bounds the delivery behaviour.
type Settings struct {
	Topic          string
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
	RatePerSecond  float64
	Burst          int
}

// Publisher serializes orders and pushes them onto the bus. Delivery is
// best effort: an order that exhausts its retries is dropped and counted,
// never requeued.
type Publisher struct {
	bus      Bus
	settings Settings
	limiter  *rate.Limiter
	brk      *breaker.Breaker
	stats    *observability.EngineStats
}

// New constructs a publisher. A nil breaker disables breaker protection and
// a zero rate disables throttling.
func New(bus Bus, settings Settings, brk *breaker.Breaker, stats *observability.EngineStats) *Publisher {
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	if settings.RetryDelay <= 0 {
		settings.RetryDelay = time.Second
	}
	var limiter *rate.Limiter
	if settings.RatePerSecond > 0 {
		burst := settings.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(settings.RatePerSecond), burst)
	}
	return &Publisher{
		bus:      bus,
		settings: settings,
		limiter:  limiter,
		brk:      brk,
		stats:    stats,
	}
}

// Publish validates, serializes, and delivers one order. Transient failures
// retry up to MaxRetries with a fixed delay; when the budget is exhausted the
// order is dropped and the drop counted.
func (p *Publisher) Publish(ctx context.Context, order *schema.TradeOrder) error {
	if order == nil {
		return errs.New("publisher", errs.CodeInvalid, errs.WithMessage("nil order"))
	}
	if err := order.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return errs.New("publisher", errs.CodeInternal,
			errs.WithMessage("marshal order"),
			errs.WithCause(err),
		)
	}

	if p.settings.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.PublishTimeout)
		defer cancel()
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return errs.New("publisher", errs.CodeTimeout,
				errs.WithMessage("rate limit wait aborted"),
				errs.WithCause(err),
			)
		}
	}

	delay := backoff.NewConstantBackOff(p.settings.RetryDelay)
	attempts := p.settings.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sleep := delay.NextBackOff()
			if sleep == backoff.Stop {
				break
			}
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = attempts
			case <-time.After(sleep):
			}
			if lastErr != nil {
				break
			}
		}

		lastErr = p.attempt(payload)
		if lastErr == nil {
			if p.stats != nil {
				p.stats.RecordPublished()
			}
			observability.Telemetry().IncCounter(telemetry.MetricSignalsPublished, 1, map[string]string{
				"strategy": order.Strategy,
				"symbol":   order.Symbol,
			})
			return nil
		}

		if p.stats != nil {
			p.stats.RecordPublishError()
		}
		observability.Telemetry().IncCounter(telemetry.MetricPublishErrors, 1, nil)
		observability.Log().Warn("publish attempt failed",
			observability.Field{Key: "attempt", Value: attempt + 1},
			observability.Field{Key: "strategy_id", Value: order.StrategyID},
			observability.Field{Key: "error", Value: lastErr.Error()},
		)
		if breakerOpen(lastErr) {
			break
		}
	}

	if p.stats != nil {
		p.stats.RecordPublishDrop()
	}
	observability.Telemetry().IncCounter(telemetry.MetricPublishDrops, 1, nil)
	observability.Log().Error("order dropped after retries",
		observability.Field{Key: "strategy_id", Value: order.StrategyID},
		observability.Field{Key: "symbol", Value: order.Symbol},
		observability.Field{Key: "error", Value: lastErr.Error()},
	)
	return errs.New("publisher", errs.CodeUnavailable,
		errs.WithMessage("delivery failed"),
		errs.WithField("strategy_id", order.StrategyID),
		errs.WithCause(lastErr),
	)
}

func (p *Publisher) attempt(payload []byte) error {
	publish := func() error {
		return p.bus.Publish(p.settings.Topic, payload)
	}
	if p.brk == nil {
		return publish()
	}
	return p.brk.Do(publish)
}

// breakerOpen reports whether the error came from an open breaker, in which
// case further attempts within the retry budget are pointless.
func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
