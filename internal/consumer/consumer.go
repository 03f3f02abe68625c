// Package consumer ingests raw market events from the bus, runs them through
// the strategy registry, and hands generated signals to the adapter and
// publisher. One consumer processes its subscription single threaded, so the
// strategies' per-symbol state never sees concurrent dispatch.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/adapter"
	"github.com/petrosa/realtime-strategies/internal/breaker"
	"github.com/petrosa/realtime-strategies/internal/configstore"
	"github.com/petrosa/realtime-strategies/internal/depth"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/schema"
	"github.com/petrosa/realtime-strategies/internal/strategy"
	"github.com/petrosa/realtime-strategies/internal/telemetry"
)

// Bus is the inbound subscription surface. *nats.Conn satisfies it.
type Bus interface {
	QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Sink receives adapted orders. *publisher.Publisher satisfies it.
type Sink interface {
	Publish(ctx context.Context, order *schema.TradeOrder) error
}

// ConfigSource resolves strategy parameters at dispatch time.
// *configstore.Manager satisfies it.
type ConfigSource interface {
	Get(ctx context.Context, strategyID, symbol string) configstore.Resolved
}

// Settings identifies the subscription.
type Settings struct {
	Topic      string
	QueueGroup string
}

// Consumer dispatches market events to the analyzer and the registered
// strategies.
type Consumer struct {
	settings Settings
	registry *strategy.Registry
	analyzer *depth.Analyzer
	configs  ConfigSource
	adapter  *adapter.Adapter
	sink     Sink
	stats    *observability.EngineStats
	breakers map[string]*breaker.Breaker
	sub      *nats.Subscription
}

// New constructs a consumer. One breaker guards each registered strategy so a
// crashing strategy cannot starve the rest of the pipeline.
func New(settings Settings, registry *strategy.Registry, analyzer *depth.Analyzer, configs ConfigSource, adapt *adapter.Adapter, sink Sink, stats *observability.EngineStats, breakerSettings breaker.Settings) *Consumer {
	breakers := make(map[string]*breaker.Breaker, len(registry.All()))
	for _, s := range registry.All() {
		breakers[s.ID()] = breaker.New("strategy:"+s.ID(), breakerSettings)
	}
	return &Consumer{
		settings: settings,
		registry: registry,
		analyzer: analyzer,
		configs:  configs,
		adapter:  adapt,
		sink:     sink,
		stats:    stats,
		breakers: breakers,
		sub:      nil,
	}
}

// Start subscribes to the configured topic inside the queue group. Messages
// arrive on a single goroutine per subscription.
func (c *Consumer) Start(ctx context.Context, bus Bus) error {
	sub, err := bus.QueueSubscribe(c.settings.Topic, c.settings.QueueGroup, func(msg *nats.Msg) {
		c.Handle(ctx, msg.Data)
	})
	if err != nil {
		return errs.New("consumer", errs.CodeNetwork,
			errs.WithMessage("queue subscribe failed"),
			errs.WithField("topic", c.settings.Topic),
			errs.WithCause(err),
		)
	}
	c.sub = sub
	observability.Log().Info("consumer subscribed",
		observability.Field{Key: "topic", Value: c.settings.Topic},
		observability.Field{Key: "queue_group", Value: c.settings.QueueGroup},
	)
	return nil
}

// Stop drains the subscription so in-flight messages finish before shutdown.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Drain(); err != nil {
		return errs.New("consumer", errs.CodeNetwork,
			errs.WithMessage("drain failed"),
			errs.WithCause(err),
		)
	}
	return nil
}

// BreakerStates reports the per-strategy breaker states for the health
// surface and the heartbeat.
func (c *Consumer) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.breakers))
	for id, brk := range c.breakers {
		out[id] = brk.State()
	}
	return out
}

// Handle processes one raw bus payload end to end. Malformed input is counted
// and skipped, never fatal.
func (c *Consumer) Handle(ctx context.Context, data []byte) {
	if c.stats != nil {
		c.stats.RecordMessage()
	}

	msg, err := schema.ParseMarketMessage(data)
	if err != nil {
		if c.stats != nil {
			c.stats.RecordParseError()
		}
		observability.Telemetry().IncCounter(telemetry.MetricParseErrors, 1, nil)
		observability.Log().Debug("discarding malformed message",
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	kind := msg.Kind()
	observability.Telemetry().IncCounter(telemetry.MetricMessagesProcessed, 1, map[string]string{"stream_kind": string(kind)})

	switch kind {
	case schema.StreamDepth:
		c.handleDepth(ctx, msg)
	case schema.StreamTrade:
		c.handleTrade(ctx, msg)
	case schema.StreamTicker:
		c.handleTicker(ctx, msg)
	default:
		if c.stats != nil {
			c.stats.RecordUnknownStream()
		}
		observability.Telemetry().IncCounter(telemetry.MetricUnknownStreams, 1, nil)
		observability.Log().Debug("unknown stream",
			observability.Field{Key: "stream", Value: msg.Stream},
		)
	}
}

func (c *Consumer) handleDepth(ctx context.Context, msg *schema.MarketMessage) {
	event, err := msg.DecodeDepth()
	if err != nil {
		c.recordValidationError(err)
		return
	}
	// The analyzer sees every depth update before any strategy runs, so
	// strategies reading its metrics observe the current book.
	if c.analyzer != nil {
		c.analyzer.OnDepth(event)
	}
	for _, s := range c.registry.ForKind(schema.StreamDepth) {
		ds, ok := s.(strategy.DepthStrategy)
		if !ok {
			continue
		}
		c.run(ctx, s.ID(), event.Symbol, func(params strategy.Params) (*schema.Signal, error) {
			return ds.OnDepth(event, params)
		})
	}
}

func (c *Consumer) handleTrade(ctx context.Context, msg *schema.MarketMessage) {
	event, err := msg.DecodeTrade()
	if err != nil {
		c.recordValidationError(err)
		return
	}
	for _, s := range c.registry.ForKind(schema.StreamTrade) {
		ts, ok := s.(strategy.TradeStrategy)
		if !ok {
			continue
		}
		c.run(ctx, s.ID(), event.Symbol, func(params strategy.Params) (*schema.Signal, error) {
			return ts.OnTrade(event, params)
		})
	}
}

func (c *Consumer) handleTicker(ctx context.Context, msg *schema.MarketMessage) {
	event, err := msg.DecodeTicker()
	if err != nil {
		c.recordValidationError(err)
		return
	}
	for _, s := range c.registry.ForKind(schema.StreamTicker) {
		ts, ok := s.(strategy.TickerStrategy)
		if !ok {
			continue
		}
		c.run(ctx, s.ID(), event.Symbol, func(params strategy.Params) (*schema.Signal, error) {
			return ts.OnTicker(event, params)
		})
	}
}

func (c *Consumer) recordValidationError(err error) {
	if c.stats != nil {
		c.stats.RecordValidationError()
	}
	observability.Telemetry().IncCounter(telemetry.MetricValidationErrors, 1, nil)
	observability.Log().Debug("discarding invalid event",
		observability.Field{Key: "error", Value: err.Error()},
	)
}

// run executes one strategy against one event: resolve parameters, guard the
// execution with the strategy's breaker, then adapt and publish any signal.
func (c *Consumer) run(ctx context.Context, strategyID, symbol string, invoke func(strategy.Params) (*schema.Signal, error)) {
	resolved := c.configs.Get(ctx, strategyID, symbol)

	var sig *schema.Signal
	started := time.Now()
	err := c.guard(strategyID, func() error {
		var err error
		sig, err = invokeSafely(invoke, resolved.Parameters)
		return err
	})
	elapsed := time.Since(started).Seconds()

	labels := map[string]string{"strategy": strategyID, "symbol": symbol}
	observability.Telemetry().IncCounter(telemetry.MetricStrategyRuns, 1, labels)
	observability.Telemetry().ObserveHistogram(telemetry.MetricStrategyLatency, elapsed, labels)

	if err != nil {
		if c.stats != nil {
			c.stats.RecordStrategyError(strategyID)
		}
		observability.Telemetry().IncCounter(telemetry.MetricStrategyErrors, 1, labels)
		observability.Log().Error("strategy execution failed",
			observability.Field{Key: "strategy_id", Value: strategyID},
			observability.Field{Key: "symbol", Value: symbol},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	if sig == nil {
		return
	}

	if c.stats != nil {
		c.stats.RecordSignal(strategyID)
	}
	observability.Telemetry().IncCounter(telemetry.MetricSignalsGenerated, 1, labels)

	order, err := c.adapter.Adapt(sig, adapter.Provenance{
		Source:     resolved.Source,
		Version:    resolved.Version,
		IsOverride: resolved.IsOverride,
	})
	if err != nil {
		observability.Log().Error("signal adaptation failed",
			observability.Field{Key: "strategy_id", Value: strategyID},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	// Fire and forget: a failed delivery is counted by the publisher and
	// must not block the next event.
	if err := c.sink.Publish(ctx, order); err != nil {
		observability.Log().Warn("signal delivery failed",
			observability.Field{Key: "strategy_id", Value: order.StrategyID},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (c *Consumer) guard(strategyID string, fn func() error) error {
	brk, ok := c.breakers[strategyID]
	if !ok {
		return fn()
	}
	return brk.Do(fn)
}

// invokeSafely converts a strategy panic into an error so one poisoned event
// cannot take the consume loop down.
func invokeSafely(invoke func(strategy.Params) (*schema.Signal, error), params strategy.Params) (sig *schema.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = errs.New("consumer", errs.CodeInternal,
				errs.WithMessage(fmt.Sprintf("strategy panic: %v", r)),
			)
		}
	}()
	return invoke(params)
}
