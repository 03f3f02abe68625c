package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrosa/realtime-strategies/internal/breaker"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/schema"
)

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
	subjects []string
	failures int
}

func (f *fakeBus) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("bus down")
	}
	f.subjects = append(f.subjects, subject)
	copied := make([]byte, len(data))
	copy(copied, data)
	f.payloads = append(f.payloads, copied)
	return nil
}

func (f *fakeBus) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func testOrder() *schema.TradeOrder {
	return &schema.TradeOrder{
		ID:           "a2b9c1d4-0000-0000-0000-000000000001",
		SignalID:     "a2b9c1d4-0000-0000-0000-000000000002",
		StrategyID:   "orderbook_skew_BTCUSDT",
		Symbol:       "BTCUSDT",
		SignalType:   "buy",
		Action:       schema.OrderBuy,
		Confidence:   0.82,
		Strength:     "strong",
		Price:        50000,
		Quantity:     0.00164,
		CurrentPrice: 50000,
		Source:       "realtime-strategies",
		Strategy:     "orderbook_skew",
		Metadata:     map[string]any{"config_source": "default"},
		StopLoss:     49000,
		TakeProfit:   52500,
		StopLossPct:  0.02,
		TakeProfPct:  0.05,
		OrderType:    "market",
		TimeInForce:  "GTC",
		Timeframe:    "realtime",
		Timestamp:    time.Now().UTC(),
	}
}

func settings() Settings {
	return Settings{
		Topic:          "signals.trading",
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		PublishTimeout: time.Second,
		RatePerSecond:  0,
		Burst:          0,
	}
}

func TestPublishDeliversWirePayload(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 0}
	stats := observability.NewEngineStats()
	p := New(bus, settings(), nil, stats)

	if err := p.Publish(context.Background(), testOrder()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if bus.published() != 1 {
		t.Fatalf("expected one delivery, got %d", bus.published())
	}
	if bus.subjects[0] != "signals.trading" {
		t.Fatalf("unexpected subject %q", bus.subjects[0])
	}

	var decoded map[string]any
	if err := json.Unmarshal(bus.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, key := range []string{
		"id", "signal_id", "strategy_id", "symbol", "signal_type", "action",
		"confidence", "strength", "price", "quantity", "current_price",
		"source", "strategy", "metadata", "stop_loss", "take_profit",
		"stop_loss_pct", "take_profit_pct", "order_type", "time_in_force",
		"timeframe", "timestamp",
	} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("wire payload missing %q: %v", key, decoded)
		}
	}
	if decoded["strategy_id"] != "orderbook_skew_BTCUSDT" {
		t.Fatalf("unexpected strategy_id %v", decoded["strategy_id"])
	}
	if stats.Snapshot().SignalsPublished != 1 {
		t.Fatalf("published counter not incremented: %+v", stats.Snapshot())
	}
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 2}
	stats := observability.NewEngineStats()
	p := New(bus, settings(), nil, stats)

	if err := p.Publish(context.Background(), testOrder()); err != nil {
		t.Fatalf("publish should recover within retry budget: %v", err)
	}
	snap := stats.Snapshot()
	if snap.SignalsPublished != 1 || snap.PublishErrors != 2 || snap.PublishDrops != 0 {
		t.Fatalf("unexpected counters %+v", snap)
	}
}

func TestPublishDropsAfterRetryBudget(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 10}
	stats := observability.NewEngineStats()
	p := New(bus, settings(), nil, stats)

	err := p.Publish(context.Background(), testOrder())
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	snap := stats.Snapshot()
	if snap.PublishDrops != 1 {
		t.Fatalf("expected one drop, got %+v", snap)
	}
	// Initial attempt plus three retries.
	if snap.PublishErrors != 4 {
		t.Fatalf("expected four attempt failures, got %+v", snap)
	}
	if bus.published() != 0 {
		t.Fatal("nothing should have been delivered")
	}
}

func TestPublishStopsWhenBreakerOpens(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 100}
	stats := observability.NewEngineStats()
	brk := breaker.New("publish-test", breaker.Settings{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	cfg := settings()
	cfg.MaxRetries = 10
	p := New(bus, cfg, brk, stats)

	if err := p.Publish(context.Background(), testOrder()); err == nil {
		t.Fatal("expected failure")
	}
	if !brk.Open() {
		t.Fatal("breaker should have opened")
	}
	// Two real failures trip the breaker; the next attempt is rejected
	// without touching the bus and the retry loop stops.
	snap := stats.Snapshot()
	if snap.PublishErrors != 3 {
		t.Fatalf("expected three attempt failures, got %+v", snap)
	}
	if snap.PublishDrops != 1 {
		t.Fatalf("expected one drop, got %+v", snap)
	}
}

func TestPublishRejectsInvalidOrder(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 0}
	p := New(bus, settings(), nil, nil)

	order := testOrder()
	order.Confidence = 1.5
	if err := p.Publish(context.Background(), order); err == nil {
		t.Fatal("expected validation error")
	}
	if err := p.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil order")
	}
	if bus.published() != 0 {
		t.Fatal("invalid orders must not reach the bus")
	}
}

func TestPublishHonoursContextCancellation(t *testing.T) {
	bus := &fakeBus{payloads: nil, subjects: nil, failures: 100}
	cfg := settings()
	cfg.RetryDelay = time.Second
	p := New(bus, cfg, nil, observability.NewEngineStats())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := p.Publish(ctx, testOrder()); err == nil {
		t.Fatal("expected failure")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancelled context must short-circuit the retry delay")
	}
}
