package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

type pricePoint struct {
	ts    time.Time
	price float64
}

// TickerVelocity measures the rate of price change, in percent per minute,
// over a sliding per-symbol window of ticker observations.
type TickerVelocity struct {
	mu     sync.Mutex
	points map[string][]pricePoint
}

// NewTickerVelocity constructs the strategy with empty windows.
func NewTickerVelocity() *TickerVelocity {
	return &TickerVelocity{
		mu:     sync.Mutex{},
		points: make(map[string][]pricePoint),
	}
}

func (s *TickerVelocity) ID() string              { return IDTickerVelocity }
func (s *TickerVelocity) Name() string            { return "Ticker Velocity" }
func (s *TickerVelocity) Kind() schema.StreamKind { return schema.StreamTicker }

// OnTicker evaluates one update and returns at most one signal.
func (s *TickerVelocity) OnTicker(ticker *schema.TickerData, params Params) (*schema.Signal, error) {
	window := time.Duration(params.Int("time_window", 60)) * time.Second
	buyThreshold := params.Float("buy_threshold", 0.5)
	sellThreshold := params.Float("sell_threshold", -0.5)
	minPriceChange := params.Float("min_price_change", 0.1)

	price := ticker.LastPriceFloat()
	if price <= 0 {
		return nil, nil
	}
	now := ticker.Timestamp()

	s.mu.Lock()
	points := append(s.points[ticker.Symbol], pricePoint{ts: now, price: price})
	cutoff := now.Add(-window)
	for len(points) > 0 && points[0].ts.Before(cutoff) {
		points = points[1:]
	}
	s.points[ticker.Symbol] = points
	oldest := points[0]
	count := len(points)
	s.mu.Unlock()

	if count < 2 {
		return nil, nil
	}
	elapsedMinutes := now.Sub(oldest.ts).Minutes()
	if elapsedMinutes <= 0 || oldest.price <= 0 {
		return nil, nil
	}

	changePercent := (price - oldest.price) / oldest.price * 100
	if math.Abs(changePercent) < minPriceChange {
		return nil, nil
	}
	velocity := changePercent / elapsedMinutes

	var action schema.SignalAction
	switch {
	case velocity > buyThreshold:
		action = schema.ActionOpenLong
	case velocity < sellThreshold:
		action = schema.ActionOpenShort
	default:
		return nil, nil
	}

	score := math.Min(0.95, 0.6+math.Abs(velocity)/10)
	return &schema.Signal{
		StrategyID: s.ID(),
		Symbol:     ticker.Symbol,
		Action:     action,
		Confidence: schema.ConfidenceScore(score).Band(),
		Score:      score,
		Price:      price,
		Timestamp:  now,
		Indicators: map[string]any{
			"velocity":        velocity,
			"change_percent":  changePercent,
			"elapsed_minutes": elapsedMinutes,
			"window_samples":  count,
		},
		Metadata: nil,
	}, nil
}
