package strategy

import (
	"math"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

// OrderBookSkew is the stateless book-imbalance strategy: when the summed
// top-of-book bid volume dominates the ask volume the book is skewed long,
// and vice versa. A wide spread suppresses the signal entirely.
type OrderBookSkew struct{}

// NewOrderBookSkew constructs the strategy.
func NewOrderBookSkew() *OrderBookSkew {
	return &OrderBookSkew{}
}

func (s *OrderBookSkew) ID() string             { return IDOrderBookSkew }
func (s *OrderBookSkew) Name() string           { return "Order Book Skew" }
func (s *OrderBookSkew) Kind() schema.StreamKind { return schema.StreamDepth }

// OnDepth evaluates one snapshot and returns at most one signal.
func (s *OrderBookSkew) OnDepth(depth *schema.DepthUpdate, params Params) (*schema.Signal, error) {
	topLevels := params.Int("top_levels", 5)
	buyThreshold := params.Float("buy_threshold", 1.2)
	sellThreshold := params.Float("sell_threshold", 0.8)
	minSpreadPercent := params.Float("min_spread_percent", 0.1)
	baseConfidence := params.Float("base_confidence", 0.70)

	bidVolume := sumQuantities(depth.Bids, topLevels)
	askVolume := sumQuantities(depth.Asks, topLevels)
	if askVolume == 0 {
		return nil, nil
	}
	ratio := bidVolume / askVolume

	spreadPercent := depth.SpreadPercent()
	if spreadPercent > minSpreadPercent {
		return nil, nil
	}

	var action schema.SignalAction
	var price float64
	var distance float64
	switch {
	case ratio > buyThreshold:
		action = schema.ActionOpenLong
		price = depth.BestBid()
		distance = ratio - buyThreshold
	case ratio < sellThreshold:
		action = schema.ActionOpenShort
		price = depth.BestAsk()
		distance = sellThreshold - ratio
	default:
		return nil, nil
	}

	score := math.Min(0.95, baseConfidence+distance*0.5)
	return &schema.Signal{
		StrategyID: s.ID(),
		Symbol:     depth.Symbol,
		Action:     action,
		Confidence: schema.ConfidenceScore(score).Band(),
		Score:      score,
		Price:      price,
		Timestamp:  depth.Timestamp(),
		Indicators: map[string]any{
			"bid_volume":     bidVolume,
			"ask_volume":     askVolume,
			"ratio":          ratio,
			"spread_percent": spreadPercent,
		},
		Metadata: nil,
	}, nil
}

func sumQuantities(levels []schema.PriceLevel, top int) float64 {
	if top > len(levels) {
		top = len(levels)
	}
	var sum float64
	for _, level := range levels[:top] {
		sum += level.QuantityFloat()
	}
	return sum
}
