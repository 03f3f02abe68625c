package strategy

import (
	"math"
	"sync"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

// momentumQuantityWindow bounds the trailing average-quantity sample count.
const momentumQuantityWindow = 20

type momentumState struct {
	lastPrice  float64
	quantities []float64
	next       int
	filled     bool
}

func (s *momentumState) averageQuantity() float64 {
	n := len(s.quantities)
	if s.filled {
		n = momentumQuantityWindow
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, q := range s.quantities[:n] {
		sum += q
	}
	return sum / float64(n)
}

func (s *momentumState) record(price, quantity float64) {
	s.lastPrice = price
	if len(s.quantities) < momentumQuantityWindow {
		s.quantities = append(s.quantities, quantity)
		return
	}
	s.filled = true
	s.quantities[s.next] = quantity
	s.next = (s.next + 1) % momentumQuantityWindow
}

// TradeMomentum scores each trade by a weighted blend of price change versus
// the previous trade, quantity relative to the trailing average, and which
// side was the aggressor. The previous price and trailing average live in a
// small per-symbol cache.
type TradeMomentum struct {
	mu    sync.Mutex
	state map[string]*momentumState
}

// NewTradeMomentum constructs the strategy with an empty trailing cache.
func NewTradeMomentum() *TradeMomentum {
	return &TradeMomentum{
		mu:    sync.Mutex{},
		state: make(map[string]*momentumState),
	}
}

func (s *TradeMomentum) ID() string              { return IDTradeMomentum }
func (s *TradeMomentum) Name() string            { return "Trade Momentum" }
func (s *TradeMomentum) Kind() schema.StreamKind { return schema.StreamTrade }

// OnTrade evaluates one trade and returns at most one signal.
func (s *TradeMomentum) OnTrade(trade *schema.TradeData, params Params) (*schema.Signal, error) {
	priceWeight := params.Float("price_weight", 0.4)
	quantityWeight := params.Float("quantity_weight", 0.3)
	makerWeight := params.Float("maker_weight", 0.3)
	buyThreshold := params.Float("buy_threshold", 0.7)
	sellThreshold := params.Float("sell_threshold", -0.7)
	minQuantity := params.Float("min_quantity", 0.001)

	price := trade.PriceFloat()
	quantity := trade.QuantityFloat()
	if quantity < minQuantity || price <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	st, ok := s.state[trade.Symbol]
	if !ok {
		st = &momentumState{lastPrice: 0, quantities: nil, next: 0, filled: false}
		s.state[trade.Symbol] = st
	}
	prevPrice := st.lastPrice
	avgQuantity := st.averageQuantity()
	st.record(price, quantity)
	s.mu.Unlock()

	var priceMomentum float64
	if prevPrice > 0 {
		priceMomentum = (price - prevPrice) / prevPrice
	}
	var quantityScore float64
	if avgQuantity > 0 {
		quantityScore = math.Min(1, quantity/avgQuantity)
	}
	makerScore := 1.0
	if trade.IsBuyerMaker {
		makerScore = -1.0
	}

	momentum := priceWeight*priceMomentum + quantityWeight*quantityScore + makerWeight*makerScore

	var action schema.SignalAction
	switch {
	case momentum > buyThreshold:
		action = schema.ActionOpenLong
	case momentum < sellThreshold:
		action = schema.ActionOpenShort
	default:
		return nil, nil
	}

	score := math.Min(0.95, 0.65+math.Abs(momentum)*0.2)
	return &schema.Signal{
		StrategyID: s.ID(),
		Symbol:     trade.Symbol,
		Action:     action,
		Confidence: schema.ConfidenceScore(score).Band(),
		Score:      score,
		Price:      price,
		Timestamp:  trade.Timestamp(),
		Indicators: map[string]any{
			"momentum":       momentum,
			"price_momentum": priceMomentum,
			"quantity_score": quantityScore,
			"maker_score":    makerScore,
			"quantity":       quantity,
		},
		Metadata: nil,
	}, nil
}
