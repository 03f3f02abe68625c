// Package depth computes rolling order book metrics: imbalance, pressure,
// liquidity, spread, and VWAP per symbol, with a bounded pressure history.
package depth

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/schema"
)

const (
	// pressureRingSize bounds the per-symbol pressure history (about 15
	// minutes at one snapshot per second).
	pressureRingSize = 900
	// symbolTTL drops symbols that stop receiving updates.
	symbolTTL = 5 * time.Minute
	// trendSamples is how many recent pressure points feed the trend.
	trendSamples = 10
)

// Metrics is the full per-symbol snapshot computed from one depth event.
type Metrics struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	ImbalanceRatio float64   `json:"imbalance_ratio"`
	BidVolume      float64   `json:"bid_volume"`
	AskVolume      float64   `json:"ask_volume"`
	BuyPressure    float64   `json:"buy_pressure"`
	SellPressure   float64   `json:"sell_pressure"`
	NetPressure    float64   `json:"net_pressure"`
	DepthBidTop5   float64   `json:"depth_bid_top5"`
	DepthAskTop5   float64   `json:"depth_ask_top5"`
	DepthBidTop10  float64   `json:"depth_bid_top10"`
	DepthAskTop10  float64   `json:"depth_ask_top10"`
	BestBid        float64   `json:"best_bid"`
	BestAsk        float64   `json:"best_ask"`
	Spread         float64   `json:"spread"`
	SpreadBps      float64   `json:"spread_bps"`
	MidPrice       float64   `json:"mid_price"`
	VWAPBid        float64   `json:"vwap_bid"`
	VWAPAsk        float64   `json:"vwap_ask"`
	StrongestBid   float64   `json:"strongest_bid_level"`
	StrongestAsk   float64   `json:"strongest_ask_level"`
}

// PressurePoint is one net-pressure observation.
type PressurePoint struct {
	Timestamp   time.Time `json:"timestamp"`
	NetPressure float64   `json:"net_pressure"`
}

// TrendReport classifies recent pressure direction for one symbol.
type TrendReport struct {
	Symbol        string  `json:"symbol"`
	Trend         string  `json:"trend"`
	TrendStrength float64 `json:"trend_strength"`
	NetPressure   float64 `json:"net_pressure"`
	SpreadBps     float64 `json:"spread_bps"`
	MidPrice      float64 `json:"mid_price"`
}

type symbolState struct {
	metrics    Metrics
	pressure   []PressurePoint
	next       int
	filled     bool
	lastUpdate time.Time
}

func (s *symbolState) appendPressure(point PressurePoint) {
	if len(s.pressure) < pressureRingSize {
		s.pressure = append(s.pressure, point)
		return
	}
	s.filled = true
	s.pressure[s.next] = point
	s.next = (s.next + 1) % pressureRingSize
}

// ordered returns the ring contents oldest first.
func (s *symbolState) ordered() []PressurePoint {
	if !s.filled {
		out := make([]PressurePoint, len(s.pressure))
		copy(out, s.pressure)
		return out
	}
	out := make([]PressurePoint, 0, pressureRingSize)
	out = append(out, s.pressure[s.next:]...)
	out = append(out, s.pressure[:s.next]...)
	return out
}

// Analyzer maintains current metrics and pressure history per symbol.
type Analyzer struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
}

// NewAnalyzer constructs an analyzer with no tracked symbols.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		mu:      sync.RWMutex{},
		symbols: make(map[string]*symbolState),
	}
}

// OnDepth recomputes the symbol's metrics from one snapshot.
func (a *Analyzer) OnDepth(depth *schema.DepthUpdate) {
	bidVolume := sumSide(depth.Bids, len(depth.Bids))
	askVolume := sumSide(depth.Asks, len(depth.Asks))
	total := bidVolume + askVolume
	if total == 0 {
		return
	}

	bestBid := depth.BestBid()
	bestAsk := depth.BestAsk()
	mid := depth.MidPrice()
	spread := bestAsk - bestBid
	var spreadBps float64
	if mid > 0 {
		spreadBps = spread / mid * 10000
	}

	buyPressure := bidVolume / total * 100
	sellPressure := askVolume / total * 100
	now := depth.Timestamp()

	metrics := Metrics{
		Symbol:         depth.Symbol,
		Timestamp:      now,
		ImbalanceRatio: (bidVolume - askVolume) / total,
		BidVolume:      bidVolume,
		AskVolume:      askVolume,
		BuyPressure:    buyPressure,
		SellPressure:   sellPressure,
		NetPressure:    buyPressure - sellPressure,
		DepthBidTop5:   sumSide(depth.Bids, 5),
		DepthAskTop5:   sumSide(depth.Asks, 5),
		DepthBidTop10:  sumSide(depth.Bids, 10),
		DepthAskTop10:  sumSide(depth.Asks, 10),
		BestBid:        bestBid,
		BestAsk:        bestAsk,
		Spread:         spread,
		SpreadBps:      spreadBps,
		MidPrice:       mid,
		VWAPBid:        vwap(depth.Bids),
		VWAPAsk:        vwap(depth.Asks),
		StrongestBid:   strongestLevel(depth.Bids),
		StrongestAsk:   strongestLevel(depth.Asks),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.symbols[depth.Symbol]
	if !ok {
		st = &symbolState{metrics: Metrics{}, pressure: nil, next: 0, filled: false, lastUpdate: now}
		a.symbols[depth.Symbol] = st
	}
	st.metrics = metrics
	st.lastUpdate = now
	st.appendPressure(PressurePoint{Timestamp: now, NetPressure: metrics.NetPressure})
}

// Current returns the latest metrics for a symbol.
func (a *Analyzer) Current(symbol string) (Metrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.symbols[symbol]
	if !ok {
		return Metrics{}, false
	}
	return st.metrics, true
}

// PressureHistory returns pressure points within the window, oldest first.
func (a *Analyzer) PressureHistory(symbol string, window time.Duration) []PressurePoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.symbols[symbol]
	if !ok {
		return nil
	}
	points := st.ordered()
	cutoff := st.lastUpdate.Add(-window)
	out := make([]PressurePoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// All returns the current metrics for every tracked symbol.
func (a *Analyzer) All() map[string]Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Metrics, len(a.symbols))
	for symbol, st := range a.symbols {
		out[symbol] = st.metrics
	}
	return out
}

// Summary classifies the recent pressure trend for every tracked symbol.
func (a *Analyzer) Summary() []TrendReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]TrendReport, 0, len(a.symbols))
	for symbol, st := range a.symbols {
		trend, strength := classifyTrend(st.ordered())
		out = append(out, TrendReport{
			Symbol:        symbol,
			Trend:         trend,
			TrendStrength: strength,
			NetPressure:   st.metrics.NetPressure,
			SpreadBps:     st.metrics.SpreadBps,
			MidPrice:      st.metrics.MidPrice,
		})
	}
	return out
}

// Sweep drops symbols idle longer than the TTL and returns how many went.
func (a *Analyzer) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for symbol, st := range a.symbols {
		if now.Sub(st.lastUpdate) > symbolTTL {
			delete(a.symbols, symbol)
			removed++
		}
	}
	return removed
}

// RunSweeper evicts idle symbols periodically until the context ends.
func (a *Analyzer) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.Sweep(time.Now()); removed > 0 {
				observability.Log().Debug("depth analyzer evicted idle symbols",
					observability.Field{Key: "removed", Value: removed},
				)
			}
		}
	}
}

func classifyTrend(points []PressurePoint) (string, float64) {
	if len(points) == 0 {
		return "neutral", 0
	}
	start := 0
	if len(points) > trendSamples {
		start = len(points) - trendSamples
	}
	recent := points[start:]
	var mean float64
	for _, p := range recent {
		mean += p.NetPressure
	}
	mean /= float64(len(recent))

	strength := math.Min(1, math.Abs(mean)/50)
	switch {
	case mean > 20:
		return "bullish", strength
	case mean < -20:
		return "bearish", strength
	default:
		return "neutral", strength
	}
}

func sumSide(levels []schema.PriceLevel, top int) float64 {
	if top > len(levels) {
		top = len(levels)
	}
	var sum float64
	for _, level := range levels[:top] {
		sum += level.QuantityFloat()
	}
	return sum
}

func vwap(levels []schema.PriceLevel) float64 {
	var notional, volume float64
	for _, level := range levels {
		q := level.QuantityFloat()
		notional += level.PriceFloat() * q
		volume += q
	}
	if volume == 0 {
		return 0
	}
	return notional / volume
}

func strongestLevel(levels []schema.PriceLevel) float64 {
	var best, bestQty float64
	for _, level := range levels {
		if q := level.QuantityFloat(); q > bestQty {
			bestQty = q
			best = level.PriceFloat()
		}
	}
	return best
}
