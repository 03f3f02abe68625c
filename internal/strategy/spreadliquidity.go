package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

type spreadSnapshot struct {
	ts        time.Time
	spreadBps float64
	mid       float64
	depth     float64
}

type spreadState struct {
	snaps        []spreadSnapshot
	widenedSince time.Time
	lastSignal   time.Time
}

// SpreadLiquidity watches the bid-ask spread for liquidity events. A sudden
// widening with depth withdrawal is bearish; a collapse back after a
// persistent widened regime is bullish.
type SpreadLiquidity struct {
	mu    sync.Mutex
	state map[string]*spreadState
}

// NewSpreadLiquidity constructs the strategy with empty per-symbol buffers.
func NewSpreadLiquidity() *SpreadLiquidity {
	return &SpreadLiquidity{
		mu:    sync.Mutex{},
		state: make(map[string]*spreadState),
	}
}

func (s *SpreadLiquidity) ID() string              { return IDSpreadLiquidity }
func (s *SpreadLiquidity) Name() string            { return "Spread Liquidity" }
func (s *SpreadLiquidity) Kind() schema.StreamKind { return schema.StreamDepth }

// OnDepth evaluates one snapshot and returns at most one signal.
func (s *SpreadLiquidity) OnDepth(depth *schema.DepthUpdate, params Params) (*schema.Signal, error) {
	thresholdBps := params.Float("spread_threshold_bps", 10.0)
	ratioThreshold := params.Float("spread_ratio_threshold", 2.5)
	velocityThreshold := params.Float("velocity_threshold", 0.5)
	persistenceThreshold := params.Float("persistence_threshold_seconds", 30.0)
	depthReductionPct := params.Float("min_depth_reduction_pct", 0.5)
	baseConfidence := params.Float("base_confidence", 0.70)
	lookback := params.Int("lookback_ticks", 20)
	minInterval := params.Float("min_signal_interval_seconds", 60.0)

	bid := depth.BestBid()
	ask := depth.BestAsk()
	mid := depth.MidPrice()
	if bid <= 0 || ask <= 0 || mid <= 0 {
		return nil, nil
	}
	spreadBps := (ask - bid) / mid * 10000
	topDepth := sumQuantities(depth.Bids, 5) + sumQuantities(depth.Asks, 5)
	now := depth.Timestamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state[depth.Symbol]
	if !ok {
		st = &spreadState{snaps: nil, widenedSince: time.Time{}, lastSignal: time.Time{}}
		s.state[depth.Symbol] = st
	}

	// Averages cover the buffer before this event so a regime shift stands
	// out against its own history.
	var avgSpread, avgDepth, prevSpread float64
	if n := len(st.snaps); n > 0 {
		for _, snap := range st.snaps {
			avgSpread += snap.spreadBps
			avgDepth += snap.depth
		}
		avgSpread /= float64(n)
		avgDepth /= float64(n)
		prevSpread = st.snaps[n-1].spreadBps
	}

	st.snaps = append(st.snaps, spreadSnapshot{ts: now, spreadBps: spreadBps, mid: mid, depth: topDepth})
	if len(st.snaps) > lookback {
		st.snaps = st.snaps[len(st.snaps)-lookback:]
	}
	if avgSpread <= 0 || prevSpread <= 0 {
		return nil, nil
	}

	spreadRatio := spreadBps / avgSpread
	spreadVelocity := (spreadBps - prevSpread) / prevSpread

	widened := spreadRatio > ratioThreshold
	var persistence float64
	if widened {
		if st.widenedSince.IsZero() {
			st.widenedSince = now
		}
		persistence = now.Sub(st.widenedSince).Seconds()
	}

	var signal *schema.Signal
	switch {
	case widened && spreadVelocity < -velocityThreshold && persistence >= persistenceThreshold:
		// Narrowing after a persistent widened regime: liquidity returning.
		score := baseConfidence + (spreadRatio-ratioThreshold)*0.05 + math.Min(0.10, persistence/300*0.10)
		signal = s.buildSignal(depth.Symbol, schema.ActionOpenLong, "spread_narrowing", score, mid, now, map[string]any{
			"spread_bps":      spreadBps,
			"avg_spread_bps":  avgSpread,
			"spread_ratio":    spreadRatio,
			"spread_velocity": spreadVelocity,
			"persistence":     persistence,
		})
	case prevSpread < thresholdBps && widened && spreadVelocity > velocityThreshold && avgDepth > 0 && topDepth < depthReductionPct*avgDepth:
		// Sudden widening with depth withdrawal: liquidity leaving.
		depthReduction := 1 - topDepth/avgDepth
		score := baseConfidence + math.Abs(spreadVelocity)*0.10 + depthReduction*0.15
		signal = s.buildSignal(depth.Symbol, schema.ActionOpenShort, "spread_widening", score, mid, now, map[string]any{
			"spread_bps":      spreadBps,
			"avg_spread_bps":  avgSpread,
			"spread_ratio":    spreadRatio,
			"spread_velocity": spreadVelocity,
			"depth_reduction": depthReduction,
		})
	}

	if !widened {
		st.widenedSince = time.Time{}
	}
	if signal == nil {
		return nil, nil
	}
	if !st.lastSignal.IsZero() && now.Sub(st.lastSignal).Seconds() < minInterval {
		return nil, nil
	}
	st.lastSignal = now
	st.widenedSince = time.Time{}
	return signal, nil
}

func (s *SpreadLiquidity) buildSignal(symbol string, action schema.SignalAction, event string, score, price float64, ts time.Time, indicators map[string]any) *schema.Signal {
	score = math.Min(0.95, score)
	return &schema.Signal{
		StrategyID: s.ID(),
		Symbol:     symbol,
		Action:     action,
		Confidence: schema.ConfidenceScore(score).Band(),
		Score:      score,
		Price:      price,
		Timestamp:  ts,
		Indicators: indicators,
		Metadata: map[string]any{
			"event":           event,
			"stop_loss_pct":   0.005,
			"take_profit_pct": 0.01,
		},
	}
}
