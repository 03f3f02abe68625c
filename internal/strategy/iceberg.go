package strategy

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

// IcebergDetector looks for hidden size at individual book levels: repeated
// fast refills, unnaturally consistent displayed quantity, or a level that
// anchors the book for a long time.
type IcebergDetector struct {
	mu      sync.Mutex
	symbols map[string]*symbolLevels
}

// NewIcebergDetector constructs the detector with no tracked symbols.
func NewIcebergDetector() *IcebergDetector {
	return &IcebergDetector{
		mu:      sync.Mutex{},
		symbols: make(map[string]*symbolLevels),
	}
}

func (s *IcebergDetector) ID() string              { return IDIcebergDetector }
func (s *IcebergDetector) Name() string            { return "Iceberg Detector" }
func (s *IcebergDetector) Kind() schema.StreamKind { return schema.StreamDepth }

// OnDepth records level observations and returns at most one signal.
func (s *IcebergDetector) OnDepth(depth *schema.DepthUpdate, params Params) (*schema.Signal, error) {
	minRefills := params.Int("min_refill_count", 3)
	refillSpeed := params.Float("refill_speed_threshold_seconds", 5.0)
	consistency := params.Float("consistency_threshold", 0.1)
	persistenceThreshold := params.Float("persistence_threshold_seconds", 120.0)
	proximityPct := params.Float("level_proximity_pct", 1.0)
	baseConfidence := params.Float("base_confidence", 0.70)
	window := time.Duration(params.Int("history_window_seconds", 300)) * time.Second
	maxSymbols := params.Int("max_symbols", 100)
	minInterval := params.Float("min_signal_interval_seconds", 120.0)

	mid := depth.MidPrice()
	if mid <= 0 {
		return nil, nil
	}
	now := depth.Timestamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.symbols[depth.Symbol]
	if !ok {
		s.evictOldest(maxSymbols - 1)
		st = newSymbolLevels(now)
		s.symbols[depth.Symbol] = st
	}
	st.lastTouch = now

	for _, level := range depth.Bids {
		s.observe(st, sideBid, level, now, window, refillSpeed)
	}
	for _, level := range depth.Asks {
		s.observe(st, sideAsk, level, now, window, refillSpeed)
	}
	for price, history := range st.levels {
		if history.stale(now, window) {
			delete(st.levels, price)
		}
	}

	if !st.lastSignal.IsZero() && now.Sub(st.lastSignal).Seconds() < minInterval {
		return nil, nil
	}

	// Deterministic scan order so repeated runs pick the same level.
	prices := make([]string, 0, len(st.levels))
	for price := range st.levels {
		prices = append(prices, price)
	}
	sort.Strings(prices)

	for _, price := range prices {
		history := st.levels[price]
		pattern, score, refills := detectPattern(history, now, minRefills, refillSpeed, consistency, persistenceThreshold, baseConfidence)
		if pattern == "" {
			continue
		}
		levelPrice, err := strconv.ParseFloat(price, 64)
		if err != nil || levelPrice <= 0 {
			continue
		}
		if math.Abs(mid-levelPrice)/mid*100 > proximityPct {
			continue
		}

		var action schema.SignalAction
		atr := math.Max(math.Abs(mid-levelPrice), mid*0.005)
		var stopLoss, takeProfit float64
		if history.side == sideBid {
			action = schema.ActionOpenLong
			stopLoss = levelPrice - atr
			takeProfit = mid + 2.5*atr
		} else {
			action = schema.ActionOpenShort
			stopLoss = levelPrice + atr
			takeProfit = mid - 2.5*atr
		}

		st.lastSignal = now
		return &schema.Signal{
			StrategyID: s.ID(),
			Symbol:     depth.Symbol,
			Action:     action,
			Confidence: schema.ConfidenceScore(score).Band(),
			Score:      score,
			Price:      mid,
			Timestamp:  now,
			Indicators: map[string]any{
				"pattern":     pattern,
				"level_price": levelPrice,
				"refills":     refills,
				"side":        string(history.side),
			},
			Metadata: map[string]any{
				"pattern":     pattern,
				"stop_loss":   stopLoss,
				"take_profit": takeProfit,
			},
		}, nil
	}
	return nil, nil
}

func (s *IcebergDetector) observe(st *symbolLevels, side levelSide, level schema.PriceLevel, now time.Time, window time.Duration, refillSpeed float64) {
	history, ok := st.levels[level.Price]
	if !ok {
		history = newLevelHistory(side, now)
		st.levels[level.Price] = history
	}
	history.observe(now, level.QuantityFloat(), window, refillSpeed)
}

// evictOldest trims the symbol map down to the limit, dropping the symbols
// untouched for the longest.
func (s *IcebergDetector) evictOldest(limit int) {
	if limit < 0 {
		limit = 0
	}
	for len(s.symbols) > limit {
		oldestSymbol := ""
		var oldestTouch time.Time
		for symbol, st := range s.symbols {
			if oldestSymbol == "" || st.lastTouch.Before(oldestTouch) {
				oldestSymbol = symbol
				oldestTouch = st.lastTouch
			}
		}
		delete(s.symbols, oldestSymbol)
	}
}

func detectPattern(history *levelHistory, now time.Time, minRefills int, refillSpeed, consistency, persistenceThreshold, baseConfidence float64) (pattern string, score float64, refills int) {
	refills = history.refills
	if refills >= minRefills {
		score = math.Min(0.85, 0.65+float64(refills-minRefills)*0.05)
		return "refill", score, refills
	}
	if len(history.samples) >= minRefills {
		if mean, std, cv := history.stats(); mean > 0 && cv < consistency {
			return "consistent_size", baseConfidence * (1 - std/mean), refills
		}
	}
	if persistence := history.persistence(now); persistence >= persistenceThreshold {
		score = math.Min(0.85, 0.75+persistence/600*0.10)
		return "anchor", score, refills
	}
	return "", 0, refills
}
