package schema

import (
	"testing"
	"time"
)

func TestSignalValidate(t *testing.T) {
	valid := Signal{
		StrategyID: "order_book_skew",
		Symbol:     "BTCUSDT",
		Action:     ActionOpenLong,
		Confidence: ConfidenceHigh,
		Score:      0.85,
		Price:      50000,
		Timestamp:  time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid signal rejected: %v", err)
	}

	cases := map[string]func(s *Signal){
		"missing strategy": func(s *Signal) { s.StrategyID = "" },
		"short symbol":     func(s *Signal) { s.Symbol = "BTC" },
		"unknown action":   func(s *Signal) { s.Action = "LONG" },
		"unknown band":     func(s *Signal) { s.Confidence = "EXTREME" },
		"score too high":   func(s *Signal) { s.Score = 1.2 },
		"open needs price": func(s *Signal) { s.Price = 0 },
	}
	for name, mutate := range cases {
		sig := valid
		mutate(&sig)
		if err := sig.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestHoldAllowsZeroPrice(t *testing.T) {
	sig := Signal{
		StrategyID: "trade_momentum",
		Symbol:     "ETHUSDT",
		Action:     ActionHold,
		Confidence: ConfidenceLow,
		Score:      0.2,
		Price:      0,
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("hold with zero price rejected: %v", err)
	}
}

func TestConfidenceScoreBand(t *testing.T) {
	cases := []struct {
		score ConfidenceScore
		want  Confidence
	}{
		{0.95, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.5, ConfidenceMedium},
		{0.49, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tc := range cases {
		if got := tc.score.Band(); got != tc.want {
			t.Fatalf("Band(%f) = %s, want %s", float64(tc.score), got, tc.want)
		}
	}
}

func TestSignalCloneIsolation(t *testing.T) {
	sig := &Signal{
		StrategyID: "iceberg_detector",
		Symbol:     "BTCUSDT",
		Action:     ActionOpenShort,
		Confidence: ConfidenceMedium,
		Score:      0.7,
		Price:      50000,
		Indicators: map[string]any{"refill_count": 4},
		Metadata:   map[string]any{"pattern": "refill"},
	}
	clone := sig.Clone()
	clone.Indicators["refill_count"] = 9
	clone.Metadata["pattern"] = "anchor"
	if sig.Indicators["refill_count"] != 4 {
		t.Fatal("clone shares indicator map with original")
	}
	if sig.Metadata["pattern"] != "refill" {
		t.Fatal("clone shares metadata map with original")
	}
}

func TestTradeOrderValidate(t *testing.T) {
	valid := TradeOrder{
		ID:           "a1",
		SignalID:     "s1",
		StrategyID:   "ticker_velocity",
		Symbol:       "BTCUSDT",
		SignalType:   "velocity",
		Action:       OrderBuy,
		Confidence:   0.8,
		Strength:     "strong",
		Price:        50000,
		Quantity:     0.002,
		CurrentPrice: 50000,
		Source:       "realtime-strategies",
		Strategy:     "ticker_velocity",
		OrderType:    "market",
		TimeInForce:  "GTC",
		Timeframe:    "realtime",
		Timestamp:    time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	cases := map[string]func(o *TradeOrder){
		"missing id":        func(o *TradeOrder) { o.ID = "" },
		"missing signal id": func(o *TradeOrder) { o.SignalID = "" },
		"unknown action":    func(o *TradeOrder) { o.Action = "flat" },
		"confidence range":  func(o *TradeOrder) { o.Confidence = -0.1 },
		"buy needs price":   func(o *TradeOrder) { o.Price = 0 },
	}
	for name, mutate := range cases {
		order := valid
		mutate(&order)
		if err := order.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCloseOrderAllowsZeroPrice(t *testing.T) {
	order := TradeOrder{
		ID:         "a2",
		SignalID:   "s2",
		StrategyID: "spread_liquidity",
		Symbol:     "ETHUSDT",
		Action:     OrderClose,
		Confidence: 0.6,
	}
	if err := order.Validate(); err != nil {
		t.Fatalf("close with zero price rejected: %v", err)
	}
}
