package strategy

import (
	"math"
	"strconv"
	"testing"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

func makeTrade(symbol string, id int64, price, qty float64, buyerMaker bool, tsMs int64) *schema.TradeData {
	return &schema.TradeData{
		Symbol:        symbol,
		TradeID:       id,
		Price:         strconv.FormatFloat(price, 'f', -1, 64),
		Quantity:      strconv.FormatFloat(qty, 'f', -1, 64),
		BuyerOrderID:  0,
		SellerOrderID: 0,
		TradeTime:     tsMs,
		IsBuyerMaker:  buyerMaker,
		EventTime:     tsMs,
	}
}

func momentumParams() Params {
	params, _ := Defaults(IDTradeMomentum)
	return params
}

func TestTradeMomentumFirstTradeSilent(t *testing.T) {
	s := NewTradeMomentum()
	sig, err := s.OnTrade(makeTrade("BTCUSDT", 1, 100, 1, false, 1000), momentumParams())
	if err != nil || sig != nil {
		t.Fatalf("first trade has no history, expected silence: %v %+v", err, sig)
	}
}

func TestTradeMomentumBuy(t *testing.T) {
	s := NewTradeMomentum()
	if _, err := s.OnTrade(makeTrade("BTCUSDT", 1, 100, 1, false, 1000), momentumParams()); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	// price momentum = 1.0, quantity score = 1 (5 vs avg 1), taker buy.
	// momentum = 0.4 + 0.3 + 0.3 = 1.0 > 0.7.
	sig, err := s.OnTrade(makeTrade("BTCUSDT", 2, 200, 5, false, 2000), momentumParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Action != schema.ActionOpenLong {
		t.Fatalf("expected long signal, got %+v", sig)
	}
	want := math.Min(0.95, 0.65+1.0*0.2)
	if math.Abs(sig.Score-want) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, sig.Score)
	}
	momentum, _ := sig.Indicators["momentum"].(float64)
	if math.Abs(momentum-1.0) > 1e-9 {
		t.Fatalf("unexpected momentum %f", momentum)
	}
}

func TestTradeMomentumSellWithCustomThreshold(t *testing.T) {
	s := NewTradeMomentum()
	params := momentumParams()
	params["sell_threshold"] = -0.5
	if _, err := s.OnTrade(makeTrade("BTCUSDT", 1, 100, 1, true, 1000), params); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	// price momentum = -0.5, tiny quantity, seller aggressor.
	// momentum ~= -0.2 + 0 - 0.3 = -0.5; push below with a deeper drop.
	sig, err := s.OnTrade(makeTrade("BTCUSDT", 2, 40, 0.001, true, 2000), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Action != schema.ActionOpenShort {
		t.Fatalf("expected short signal, got %+v", sig)
	}
}

func TestTradeMomentumMinQuantityFilter(t *testing.T) {
	s := NewTradeMomentum()
	params := momentumParams()
	if _, err := s.OnTrade(makeTrade("BTCUSDT", 1, 100, 1, false, 1000), params); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	sig, err := s.OnTrade(makeTrade("BTCUSDT", 2, 200, 0.0001, false, 2000), params)
	if err != nil || sig != nil {
		t.Fatalf("dust trade should be ignored: %v %+v", err, sig)
	}
}

func TestTradeMomentumPerSymbolIsolation(t *testing.T) {
	s := NewTradeMomentum()
	if _, err := s.OnTrade(makeTrade("BTCUSDT", 1, 100, 1, false, 1000), momentumParams()); err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	// A different symbol has no history, so its first trade stays silent
	// no matter how large the move would look against BTCUSDT prices.
	sig, err := s.OnTrade(makeTrade("ETHUSDT", 2, 200, 5, false, 2000), momentumParams())
	if err != nil || sig != nil {
		t.Fatalf("expected isolation between symbols: %v %+v", err, sig)
	}
}

func TestMomentumStateRingBounded(t *testing.T) {
	st := &momentumState{lastPrice: 0, quantities: nil, next: 0, filled: false}
	for i := 0; i < momentumQuantityWindow*3; i++ {
		st.record(100, float64(i))
	}
	if len(st.quantities) != momentumQuantityWindow {
		t.Fatalf("ring grew past the window: %d", len(st.quantities))
	}
}
