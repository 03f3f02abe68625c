package schema

import (
	"testing"
	"time"
)

func TestClassifyStream(t *testing.T) {
	cases := []struct {
		stream string
		want   StreamKind
	}{
		{"btcusdt@depth20@100ms", StreamDepth},
		{"btcusdt@depth", StreamDepth},
		{"ethusdt@trade", StreamTrade},
		{"ethusdt@ticker", StreamTicker},
		{"btcusdt@kline_1m", StreamUnknown},
		{"no-separator", StreamUnknown},
		{"", StreamUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyStream(tc.stream); got != tc.want {
			t.Fatalf("ClassifyStream(%q) = %s, want %s", tc.stream, got, tc.want)
		}
	}
}

func TestParseMarketMessageEnvelope(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth20","data":{"E":1700000000000}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if msg.Kind() != StreamDepth {
		t.Fatalf("unexpected kind %s", msg.Kind())
	}
	if msg.Symbol() != "BTCUSDT" {
		t.Fatalf("unexpected symbol %q", msg.Symbol())
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("expected receive timestamp to be stamped")
	}
}

func TestParseMarketMessageRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":       []byte("{"),
		"missing stream": []byte(`{"data":{"s":"BTCUSDT"}}`),
		"bad stream tag": []byte(`{"stream":"btcusdt","data":{}}`),
		"empty payload":  []byte(`{"stream":"btcusdt@trade"}`),
	}
	for name, raw := range cases {
		if _, err := ParseMarketMessage(raw); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecodeDepth(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth20@100ms","data":{"E":1700000000000,"U":100,"u":105,` +
		`"bids":[["50000.00","1.5"],["49999.00","2.0"]],"asks":[["50010.00","1.0"],["50011.00","3.0"]]}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	depth, err := msg.DecodeDepth()
	if err != nil {
		t.Fatalf("decode depth: %v", err)
	}
	if depth.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbol %q", depth.Symbol)
	}
	if depth.BestBid() != 50000.00 || depth.BestAsk() != 50010.00 {
		t.Fatalf("unexpected top of book %f/%f", depth.BestBid(), depth.BestAsk())
	}
	if depth.MidPrice() != 50005.00 {
		t.Fatalf("unexpected mid %f", depth.MidPrice())
	}
	spread := depth.SpreadPercent()
	if spread < 0.019 || spread > 0.021 {
		t.Fatalf("unexpected spread %f", spread)
	}
	if depth.FinalUpdateID != 105 {
		t.Fatalf("unexpected final update id %d", depth.FinalUpdateID)
	}
}

func TestDecodeDepthEmptySide(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"E":1,"bids":[["50000","1"]],"asks":[]}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if _, err := msg.DecodeDepth(); err == nil {
		t.Fatal("expected empty ask side to be rejected")
	}
}

func TestDecodeTrade(t *testing.T) {
	raw := []byte(`{"stream":"ethusdt@trade","data":{"s":"ETHUSDT","t":42,"p":"3000.5","q":"0.25","T":1700000000500,"m":true,"E":1700000000501}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	trade, err := msg.DecodeTrade()
	if err != nil {
		t.Fatalf("decode trade: %v", err)
	}
	if trade.Symbol != "ETHUSDT" || trade.TradeID != 42 {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if !trade.IsBuyerMaker {
		t.Fatal("expected buyer-maker flag set")
	}
	if trade.Notional() != 3000.5*0.25 {
		t.Fatalf("unexpected notional %f", trade.Notional())
	}
	if trade.Timestamp() != time.UnixMilli(1700000000500) {
		t.Fatalf("unexpected trade time %s", trade.Timestamp())
	}
}

func TestDecodeTradeRejectsBadQuantity(t *testing.T) {
	raw := []byte(`{"stream":"ethusdt@trade","data":{"s":"ETHUSDT","p":"3000.5","q":"oops","T":1}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if _, err := msg.DecodeTrade(); err == nil {
		t.Fatal("expected non-numeric quantity to be rejected")
	}
}

func TestDecodeTicker(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","p":"120.5","P":"0.24",` +
		`"c":"50120.5","b":"50120.0","a":"50121.0","v":"12345.6","E":1700000000000}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	ticker, err := msg.DecodeTicker()
	if err != nil {
		t.Fatalf("decode ticker: %v", err)
	}
	if ticker.LastPriceFloat() != 50120.5 {
		t.Fatalf("unexpected last price %f", ticker.LastPriceFloat())
	}
	if ticker.PriceChangePercentFloat() != 0.24 {
		t.Fatalf("unexpected change percent %f", ticker.PriceChangePercentFloat())
	}
	if ticker.VolumeFloat() != 12345.6 {
		t.Fatalf("unexpected volume %f", ticker.VolumeFloat())
	}
}

func TestSymbolFallbackFromStream(t *testing.T) {
	raw := []byte(`{"stream":"solusdt@trade","data":{"p":"150.1","q":"2","T":1}}`)
	msg, err := ParseMarketMessage(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	trade, err := msg.DecodeTrade()
	if err != nil {
		t.Fatalf("decode trade: %v", err)
	}
	if trade.Symbol != "SOLUSDT" {
		t.Fatalf("expected symbol fallback from stream tag, got %q", trade.Symbol)
	}
}
