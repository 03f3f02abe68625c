// Package adapter converts internal strategy signals into the wire contract
// published for downstream execution. The transformation is pure: all
// randomness is confined to the generated identifiers.
package adapter

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/schema"
)

// Source is the wire-level origin tag on every published signal.
const Source = "realtime-strategies"

// Provenance records where the strategy's parameters were resolved from.
type Provenance struct {
	Source     string
	Version    int
	IsOverride bool
}

// Notional tiers in quote currency, selected by confidence band. Position
// size is tier x confidence / price.
var (
	tierHigh   = decimal.NewFromInt(100)
	tierMedium = decimal.NewFromInt(50)
	tierLow    = decimal.NewFromInt(20)
)

// Adapter builds wire orders from internal signals.
type Adapter struct {
	now func() time.Time
}

// New constructs an adapter using the wall clock.
func New() *Adapter {
	return &Adapter{now: time.Now}
}

// WithClock overrides the clock, primarily for testing.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	if now == nil {
		a.now = time.Now
		return a
	}
	a.now = now
	return a
}

// Adapt converts one internal signal into a validated wire order.
func (a *Adapter) Adapt(sig *schema.Signal, prov Provenance) (*schema.TradeOrder, error) {
	if sig == nil {
		return nil, errs.New("adapter", errs.CodeInvalid, errs.WithMessage("nil signal"))
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	action := mapAction(sig.Action)
	confidence := sig.Score
	if confidence == 0 {
		confidence = bandDefault(sig.Confidence)
	}

	order := &schema.TradeOrder{
		ID:           uuid.NewString(),
		SignalID:     uuid.NewString(),
		StrategyID:   sig.StrategyID + "_" + sig.Symbol,
		Symbol:       sig.Symbol,
		SignalType:   string(action),
		Action:       action,
		Confidence:   confidence,
		Strength:     strengthBand(confidence),
		Price:        sig.Price,
		Quantity:     0,
		CurrentPrice: sig.Price,
		Source:       Source,
		Strategy:     sig.StrategyID,
		Metadata:     buildMetadata(sig, prov),
		StopLoss:     0,
		TakeProfit:   0,
		StopLossPct:  0,
		TakeProfPct:  0,
		OrderType:    "market",
		TimeInForce:  "GTC",
		Timeframe:    "realtime",
		Timestamp:    a.now().UTC(),
	}

	if action == schema.OrderBuy || action == schema.OrderSell {
		order.Quantity = sizePosition(confidence, sig.Price)
		applyRisk(order, sig, confidence)
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Readapt re-applies the transformation to an already-adapted order. The
// result equals the input apart from freshly generated identifiers and
// timestamp, which makes the adapter safe to run twice on the same signal.
func (a *Adapter) Readapt(order *schema.TradeOrder) (*schema.TradeOrder, error) {
	if order == nil {
		return nil, errs.New("adapter", errs.CodeInvalid, errs.WithMessage("nil order"))
	}
	out := *order
	out.ID = uuid.NewString()
	out.SignalID = uuid.NewString()
	out.Timestamp = a.now().UTC()
	out.Metadata = make(map[string]any, len(order.Metadata))
	for k, v := range order.Metadata {
		out.Metadata[k] = v
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func mapAction(action schema.SignalAction) schema.OrderAction {
	switch action {
	case schema.ActionOpenLong:
		return schema.OrderBuy
	case schema.ActionOpenShort:
		return schema.OrderSell
	case schema.ActionCloseLong, schema.ActionCloseShort:
		return schema.OrderClose
	default:
		return schema.OrderHold
	}
}

func bandDefault(band schema.Confidence) float64 {
	switch band {
	case schema.ConfidenceHigh:
		return 0.85
	case schema.ConfidenceMedium:
		return 0.65
	default:
		return 0.35
	}
}

func strengthBand(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "extreme"
	case confidence >= 0.7:
		return "strong"
	case confidence >= 0.5:
		return "medium"
	default:
		return "weak"
	}
}

// sizePosition converts the confidence-scaled notional tier into a base
// quantity at the signal price, rounded to six decimals.
func sizePosition(confidence, price float64) float64 {
	if price <= 0 {
		return 0
	}
	tier := tierLow
	switch {
	case confidence >= 0.8:
		tier = tierHigh
	case confidence >= 0.6:
		tier = tierMedium
	}
	notional := tier.Mul(decimal.NewFromFloat(confidence))
	quantity := notional.Div(decimal.NewFromFloat(price)).Round(6)
	f, _ := quantity.Float64()
	return f
}

func applyRisk(order *schema.TradeOrder, sig *schema.Signal, confidence float64) {
	// Strategy-supplied absolute levels win outright.
	if sl, ok := metaFloat(sig.Metadata, "stop_loss"); ok {
		if tp, ok := metaFloat(sig.Metadata, "take_profit"); ok {
			order.StopLoss = sl
			order.TakeProfit = tp
			order.StopLossPct = riskPct(order.Price, sl)
			order.TakeProfPct = riskPct(order.Price, tp)
			return
		}
	}

	slPct, haveSL := metaFloat(sig.Metadata, "stop_loss_pct")
	tpPct, haveTP := metaFloat(sig.Metadata, "take_profit_pct")
	if !haveSL || !haveTP {
		switch {
		case confidence >= 0.8:
			slPct, tpPct = 0.02, 0.05
		case confidence >= 0.6:
			slPct, tpPct = 0.03, 0.04
		default:
			slPct, tpPct = 0.05, 0.03
		}
	}
	order.StopLossPct = slPct
	order.TakeProfPct = tpPct
	if order.Action == schema.OrderBuy {
		order.StopLoss = order.Price * (1 - slPct)
		order.TakeProfit = order.Price * (1 + tpPct)
	} else {
		order.StopLoss = order.Price * (1 + slPct)
		order.TakeProfit = order.Price * (1 - tpPct)
	}
}

func riskPct(price, level float64) float64 {
	if price <= 0 {
		return 0
	}
	diff := price - level
	if diff < 0 {
		diff = -diff
	}
	return diff / price
}

func metaFloat(meta map[string]any, key string) (float64, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func buildMetadata(sig *schema.Signal, prov Provenance) map[string]any {
	meta := make(map[string]any, len(sig.Metadata)+len(sig.Indicators)+6)
	for k, v := range sig.Metadata {
		meta[k] = v
	}
	if len(sig.Indicators) > 0 {
		meta["indicators"] = sig.Indicators
	}
	meta["original_signal_type"] = signalType(sig.Action)
	meta["original_signal_action"] = string(sig.Action)
	meta["original_confidence"] = string(sig.Confidence)
	meta["config_source"] = prov.Source
	meta["config_version"] = prov.Version
	meta["config_is_override"] = prov.IsOverride
	return meta
}

func signalType(action schema.SignalAction) string {
	switch action {
	case schema.ActionOpenLong:
		return "LONG"
	case schema.ActionOpenShort:
		return "SHORT"
	case schema.ActionCloseLong, schema.ActionCloseShort:
		return "CLOSE"
	default:
		return "HOLD"
	}
}
