package schema

import (
	"time"

	"github.com/petrosa/realtime-strategies/errs"
)

// OrderAction is the executable side carried on the wire.
type OrderAction string

const (
	OrderBuy   OrderAction = "buy"
	OrderSell  OrderAction = "sell"
	OrderClose OrderAction = "close"
	OrderHold  OrderAction = "hold"
)

// TradeOrder is the outbound wire contract. Field names and casing are fixed
// by the downstream consumer and must not change.
type TradeOrder struct {
	ID           string         `json:"id"`
	SignalID     string         `json:"signal_id"`
	StrategyID   string         `json:"strategy_id"`
	Symbol       string         `json:"symbol"`
	SignalType   string         `json:"signal_type"`
	Action       OrderAction    `json:"action"`
	Confidence   float64        `json:"confidence"`
	Strength     string         `json:"strength"`
	Price        float64        `json:"price"`
	Quantity     float64        `json:"quantity"`
	CurrentPrice float64        `json:"current_price"`
	Source       string         `json:"source"`
	Strategy     string         `json:"strategy"`
	Metadata     map[string]any `json:"metadata"`
	StopLoss     float64        `json:"stop_loss,omitempty"`
	TakeProfit   float64        `json:"take_profit,omitempty"`
	StopLossPct  float64        `json:"stop_loss_pct,omitempty"`
	TakeProfPct  float64        `json:"take_profit_pct,omitempty"`
	OrderType    string         `json:"order_type"`
	TimeInForce  string         `json:"time_in_force"`
	Timeframe    string         `json:"timeframe"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Validate rejects orders that would be unroutable downstream.
func (o *TradeOrder) Validate() error {
	if o.ID == "" || o.SignalID == "" {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("order missing identifiers"))
	}
	if o.StrategyID == "" {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("order missing strategy id"))
	}
	if err := validateSymbol(o.Symbol); err != nil {
		return err
	}
	switch o.Action {
	case OrderBuy, OrderSell, OrderClose, OrderHold:
	default:
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("unknown order action"), errs.WithField("action", string(o.Action)))
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("order confidence out of range"))
	}
	if (o.Action == OrderBuy || o.Action == OrderSell) && o.Price <= 0 {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("executable order requires a positive price"), errs.WithField("symbol", o.Symbol))
	}
	return nil
}
