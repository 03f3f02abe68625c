// Package schema defines the canonical event and signal types flowing through
// the engine: market-data payloads on the way in, trade orders on the way out.
package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/petrosa/realtime-strategies/errs"
)

// PriceLevel is a single order book level. Price and quantity stay as the
// numeric strings the feed delivers; conversion happens at point of use.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// PriceFloat returns the level price as a float64, zero when malformed.
func (l PriceLevel) PriceFloat() float64 {
	v, _ := strconv.ParseFloat(l.Price, 64)
	return v
}

// QuantityFloat returns the level quantity as a float64, zero when malformed.
func (l PriceLevel) QuantityFloat() float64 {
	v, _ := strconv.ParseFloat(l.Quantity, 64)
	return v
}

func (l PriceLevel) validate() error {
	if _, err := strconv.ParseFloat(l.Price, 64); err != nil {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("level price is not numeric"), errs.WithField("price", l.Price))
	}
	if _, err := strconv.ParseFloat(l.Quantity, 64); err != nil {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("level quantity is not numeric"), errs.WithField("quantity", l.Quantity))
	}
	return nil
}

// DepthUpdate is an order book snapshot: bids descending, asks ascending.
type DepthUpdate struct {
	Symbol        string       `json:"symbol"`
	EventTime     int64        `json:"event_time"`
	FirstUpdateID int64        `json:"first_update_id"`
	FinalUpdateID int64        `json:"final_update_id"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
}

// Validate rejects malformed snapshots: bad symbol, empty sides, or
// non-numeric levels.
func (d *DepthUpdate) Validate() error {
	if err := validateSymbol(d.Symbol); err != nil {
		return err
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("depth snapshot has an empty side"), errs.WithField("symbol", d.Symbol))
	}
	for _, l := range d.Bids {
		if err := l.validate(); err != nil {
			return err
		}
	}
	for _, l := range d.Asks {
		if err := l.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Timestamp converts the millisecond event time to a time.Time.
func (d *DepthUpdate) Timestamp() time.Time {
	return time.UnixMilli(d.EventTime)
}

// BestBid returns the top-of-book bid price, zero when the side is empty.
func (d *DepthUpdate) BestBid() float64 {
	if len(d.Bids) == 0 {
		return 0
	}
	return d.Bids[0].PriceFloat()
}

// BestAsk returns the top-of-book ask price, zero when the side is empty.
func (d *DepthUpdate) BestAsk() float64 {
	if len(d.Asks) == 0 {
		return 0
	}
	return d.Asks[0].PriceFloat()
}

// SpreadPercent returns the bid-ask spread as a percentage of the best bid.
func (d *DepthUpdate) SpreadPercent() float64 {
	bid := d.BestBid()
	ask := d.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (ask - bid) / bid * 100
}

// MidPrice returns the arithmetic mid of the top of book.
func (d *DepthUpdate) MidPrice() float64 {
	bid := d.BestBid()
	ask := d.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// TradeData is a single executed trade.
type TradeData struct {
	Symbol        string `json:"symbol"`
	TradeID       int64  `json:"trade_id"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	BuyerOrderID  int64  `json:"buyer_order_id"`
	SellerOrderID int64  `json:"seller_order_id"`
	TradeTime     int64  `json:"trade_time"`
	IsBuyerMaker  bool   `json:"is_buyer_maker"`
	EventTime     int64  `json:"event_time"`
}

// Validate rejects trades with a bad symbol or non-numeric price/quantity.
func (t *TradeData) Validate() error {
	if err := validateSymbol(t.Symbol); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(t.Price, 64); err != nil {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("trade price is not numeric"), errs.WithField("price", t.Price))
	}
	if _, err := strconv.ParseFloat(t.Quantity, 64); err != nil {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("trade quantity is not numeric"), errs.WithField("quantity", t.Quantity))
	}
	return nil
}

// Timestamp converts the millisecond trade time to a time.Time.
func (t *TradeData) Timestamp() time.Time {
	return time.UnixMilli(t.TradeTime)
}

// PriceFloat returns the trade price as a float64.
func (t *TradeData) PriceFloat() float64 {
	v, _ := strconv.ParseFloat(t.Price, 64)
	return v
}

// QuantityFloat returns the trade quantity as a float64.
func (t *TradeData) QuantityFloat() float64 {
	v, _ := strconv.ParseFloat(t.Quantity, 64)
	return v
}

// Notional returns price times quantity.
func (t *TradeData) Notional() float64 {
	return t.PriceFloat() * t.QuantityFloat()
}

// TickerData is a rolling 24h ticker update.
type TickerData struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"price_change"`
	PriceChangePercent string `json:"price_change_percent"`
	WeightedAvgPrice   string `json:"weighted_avg_price"`
	PrevClosePrice     string `json:"prev_close_price"`
	LastPrice          string `json:"last_price"`
	LastQty            string `json:"last_qty"`
	BidPrice           string `json:"bid_price"`
	BidQty             string `json:"bid_qty"`
	AskPrice           string `json:"ask_price"`
	AskQty             string `json:"ask_qty"`
	OpenPrice          string `json:"open_price"`
	HighPrice          string `json:"high_price"`
	LowPrice           string `json:"low_price"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quote_volume"`
	OpenTime           int64  `json:"open_time"`
	CloseTime          int64  `json:"close_time"`
	FirstID            int64  `json:"first_id"`
	LastID             int64  `json:"last_id"`
	Count              int64  `json:"count"`
	EventTime          int64  `json:"event_time"`
}

// Validate rejects tickers with a bad symbol or non-numeric last price.
func (t *TickerData) Validate() error {
	if err := validateSymbol(t.Symbol); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(t.LastPrice, 64); err != nil {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("ticker last price is not numeric"), errs.WithField("last_price", t.LastPrice))
	}
	return nil
}

// Timestamp converts the millisecond event time to a time.Time.
func (t *TickerData) Timestamp() time.Time {
	return time.UnixMilli(t.EventTime)
}

// LastPriceFloat returns the last traded price as a float64.
func (t *TickerData) LastPriceFloat() float64 {
	v, _ := strconv.ParseFloat(t.LastPrice, 64)
	return v
}

// PriceChangePercentFloat returns the 24h change percentage as a float64.
func (t *TickerData) PriceChangePercentFloat() float64 {
	v, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
	return v
}

// VolumeFloat returns the 24h base volume as a float64.
func (t *TickerData) VolumeFloat() float64 {
	v, _ := strconv.ParseFloat(t.Volume, 64)
	return v
}

func validateSymbol(symbol string) error {
	trimmed := strings.TrimSpace(symbol)
	if len(trimmed) < 6 {
		return errs.New("schema", errs.CodeInvalid, errs.WithMessage("invalid symbol"), errs.WithField("symbol", symbol))
	}
	return nil
}
