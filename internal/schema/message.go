package schema

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrosa/realtime-strategies/errs"
)

// StreamKind classifies an inbound stream tag.
type StreamKind string

const (
	// StreamDepth identifies order book depth snapshots.
	StreamDepth StreamKind = "depth"
	// StreamTrade identifies individual trades.
	StreamTrade StreamKind = "trade"
	// StreamTicker identifies 24h ticker updates.
	StreamTicker StreamKind = "ticker"
	// StreamUnknown identifies stream tags the engine does not route.
	StreamUnknown StreamKind = "unknown"
)

// ClassifyStream maps a stream tag (e.g. "btcusdt@depth20@100ms") to its kind.
func ClassifyStream(stream string) StreamKind {
	_, rest, ok := strings.Cut(stream, "@")
	if !ok {
		return StreamUnknown
	}
	switch {
	case strings.Contains(rest, "depth"):
		return StreamDepth
	case strings.Contains(rest, "trade"):
		return StreamTrade
	case strings.Contains(rest, "ticker"):
		return StreamTicker
	default:
		return StreamUnknown
	}
}

// MarketMessage is the transport envelope around a market-data payload.
type MarketMessage struct {
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParseMarketMessage decodes the transport envelope and verifies the stream tag.
func ParseMarketMessage(raw []byte) (*MarketMessage, error) {
	var msg MarketMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("malformed envelope"), errs.WithCause(err))
	}
	if msg.Stream == "" || !strings.Contains(msg.Stream, "@") {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("missing or malformed stream tag"), errs.WithField("stream", msg.Stream))
	}
	if len(msg.Data) == 0 {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("missing payload"), errs.WithField("stream", msg.Stream))
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return &msg, nil
}

// Kind classifies the envelope's stream tag.
func (m *MarketMessage) Kind() StreamKind {
	return ClassifyStream(m.Stream)
}

// Symbol extracts the upper-cased symbol from the stream tag.
func (m *MarketMessage) Symbol() string {
	prefix, _, _ := strings.Cut(m.Stream, "@")
	return strings.ToUpper(prefix)
}

// rawDepth mirrors the feed's depth payload: levels arrive as [price, qty]
// string pairs.
type rawDepth struct {
	Symbol        string     `json:"s"`
	EventTime     int64      `json:"E"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"bids"`
	Asks          [][]string `json:"asks"`
}

type rawTrade struct {
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	BuyerOrder   int64  `json:"b"`
	SellerOrder  int64  `json:"a"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	EventTime    int64  `json:"E"`
}

type rawTicker struct {
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	PrevClosePrice     string `json:"x"`
	LastPrice          string `json:"c"`
	LastQty            string `json:"Q"`
	BidPrice           string `json:"b"`
	BidQty             string `json:"B"`
	AskPrice           string `json:"a"`
	AskQty             string `json:"A"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstID            int64  `json:"F"`
	LastID             int64  `json:"L"`
	Count              int64  `json:"n"`
	EventTime          int64  `json:"E"`
}

// DecodeDepth converts the payload into a validated DepthUpdate.
func (m *MarketMessage) DecodeDepth() (*DepthUpdate, error) {
	var raw rawDepth
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("malformed depth payload"), errs.WithCause(err))
	}
	symbol := raw.Symbol
	if symbol == "" {
		symbol = m.Symbol()
	}
	eventTime := raw.EventTime
	if eventTime == 0 {
		eventTime = m.Timestamp.UnixMilli()
	}
	update := &DepthUpdate{
		Symbol:        strings.ToUpper(symbol),
		EventTime:     eventTime,
		FirstUpdateID: raw.FirstUpdateID,
		FinalUpdateID: raw.FinalUpdateID,
		Bids:          convertLevels(raw.Bids),
		Asks:          convertLevels(raw.Asks),
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	return update, nil
}

// DecodeTrade converts the payload into a validated TradeData.
func (m *MarketMessage) DecodeTrade() (*TradeData, error) {
	var raw rawTrade
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("malformed trade payload"), errs.WithCause(err))
	}
	symbol := raw.Symbol
	if symbol == "" {
		symbol = m.Symbol()
	}
	trade := &TradeData{
		Symbol:        strings.ToUpper(symbol),
		TradeID:       raw.TradeID,
		Price:         raw.Price,
		Quantity:      raw.Quantity,
		BuyerOrderID:  raw.BuyerOrder,
		SellerOrderID: raw.SellerOrder,
		TradeTime:     raw.TradeTime,
		IsBuyerMaker:  raw.IsBuyerMaker,
		EventTime:     raw.EventTime,
	}
	if err := trade.Validate(); err != nil {
		return nil, err
	}
	return trade, nil
}

// DecodeTicker converts the payload into a validated TickerData.
func (m *MarketMessage) DecodeTicker() (*TickerData, error) {
	var raw rawTicker
	if err := json.Unmarshal(m.Data, &raw); err != nil {
		return nil, errs.New("schema", errs.CodeInvalid, errs.WithMessage("malformed ticker payload"), errs.WithCause(err))
	}
	symbol := raw.Symbol
	if symbol == "" {
		symbol = m.Symbol()
	}
	ticker := &TickerData{
		Symbol:             strings.ToUpper(symbol),
		PriceChange:        raw.PriceChange,
		PriceChangePercent: raw.PriceChangePercent,
		WeightedAvgPrice:   raw.WeightedAvgPrice,
		PrevClosePrice:     raw.PrevClosePrice,
		LastPrice:          raw.LastPrice,
		LastQty:            raw.LastQty,
		BidPrice:           raw.BidPrice,
		BidQty:             raw.BidQty,
		AskPrice:           raw.AskPrice,
		AskQty:             raw.AskQty,
		OpenPrice:          raw.OpenPrice,
		HighPrice:          raw.HighPrice,
		LowPrice:           raw.LowPrice,
		Volume:             raw.Volume,
		QuoteVolume:        raw.QuoteVolume,
		OpenTime:           raw.OpenTime,
		CloseTime:          raw.CloseTime,
		FirstID:            raw.FirstID,
		LastID:             raw.LastID,
		Count:              raw.Count,
		EventTime:          raw.EventTime,
	}
	if err := ticker.Validate(); err != nil {
		return nil, err
	}
	return ticker, nil
}

func convertLevels(pairs [][]string) []PriceLevel {
	levels := make([]PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, PriceLevel{Price: pair[0], Quantity: pair[1]})
	}
	return levels
}
