package schema

import (
	"time"

	"github.com/petrosa/realtime-strategies/errs"
)

// SignalAction is the position intent a strategy emits.
type SignalAction string

const (
	ActionOpenLong   SignalAction = "OPEN_LONG"
	ActionOpenShort  SignalAction = "OPEN_SHORT"
	ActionCloseLong  SignalAction = "CLOSE_LONG"
	ActionCloseShort SignalAction = "CLOSE_SHORT"
	ActionHold       SignalAction = "HOLD"
)

// Valid reports whether the action is one of the five known intents.
func (a SignalAction) Valid() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionCloseLong, ActionCloseShort, ActionHold:
		return true
	}
	return false
}

// Confidence is the categorical confidence band attached to internal signals.
// The band survives into wire metadata while the numeric ConfidenceScore
// drives downstream sizing.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Valid reports whether the band is one of the three known levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// ConfidenceScore is a numeric confidence in [0, 1].
type ConfidenceScore float64

// Valid reports whether the score lies in [0, 1].
func (s ConfidenceScore) Valid() bool {
	return s >= 0 && s <= 1
}

// Band maps the numeric score onto the categorical bands.
func (s ConfidenceScore) Band() Confidence {
	switch {
	case s >= 0.8:
		return ConfidenceHigh
	case s >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Signal is the internal strategy output before wire adaptation.
type Signal struct {
	StrategyID string         `json:"strategy_id"`
	Symbol     string         `json:"symbol"`
	Action     SignalAction   `json:"action"`
	Confidence Confidence     `json:"confidence"`
	Score      float64        `json:"score"`
	Price      float64        `json:"price"`
	Timestamp  time.Time      `json:"timestamp"`
	Indicators map[string]any `json:"indicators,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate rejects signals with unknown actions or bands, a bad symbol, a
// non-positive price on open intents, or an out-of-range score.
func (s *Signal) Validate() error {
	if s.StrategyID == "" {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("signal missing strategy id"))
	}
	if err := validateSymbol(s.Symbol); err != nil {
		return err
	}
	if !s.Action.Valid() {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("unknown signal action"), errs.WithField("action", string(s.Action)))
	}
	if !s.Confidence.Valid() {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("unknown confidence band"), errs.WithField("confidence", string(s.Confidence)))
	}
	if s.Score < 0 || s.Score > 1 {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("confidence score out of range"))
	}
	if (s.Action == ActionOpenLong || s.Action == ActionOpenShort) && s.Price <= 0 {
		return errs.New("schema", errs.CodeValidation, errs.WithMessage("open signal requires a positive price"), errs.WithField("strategy_id", s.StrategyID))
	}
	return nil
}

// Clone returns a deep copy so strategies can retain signals without sharing
// mutable maps with the dispatch path.
func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	out := &Signal{
		StrategyID: s.StrategyID,
		Symbol:     s.Symbol,
		Action:     s.Action,
		Confidence: s.Confidence,
		Score:      s.Score,
		Price:      s.Price,
		Timestamp:  s.Timestamp,
		Indicators: cloneAnyMap(s.Indicators),
		Metadata:   cloneAnyMap(s.Metadata),
	}
	return out
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
