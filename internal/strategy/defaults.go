package strategy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/petrosa/realtime-strategies/errs"
)

// Strategy identifiers. These are the configuration keys and the metric
// labels; changing them breaks stored overrides.
const (
	IDOrderBookSkew   = "orderbook_skew"
	IDTradeMomentum   = "trade_momentum"
	IDTickerVelocity  = "ticker_velocity"
	IDSpreadLiquidity = "spread_liquidity"
	IDIcebergDetector = "iceberg_detector"
)

// ParameterSchema describes one tunable parameter for validation and the
// configuration API.
type ParameterSchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Allowed     []string `json:"allowed,omitempty"`
	Default     any      `json:"default"`
	Description string   `json:"description"`
}

const (
	typeInt  = "int"
	typeReal = "real"
	typeBool = "bool"
)

func fptr(v float64) *float64 { return &v }

var schemas = map[string][]ParameterSchema{
	IDOrderBookSkew: {
		{Name: "top_levels", Type: typeInt, Min: fptr(1), Max: fptr(20), Default: 5, Description: "book levels summed per side"},
		{Name: "buy_threshold", Type: typeReal, Min: fptr(1), Max: fptr(10), Default: 1.2, Description: "bid/ask ratio above which to buy"},
		{Name: "sell_threshold", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.8, Description: "bid/ask ratio below which to sell"},
		{Name: "min_spread_percent", Type: typeReal, Min: fptr(0), Max: fptr(5), Default: 0.1, Description: "suppress signals when spread exceeds this percent"},
		{Name: "base_confidence", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.70, Description: "confidence floor before skew scaling"},
	},
	IDTradeMomentum: {
		{Name: "price_weight", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.4, Description: "weight of the price component"},
		{Name: "quantity_weight", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.3, Description: "weight of the quantity component"},
		{Name: "maker_weight", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.3, Description: "weight of the aggressor component"},
		{Name: "buy_threshold", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.7, Description: "momentum above which to buy"},
		{Name: "sell_threshold", Type: typeReal, Min: fptr(-1), Max: fptr(0), Default: -0.7, Description: "momentum below which to sell"},
		{Name: "min_quantity", Type: typeReal, Min: fptr(0), Default: 0.001, Description: "ignore trades smaller than this"},
	},
	IDTickerVelocity: {
		{Name: "time_window", Type: typeInt, Min: fptr(5), Max: fptr(3600), Default: 60, Description: "sliding window in seconds"},
		{Name: "buy_threshold", Type: typeReal, Min: fptr(0), Default: 0.5, Description: "percent-per-minute velocity above which to buy"},
		{Name: "sell_threshold", Type: typeReal, Max: fptr(0), Default: -0.5, Description: "percent-per-minute velocity below which to sell"},
		{Name: "min_price_change", Type: typeReal, Min: fptr(0), Default: 0.1, Description: "ignore moves smaller than this percent"},
	},
	IDSpreadLiquidity: {
		{Name: "spread_threshold_bps", Type: typeReal, Min: fptr(0), Default: 10.0, Description: "tight-spread ceiling in basis points"},
		{Name: "spread_ratio_threshold", Type: typeReal, Min: fptr(1), Default: 2.5, Description: "spread/average ratio marking a widened regime"},
		{Name: "velocity_threshold", Type: typeReal, Min: fptr(0), Default: 0.5, Description: "spread change rate per snapshot"},
		{Name: "persistence_threshold_seconds", Type: typeReal, Min: fptr(0), Default: 30.0, Description: "widened-regime duration before a narrowing buy"},
		{Name: "min_depth_reduction_pct", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.5, Description: "depth fraction of rolling mean marking withdrawal"},
		{Name: "base_confidence", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.70, Description: "confidence floor"},
		{Name: "lookback_ticks", Type: typeInt, Min: fptr(2), Max: fptr(500), Default: 20, Description: "spread snapshots retained per symbol"},
		{Name: "min_signal_interval_seconds", Type: typeReal, Min: fptr(0), Default: 60.0, Description: "per-symbol signal rate limit"},
	},
	IDIcebergDetector: {
		{Name: "min_refill_count", Type: typeInt, Min: fptr(1), Max: fptr(50), Default: 3, Description: "refills required before firing"},
		{Name: "refill_speed_threshold_seconds", Type: typeReal, Min: fptr(0), Default: 5.0, Description: "max gap between depletion and refill"},
		{Name: "consistency_threshold", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.1, Description: "coefficient-of-variation ceiling for consistent size"},
		{Name: "persistence_threshold_seconds", Type: typeReal, Min: fptr(0), Default: 120.0, Description: "continuous presence marking an anchor"},
		{Name: "level_proximity_pct", Type: typeReal, Min: fptr(0), Max: fptr(10), Default: 1.0, Description: "max distance of level from mid, percent"},
		{Name: "base_confidence", Type: typeReal, Min: fptr(0), Max: fptr(1), Default: 0.70, Description: "confidence floor for consistent size"},
		{Name: "history_window_seconds", Type: typeInt, Min: fptr(10), Max: fptr(86400), Default: 300, Description: "level-history sliding window"},
		{Name: "max_symbols", Type: typeInt, Min: fptr(1), Max: fptr(10000), Default: 100, Description: "tracked symbol cap"},
		{Name: "min_signal_interval_seconds", Type: typeReal, Min: fptr(0), Default: 120.0, Description: "per-symbol signal rate limit"},
	},
}

var envPrefixes = map[string]string{
	IDOrderBookSkew:   "ORDERBOOK_SKEW_",
	IDTradeMomentum:   "TRADE_MOMENTUM_",
	IDTickerVelocity:  "TICKER_VELOCITY_",
	IDSpreadLiquidity: "SPREAD_LIQUIDITY_",
	IDIcebergDetector: "ICEBERG_DETECTOR_",
}

// KnownIDs returns the identifiers with registered schemas.
func KnownIDs() []string {
	return []string{IDOrderBookSkew, IDTradeMomentum, IDTickerVelocity, IDSpreadLiquidity, IDIcebergDetector}
}

// Schema returns the parameter schema for a strategy.
func Schema(strategyID string) ([]ParameterSchema, bool) {
	s, ok := schemas[strategyID]
	return s, ok
}

// Defaults returns the compiled default parameters for a strategy.
func Defaults(strategyID string) (Params, bool) {
	schema, ok := schemas[strategyID]
	if !ok {
		return nil, false
	}
	params := make(Params, len(schema))
	for _, p := range schema {
		params[p.Name] = p.Default
	}
	return params, true
}

// EnvParams reads per-strategy overrides from the environment. Only
// parameters with a set, well-formed variable appear in the result.
func EnvParams(strategyID string) Params {
	schema, ok := schemas[strategyID]
	if !ok {
		return nil
	}
	prefix := envPrefixes[strategyID]
	params := make(Params)
	for _, p := range schema {
		raw, ok := os.LookupEnv(prefix + strings.ToUpper(p.Name))
		if !ok || raw == "" {
			continue
		}
		switch p.Type {
		case typeInt:
			if v, err := strconv.Atoi(raw); err == nil {
				params[p.Name] = v
			}
		case typeReal:
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				params[p.Name] = v
			}
		case typeBool:
			if v, err := strconv.ParseBool(raw); err == nil {
				params[p.Name] = v
			}
		default:
			params[p.Name] = raw
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// ValidateParams checks a parameter map against a strategy's schema. Unknown
// parameters, type mismatches, and range violations are all collected into a
// single validation error listing every offending field.
func ValidateParams(strategyID string, params map[string]any) error {
	schema, ok := schemas[strategyID]
	if !ok {
		return errs.New("strategy", errs.CodeNotFound,
			errs.WithMessage("unknown strategy"),
			errs.WithField("strategy_id", strategyID),
		)
	}
	byName := make(map[string]ParameterSchema, len(schema))
	for _, p := range schema {
		byName[p.Name] = p
	}

	fields := make(map[string]string)
	for name, value := range params {
		spec, ok := byName[name]
		if !ok {
			fields[name] = "unknown parameter"
			continue
		}
		if msg := checkValue(spec, value); msg != "" {
			fields[name] = msg
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return errs.New("strategy", errs.CodeValidation,
		errs.WithMessage("invalid parameters"),
		errs.WithField("strategy_id", strategyID),
		errs.WithFields(fields),
	)
}

func checkValue(spec ParameterSchema, value any) string {
	switch spec.Type {
	case typeInt:
		n, ok := asInt(value)
		if !ok {
			return "expected an integer"
		}
		return checkRange(spec, float64(n))
	case typeReal:
		f, ok := asFloat(value)
		if !ok {
			return "expected a number"
		}
		return checkRange(spec, f)
	case typeBool:
		if _, ok := value.(bool); !ok {
			return "expected a boolean"
		}
	case "enum":
		s, ok := value.(string)
		if !ok {
			return "expected a string"
		}
		for _, allowed := range spec.Allowed {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(spec.Allowed, ", "))
	}
	return ""
}

func checkRange(spec ParameterSchema, v float64) string {
	if spec.Min != nil && v < *spec.Min {
		return fmt.Sprintf("must be >= %g", *spec.Min)
	}
	if spec.Max != nil && v > *spec.Max {
		return fmt.Sprintf("must be <= %g", *spec.Max)
	}
	return ""
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
