// Package strategy hosts the market-microstructure strategies and the
// registry the dispatch loop fans events out to. Strategies perform no I/O:
// they read resolved parameters captured at dispatch time and return at most
// one signal per event.
package strategy

import (
	"sort"
	"strconv"

	"github.com/petrosa/realtime-strategies/internal/schema"
)

// Params is the resolved parameter map handed to a strategy for one event.
// Values come from the configuration chain already merged; strategies never
// consult configuration sources directly.
type Params map[string]any

// Float reads a numeric parameter, falling back when absent or mistyped.
func (p Params) Float(name string, fallback float64) float64 {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Int reads an integer parameter, falling back when absent or mistyped.
func (p Params) Int(name string, fallback int) int {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return fallback
}

// Bool reads a boolean parameter, falling back when absent or mistyped.
func (p Params) Bool(name string, fallback bool) bool {
	v, ok := p[name]
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return fallback
}

// String reads a string parameter, falling back when absent or mistyped.
func (p Params) String(name string, fallback string) string {
	if v, ok := p[name].(string); ok {
		return v
	}
	return fallback
}

// Clone returns an independent copy of the parameter map.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Strategy is the common surface every strategy exposes.
type Strategy interface {
	// ID is the stable identifier used for configuration and metrics.
	ID() string
	// Name is the human-readable strategy name.
	Name() string
	// Kind is the stream kind the strategy consumes.
	Kind() schema.StreamKind
}

// DepthStrategy consumes order book snapshots.
type DepthStrategy interface {
	Strategy
	OnDepth(depth *schema.DepthUpdate, params Params) (*schema.Signal, error)
}

// TradeStrategy consumes individual trades.
type TradeStrategy interface {
	Strategy
	OnTrade(trade *schema.TradeData, params Params) (*schema.Signal, error)
}

// TickerStrategy consumes rolling ticker updates.
type TickerStrategy interface {
	Strategy
	OnTicker(ticker *schema.TickerData, params Params) (*schema.Signal, error)
}

// Registry holds the registered strategies in dispatch order.
type Registry struct {
	ordered []Strategy
	byID    map[string]Strategy
}

// NewRegistry constructs a registry preserving the given dispatch order.
// Duplicate identifiers keep the first registration.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{
		ordered: make([]Strategy, 0, len(strategies)),
		byID:    make(map[string]Strategy, len(strategies)),
	}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if _, exists := r.byID[s.ID()]; exists {
			continue
		}
		r.ordered = append(r.ordered, s)
		r.byID[s.ID()] = s
	}
	return r
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (Strategy, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// All returns the strategies in dispatch order.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ForKind returns the strategies consuming the given stream kind, in
// dispatch order.
func (r *Registry) ForKind(kind schema.StreamKind) []Strategy {
	out := make([]Strategy, 0, len(r.ordered))
	for _, s := range r.ordered {
		if s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}

// IDs returns the sorted identifiers of all registered strategies.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
