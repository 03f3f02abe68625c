package configstore

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/petrosa/realtime-strategies/errs"
	"github.com/petrosa/realtime-strategies/internal/breaker"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/strategy"
)

// Resolution sources, lowest to highest priority.
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceGlobal  = "db-global"
	SourceSymbol  = "db-symbol"
)

// Resolved is the effective configuration for one (strategy, symbol) pair.
type Resolved struct {
	StrategyID string          `json:"strategy_id"`
	Symbol     string          `json:"symbol,omitempty"`
	Parameters strategy.Params `json:"parameters"`
	Source     string          `json:"source"`
	Version    int             `json:"version"`
	IsOverride bool            `json:"is_override"`
}

// StrategyInfo summarizes one registered strategy for the listing API.
type StrategyInfo struct {
	StrategyID      string `json:"strategy_id"`
	HasGlobal       bool   `json:"has_global"`
	SymbolOverrides int    `json:"symbol_overrides"`
}

// Manager resolves parameters through the priority chain: cache, symbol
// override, global config, environment, compiled defaults. Reads never fail;
// an unreachable store falls through to the lower layers.
type Manager struct {
	store Store
	brk   *breaker.Breaker
	cache *gocache.Cache
	ttl   time.Duration
}

// NewManager constructs a manager. A nil store disables the document layers
// and leaves environment and defaults in play.
func NewManager(store Store, ttl time.Duration, brk *breaker.Breaker) *Manager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Manager{
		store: store,
		brk:   brk,
		cache: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func cacheKey(strategyID, symbol string) string {
	if symbol == "" {
		return strategyID + "|global"
	}
	return strategyID + "|" + symbol
}

// Get returns the resolved configuration. It never errors: each missing or
// unreachable layer falls through to the next.
func (m *Manager) Get(ctx context.Context, strategyID, symbol string) Resolved {
	key := cacheKey(strategyID, symbol)
	if cached, ok := m.cache.Get(key); ok {
		if resolved, ok := cached.(Resolved); ok {
			return resolved
		}
	}
	resolved := m.resolve(ctx, strategyID, symbol)
	m.cache.Set(key, resolved, gocache.DefaultExpiration)
	return resolved
}

func (m *Manager) resolve(ctx context.Context, strategyID, symbol string) Resolved {
	params, ok := strategy.Defaults(strategyID)
	if !ok {
		params = strategy.Params{}
	}
	resolved := Resolved{
		StrategyID: strategyID,
		Symbol:     symbol,
		Parameters: params.Clone(),
		Source:     SourceDefault,
		Version:    0,
		IsOverride: false,
	}

	if env := strategy.EnvParams(strategyID); len(env) > 0 {
		overlay(resolved.Parameters, env)
		resolved.Source = SourceEnv
	}

	if global := m.fetch(ctx, strategyID, ""); global != nil {
		overlay(resolved.Parameters, global.Parameters)
		resolved.Source = SourceGlobal
		resolved.Version = global.Version
	}
	if symbol != "" {
		if override := m.fetch(ctx, strategyID, symbol); override != nil {
			overlay(resolved.Parameters, override.Parameters)
			resolved.Source = SourceSymbol
			resolved.Version = override.Version
			resolved.IsOverride = true
		}
	}
	return resolved
}

// fetch reads one stored config, treating store failures as absence.
func (m *Manager) fetch(ctx context.Context, strategyID, symbol string) *StoredConfig {
	if m.store == nil {
		return nil
	}
	var cfg *StoredConfig
	err := m.guard(func() error {
		var err error
		cfg, err = m.store.Get(ctx, strategyID, symbol)
		return err
	})
	if err != nil {
		observability.Log().Warn("config read fell through",
			observability.Field{Key: "strategy_id", Value: strategyID},
			observability.Field{Key: "symbol", Value: symbol},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}
	return cfg
}

// Set validates and persists parameters, appends an audit record, and
// invalidates the affected cache entries. With validateOnly the parameters
// are checked and nothing changes.
func (m *Manager) Set(ctx context.Context, strategyID, symbol string, params map[string]any, changedBy, reason string, validateOnly bool) (*StoredConfig, error) {
	if changedBy == "" {
		return nil, errs.New("configstore", errs.CodeValidation, errs.WithMessage("changed_by is required"))
	}
	if err := strategy.ValidateParams(strategyID, params); err != nil {
		return nil, err
	}
	if validateOnly {
		return nil, nil
	}
	if m.store == nil {
		return nil, errs.New("configstore", errs.CodeUnavailable, errs.WithMessage("document store not configured"))
	}

	var old *StoredConfig
	var persisted *StoredConfig
	err := m.guard(func() error {
		var err error
		old, err = m.store.Get(ctx, strategyID, symbol)
		if err != nil {
			return err
		}
		persisted, err = m.store.Upsert(ctx, StoredConfig{
			StrategyID: strategyID,
			Symbol:     symbol,
			Parameters: params,
			Version:    0,
			UpdatedAt:  time.Now().UTC(),
			UpdatedBy:  changedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	action := "create"
	var oldParams map[string]any
	if old != nil {
		action = "update"
		oldParams = old.Parameters
	}
	m.audit(ctx, AuditRecord{
		StrategyID:    strategyID,
		Symbol:        symbol,
		Action:        action,
		OldParameters: oldParams,
		NewParameters: params,
		ChangedBy:     changedBy,
		ChangedAt:     time.Now().UTC(),
		Reason:        reason,
	})
	m.invalidate(strategyID, symbol)
	return persisted, nil
}

// Delete removes a stored config, appends an audit record, and invalidates
// the affected cache entries.
func (m *Manager) Delete(ctx context.Context, strategyID, symbol, changedBy, reason string) error {
	if changedBy == "" {
		return errs.New("configstore", errs.CodeValidation, errs.WithMessage("changed_by is required"))
	}
	if m.store == nil {
		return errs.New("configstore", errs.CodeUnavailable, errs.WithMessage("document store not configured"))
	}
	var old *StoredConfig
	err := m.guard(func() error {
		var err error
		old, err = m.store.Delete(ctx, strategyID, symbol)
		return err
	})
	if err != nil {
		return err
	}
	if old == nil {
		return errs.New("configstore", errs.CodeNotFound,
			errs.WithMessage("no stored config"),
			errs.WithField("strategy_id", strategyID),
			errs.WithField("symbol", symbol),
		)
	}
	m.audit(ctx, AuditRecord{
		StrategyID:    strategyID,
		Symbol:        symbol,
		Action:        "delete",
		OldParameters: old.Parameters,
		NewParameters: nil,
		ChangedBy:     changedBy,
		ChangedAt:     time.Now().UTC(),
		Reason:        reason,
	})
	m.invalidate(strategyID, symbol)
	return nil
}

// ListStrategies enumerates the known strategies with override counts.
func (m *Manager) ListStrategies(ctx context.Context) []StrategyInfo {
	ids := strategy.KnownIDs()
	out := make([]StrategyInfo, 0, len(ids))
	for _, id := range ids {
		info := StrategyInfo{StrategyID: id, HasGlobal: false, SymbolOverrides: 0}
		if m.store != nil {
			err := m.guard(func() error {
				global, symbols, err := m.store.CountOverrides(ctx, id)
				if err != nil {
					return err
				}
				info.HasGlobal = global > 0
				info.SymbolOverrides = symbols
				return nil
			})
			if err != nil {
				observability.Log().Warn("override count unavailable",
					observability.Field{Key: "strategy_id", Value: id},
					observability.Field{Key: "error", Value: err.Error()},
				)
			}
		}
		out = append(out, info)
	}
	return out
}

// Audit returns the change history, newest first.
func (m *Manager) Audit(ctx context.Context, strategyID, symbol string, limit int) ([]AuditRecord, error) {
	if m.store == nil {
		return nil, errs.New("configstore", errs.CodeUnavailable, errs.WithMessage("document store not configured"))
	}
	var records []AuditRecord
	err := m.guard(func() error {
		var err error
		records, err = m.store.Audit(ctx, strategyID, symbol, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Refresh drops every cached resolution.
func (m *Manager) Refresh() {
	m.cache.Flush()
}

// invalidate drops the cache entries a write affects. A global change can
// shadow any symbol resolution of the strategy, so the whole prefix goes.
func (m *Manager) invalidate(strategyID, symbol string) {
	if symbol != "" {
		m.cache.Delete(cacheKey(strategyID, symbol))
		return
	}
	prefix := strategyID + "|"
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
		}
	}
}

func (m *Manager) audit(ctx context.Context, rec AuditRecord) {
	err := m.guard(func() error {
		return m.store.AppendAudit(ctx, rec)
	})
	if err != nil {
		observability.Log().Error("audit write failed",
			observability.Field{Key: "strategy_id", Value: rec.StrategyID},
			observability.Field{Key: "action", Value: rec.Action},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (m *Manager) guard(fn func() error) error {
	if m.brk == nil {
		return fn()
	}
	return m.brk.Do(fn)
}

func overlay(dst strategy.Params, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
