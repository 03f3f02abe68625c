// Package heartbeat periodically logs engine throughput so a quiet service
// is distinguishable from a dead one.
package heartbeat

import (
	"context"
	"time"

	"github.com/petrosa/realtime-strategies/internal/observability"
)

// Settings controls the emitter.
type Settings struct {
	Enabled              bool
	Interval             time.Duration
	IncludeDetailedStats bool
}

// Heartbeat emits a periodic stats line with per-interval deltas.
type Heartbeat struct {
	settings Settings
	stats    *observability.EngineStats
	breakers func() map[string]string
	started  time.Time
	last     observability.EngineStatsSnapshot
}

// New constructs a heartbeat. The breakers callback may be nil.
func New(settings Settings, stats *observability.EngineStats, breakers func() map[string]string) *Heartbeat {
	if settings.Interval <= 0 {
		settings.Interval = 60 * time.Second
	}
	return &Heartbeat{
		settings: settings,
		stats:    stats,
		breakers: breakers,
		started:  time.Now(),
		last:     observability.EngineStatsSnapshot{},
	}
}

// Run emits until the context is cancelled. It returns immediately when the
// heartbeat is disabled.
func (h *Heartbeat) Run(ctx context.Context) {
	if !h.settings.Enabled {
		return
	}
	ticker := time.NewTicker(h.settings.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Emit()
		}
	}
}

// Emit logs one heartbeat line from the current counters.
func (h *Heartbeat) Emit() {
	snap := h.stats.Snapshot()
	intervalSeconds := h.settings.Interval.Seconds()

	processedDelta := snap.MessagesProcessed - h.last.MessagesProcessed
	publishedDelta := snap.SignalsPublished - h.last.SignalsPublished

	fields := []observability.Field{
		{Key: "uptime_seconds", Value: int64(time.Since(h.started).Seconds())},
		{Key: "messages_processed", Value: snap.MessagesProcessed},
		{Key: "messages_per_second", Value: float64(processedDelta) / intervalSeconds},
		{Key: "signals_published", Value: snap.SignalsPublished},
		{Key: "signals_per_second", Value: float64(publishedDelta) / intervalSeconds},
	}
	if h.settings.IncludeDetailedStats {
		fields = append(fields,
			observability.Field{Key: "parse_errors", Value: snap.ParseErrors},
			observability.Field{Key: "unknown_streams", Value: snap.UnknownStreams},
			observability.Field{Key: "validation_errors", Value: snap.ValidationErrors},
			observability.Field{Key: "publish_errors", Value: snap.PublishErrors},
			observability.Field{Key: "publish_drops", Value: snap.PublishDrops},
			observability.Field{Key: "strategy_errors", Value: snap.StrategyErrors},
			observability.Field{Key: "signals_generated", Value: snap.SignalsGenerated},
		)
	}
	if h.breakers != nil {
		fields = append(fields, observability.Field{Key: "breakers", Value: h.breakers()})
	}

	observability.Log().Info("heartbeat", fields...)
	h.last = snap
}
