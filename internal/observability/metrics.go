package observability

import "sync"

// Metrics provides counters, gauges, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// EngineStatsSnapshot captures engine-wide runtime counters for reporting.
type EngineStatsSnapshot struct {
	MessagesProcessed int64            `json:"messages_processed"`
	ParseErrors       int64            `json:"parse_errors"`
	UnknownStreams    int64            `json:"unknown_streams"`
	ValidationErrors  int64            `json:"validation_errors"`
	StrategyErrors    map[string]int64 `json:"strategy_errors"`
	SignalsGenerated  map[string]int64 `json:"signals_generated"`
	SignalsPublished  int64            `json:"signals_published"`
	PublishErrors     int64            `json:"publish_errors"`
	PublishDrops      int64            `json:"publish_drops"`
}

// EngineStats accumulates engine counters in-memory for periodic export.
type EngineStats struct {
	mu    sync.Mutex
	stats EngineStatsSnapshot
}

// NewEngineStats constructs a stats accumulator with empty maps.
func NewEngineStats() *EngineStats {
	stats := new(EngineStats)
	stats.stats = EngineStatsSnapshot{
		MessagesProcessed: 0,
		ParseErrors:       0,
		UnknownStreams:    0,
		ValidationErrors:  0,
		StrategyErrors:    make(map[string]int64),
		SignalsGenerated:  make(map[string]int64),
		SignalsPublished:  0,
		PublishErrors:     0,
		PublishDrops:      0,
	}
	return stats
}

// RecordMessage increments the processed-message counter.
func (s *EngineStats) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.MessagesProcessed++
}

// RecordParseError increments the parse-failure counter.
func (s *EngineStats) RecordParseError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ParseErrors++
}

// RecordUnknownStream increments the unknown-stream counter.
func (s *EngineStats) RecordUnknownStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.UnknownStreams++
}

// RecordValidationError increments the event-validation failure counter.
func (s *EngineStats) RecordValidationError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ValidationErrors++
}

// RecordStrategyError increments the error counter for a strategy.
func (s *EngineStats) RecordStrategyError(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.StrategyErrors[strategy]++
}

// RecordSignal increments the generated-signal counter for a strategy.
func (s *EngineStats) RecordSignal(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SignalsGenerated[strategy]++
}

// RecordPublished increments the published-signal counter.
func (s *EngineStats) RecordPublished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.SignalsPublished++
}

// RecordPublishError increments the transient publish failure counter.
func (s *EngineStats) RecordPublishError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.PublishErrors++
}

// RecordPublishDrop increments the dropped-after-retries counter.
func (s *EngineStats) RecordPublishDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.PublishDrops++
}

// Snapshot copies the current engine stats for reporting.
func (s *EngineStats) Snapshot() EngineStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := EngineStatsSnapshot{
		MessagesProcessed: s.stats.MessagesProcessed,
		ParseErrors:       s.stats.ParseErrors,
		UnknownStreams:    s.stats.UnknownStreams,
		ValidationErrors:  s.stats.ValidationErrors,
		StrategyErrors:    make(map[string]int64, len(s.stats.StrategyErrors)),
		SignalsGenerated:  make(map[string]int64, len(s.stats.SignalsGenerated)),
		SignalsPublished:  s.stats.SignalsPublished,
		PublishErrors:     s.stats.PublishErrors,
		PublishDrops:      s.stats.PublishDrops,
	}
	for k, v := range s.stats.StrategyErrors {
		snapshot.StrategyErrors[k] = v
	}
	for k, v := range s.stats.SignalsGenerated {
		snapshot.SignalsGenerated[k] = v
	}
	return snapshot
}
