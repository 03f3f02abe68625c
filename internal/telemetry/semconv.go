// Package telemetry provides the engine's metric instruments and the bridge
// onto the global observability collector.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys follow OpenTelemetry naming: namespace.attribute_name.
const (
	AttrStrategy    = attribute.Key("strategy")
	AttrSymbol      = attribute.Key("symbol")
	AttrStreamKind  = attribute.Key("stream.kind")
	AttrResult      = attribute.Key("result")
	AttrReason      = attribute.Key("reason")
	AttrEnvironment = attribute.Key("environment")
	AttrBreaker     = attribute.Key("breaker")
)

// Instrument names exported by the engine.
const (
	MetricMessagesProcessed = "engine.messages.processed"
	MetricParseErrors       = "engine.messages.parse_errors"
	MetricUnknownStreams    = "engine.messages.unknown_stream"
	MetricValidationErrors  = "engine.messages.validation_errors"
	MetricStrategyRuns      = "engine.strategy.executions"
	MetricStrategyErrors    = "engine.strategy.errors"
	MetricStrategyLatency   = "engine.strategy.latency"
	MetricSignalsGenerated  = "engine.signals.generated"
	MetricSignalsPublished  = "engine.signals.published"
	MetricPublishErrors     = "engine.publish.errors"
	MetricPublishDrops      = "engine.publish.drops"
	MetricBreakerState      = "engine.breaker.state"
)

// StrategyAttributes returns the common attribute set for per-strategy metrics.
func StrategyAttributes(environment, strategy, symbol string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStrategy.String(strategy),
		AttrSymbol.String(symbol),
	}
}

// StreamAttributes returns the common attribute set for ingest metrics.
func StreamAttributes(environment, streamKind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStreamKind.String(streamKind),
	}
}

// ResultAttributes returns attributes for operations classified by outcome.
func ResultAttributes(environment, result, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrResult.String(result),
		AttrReason.String(reason),
	}
}
