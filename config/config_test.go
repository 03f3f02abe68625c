package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	cfg := Default()
	if cfg.Environment != EnvProd {
		t.Fatalf("expected production default, got %s", cfg.Environment)
	}
	if cfg.Bus.ConsumerTopic != "binance.websocket.data" {
		t.Fatalf("unexpected consumer topic %q", cfg.Bus.ConsumerTopic)
	}
	if cfg.Bus.PublisherTopic != "signals.trading" {
		t.Fatalf("unexpected publisher topic %q", cfg.Bus.PublisherTopic)
	}
	if cfg.Bus.QueueGroup != "realtime-strategies-group" {
		t.Fatalf("unexpected queue group %q", cfg.Bus.QueueGroup)
	}
	if cfg.Strategies.ConfigCacheTTL != 60*time.Second {
		t.Fatalf("unexpected cache TTL %s", cfg.Strategies.ConfigCacheTTL)
	}
	if !cfg.Strategies.IcebergEnabled {
		t.Fatal("expected iceberg detector enabled by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("NATS_CONSUMER_GROUP", "group-a")
	t.Setenv("MONGODB_TIMEOUT_MS", "2500")
	t.Setenv("HEARTBEAT_ENABLED", "false")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("STRATEGY_ENABLED_TICKER_VELOCITY", "false")

	cfg := FromEnv()
	if cfg.Environment != EnvDev {
		t.Fatalf("expected dev environment, got %s", cfg.Environment)
	}
	if cfg.Bus.URL != "nats://bus:4222" {
		t.Fatalf("unexpected bus url %q", cfg.Bus.URL)
	}
	if cfg.Bus.QueueGroup != "group-a" {
		t.Fatalf("unexpected queue group %q", cfg.Bus.QueueGroup)
	}
	if cfg.Mongo.Timeout != 2500*time.Millisecond {
		t.Fatalf("unexpected mongo timeout %s", cfg.Mongo.Timeout)
	}
	if cfg.Heartbeat.Enabled {
		t.Fatal("expected heartbeat disabled")
	}
	if cfg.Breaker.FailureThreshold != 9 {
		t.Fatalf("unexpected breaker threshold %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Strategies.TickerVelocityEnabled {
		t.Fatal("expected ticker velocity disabled")
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MONGODB_TIMEOUT_MS", "not-a-number")
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "-5")

	cfg := FromEnv()
	if cfg.Mongo.Timeout != Default().Mongo.Timeout {
		t.Fatalf("malformed timeout should keep default, got %s", cfg.Mongo.Timeout)
	}
	if cfg.Heartbeat.Interval != Default().Heartbeat.Interval {
		t.Fatalf("negative interval should keep default, got %s", cfg.Heartbeat.Interval)
	}
}

func TestApplyOptions(t *testing.T) {
	cfg := Apply(Default(),
		WithEnvironment(EnvStaging),
		WithBusURL("nats://other:4222"),
		WithTopics("events.in", "signals.out"),
		WithQueueGroup("group-b"),
		WithMongo("mongodb://db:27017", "signals"),
		WithHTTPPort(9090),
		nil,
	)
	if cfg.Environment != EnvStaging {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.Bus.ConsumerTopic != "events.in" || cfg.Bus.PublisherTopic != "signals.out" {
		t.Fatalf("unexpected topics %q %q", cfg.Bus.ConsumerTopic, cfg.Bus.PublisherTopic)
	}
	if cfg.Mongo.Database != "signals" {
		t.Fatalf("unexpected database %q", cfg.Mongo.Database)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("unexpected port %d", cfg.HTTP.Port)
	}
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := Default()
	_ = Apply(base, WithBusURL("nats://mutated:4222"))
	if base.Bus.URL != Default().Bus.URL {
		t.Fatalf("base settings mutated: %q", base.Bus.URL)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("environment: dev\nbus:\n  url: nats://file:4222\n  queue_group: file-group\nhttp:\n  port: 7070\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadFile(Default(), path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Environment != EnvDev {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.Bus.URL != "nats://file:4222" {
		t.Fatalf("unexpected bus url %q", cfg.Bus.URL)
	}
	if cfg.Bus.QueueGroup != "file-group" {
		t.Fatalf("unexpected queue group %q", cfg.Bus.QueueGroup)
	}
	if cfg.HTTP.Port != 7070 {
		t.Fatalf("unexpected port %d", cfg.HTTP.Port)
	}
	// Untouched values keep defaults.
	if cfg.Bus.ConsumerTopic != Default().Bus.ConsumerTopic {
		t.Fatalf("consumer topic should keep default, got %q", cfg.Bus.ConsumerTopic)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(Default(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
