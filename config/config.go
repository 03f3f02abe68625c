// Package config centralises runtime configuration for the signal engine.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where the service operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "production"
)

// BusSettings configures the message bus connection and topics.
type BusSettings struct {
	URL            string        `yaml:"url"`
	ConsumerTopic  string        `yaml:"consumer_topic"`
	PublisherTopic string        `yaml:"publisher_topic"`
	ConsumerName   string        `yaml:"consumer_name"`
	QueueGroup     string        `yaml:"queue_group"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// MongoSettings configures the backing document store.
type MongoSettings struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HTTPSettings configures the REST surface.
type HTTPSettings struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// HeartbeatSettings configures the periodic stats emitter.
type HeartbeatSettings struct {
	Enabled              bool          `yaml:"enabled"`
	Interval             time.Duration `yaml:"interval"`
	IncludeDetailedStats bool          `yaml:"include_detailed_stats"`
}

// BreakerSettings configures the circuit breakers guarding dispatch and publish.
type BreakerSettings struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// PublisherSettings configures outbound signal publishing.
type PublisherSettings struct {
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// StrategySettings toggles individual strategies and bounds config refresh.
type StrategySettings struct {
	OrderBookSkewEnabled   bool          `yaml:"orderbook_skew_enabled"`
	TradeMomentumEnabled   bool          `yaml:"trade_momentum_enabled"`
	TickerVelocityEnabled  bool          `yaml:"ticker_velocity_enabled"`
	SpreadLiquidityEnabled bool          `yaml:"spread_liquidity_enabled"`
	IcebergEnabled         bool          `yaml:"iceberg_detector_enabled"`
	ConfigCacheTTL         time.Duration `yaml:"config_cache_ttl"`
}

// Settings contains the configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment Environment       `yaml:"environment"`
	Bus         BusSettings       `yaml:"bus"`
	Mongo       MongoSettings     `yaml:"mongo"`
	HTTP        HTTPSettings      `yaml:"http"`
	Heartbeat   HeartbeatSettings `yaml:"heartbeat"`
	Breaker     BreakerSettings   `yaml:"breaker"`
	Publisher   PublisherSettings `yaml:"publisher"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Strategies  StrategySettings  `yaml:"strategies"`
}

// Default returns the default configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Bus: BusSettings{
			URL:            "nats://localhost:4222",
			ConsumerTopic:  "binance.websocket.data",
			PublisherTopic: "signals.trading",
			ConsumerName:   "realtime-strategies-consumer",
			QueueGroup:     "realtime-strategies-group",
			ConnectTimeout: 10 * time.Second,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
		},
		Mongo: MongoSettings{
			URI:      "mongodb://localhost:27017",
			Database: "petrosa",
			Timeout:  5 * time.Second,
		},
		HTTP: HTTPSettings{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Heartbeat: HeartbeatSettings{
			Enabled:              true,
			Interval:             60 * time.Second,
			IncludeDetailedStats: true,
		},
		Breaker: BreakerSettings{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Publisher: PublisherSettings{
			MaxRetries:     3,
			RetryDelay:     time.Second,
			PublishTimeout: 5 * time.Second,
			RatePerSecond:  200,
			Burst:          50,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "realtime-strategies",
		},
		Strategies: StrategySettings{
			OrderBookSkewEnabled:   true,
			TradeMomentumEnabled:   true,
			TickerVelocityEnabled:  true,
			SpreadLiquidityEnabled: true,
			IcebergEnabled:         true,
			ConfigCacheTTL:         60 * time.Second,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("ENVIRONMENT")); v != "" {
		cfg.Environment = Environment(strings.ToLower(v))
	}

	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		cfg.Bus.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_CONSUMER_TOPIC")); v != "" {
		cfg.Bus.ConsumerTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_PUBLISHER_TOPIC")); v != "" {
		cfg.Bus.PublisherTopic = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_CONSUMER_NAME")); v != "" {
		cfg.Bus.ConsumerName = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_CONSUMER_GROUP")); v != "" {
		cfg.Bus.QueueGroup = v
	}

	if v := strings.TrimSpace(os.Getenv("MONGODB_URI")); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(os.Getenv("MONGODB_DATABASE")); v != "" {
		cfg.Mongo.Database = v
	}
	if ms, ok := envInt("MONGODB_TIMEOUT_MS"); ok && ms > 0 {
		cfg.Mongo.Timeout = time.Duration(ms) * time.Millisecond
	}

	if port, ok := envInt("HEALTH_CHECK_PORT"); ok && port > 0 {
		cfg.HTTP.Port = port
	}

	if b, ok := envBool("HEARTBEAT_ENABLED"); ok {
		cfg.Heartbeat.Enabled = b
	}
	if secs, ok := envInt("HEARTBEAT_INTERVAL_SECONDS"); ok && secs > 0 {
		cfg.Heartbeat.Interval = time.Duration(secs) * time.Second
	}
	if b, ok := envBool("HEARTBEAT_INCLUDE_DETAILED_STATS"); ok {
		cfg.Heartbeat.IncludeDetailedStats = b
	}

	if n, ok := envInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); ok && n > 0 {
		cfg.Breaker.FailureThreshold = uint32(n)
	}
	if secs, ok := envInt("CIRCUIT_BREAKER_RECOVERY_TIMEOUT"); ok && secs > 0 {
		cfg.Breaker.RecoveryTimeout = time.Duration(secs) * time.Second
	}

	if n, ok := envInt("MESSAGE_MAX_RETRIES"); ok && n >= 0 {
		cfg.Publisher.MaxRetries = n
	}
	if f, ok := envFloat("MESSAGE_RETRY_DELAY"); ok && f > 0 {
		cfg.Publisher.RetryDelay = time.Duration(f * float64(time.Second))
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}

	if b, ok := envBool("STRATEGY_ENABLED_ORDERBOOK_SKEW"); ok {
		cfg.Strategies.OrderBookSkewEnabled = b
	}
	if b, ok := envBool("STRATEGY_ENABLED_TRADE_MOMENTUM"); ok {
		cfg.Strategies.TradeMomentumEnabled = b
	}
	if b, ok := envBool("STRATEGY_ENABLED_TICKER_VELOCITY"); ok {
		cfg.Strategies.TickerVelocityEnabled = b
	}
	if b, ok := envBool("STRATEGY_ENABLED_SPREAD_LIQUIDITY"); ok {
		cfg.Strategies.SpreadLiquidityEnabled = b
	}
	if b, ok := envBool("STRATEGY_ENABLED_ICEBERG_DETECTOR"); ok {
		cfg.Strategies.IcebergEnabled = b
	}
	if secs, ok := envInt("CONFIG_CACHE_TTL_SECONDS"); ok && secs > 0 {
		cfg.Strategies.ConfigCacheTTL = time.Duration(secs) * time.Second
	}

	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithBusURL overrides the bus connection URL.
func WithBusURL(url string) Option {
	url = strings.TrimSpace(url)
	return func(s *Settings) {
		if url != "" {
			s.Bus.URL = url
		}
	}
}

// WithTopics overrides the consumer and publisher topics.
func WithTopics(consumer, publisher string) Option {
	consumer = strings.TrimSpace(consumer)
	publisher = strings.TrimSpace(publisher)
	return func(s *Settings) {
		if consumer != "" {
			s.Bus.ConsumerTopic = consumer
		}
		if publisher != "" {
			s.Bus.PublisherTopic = publisher
		}
	}
}

// WithQueueGroup overrides the queue-group name used for load balancing.
func WithQueueGroup(group string) Option {
	group = strings.TrimSpace(group)
	return func(s *Settings) {
		if group != "" {
			s.Bus.QueueGroup = group
		}
	}
}

// WithMongo overrides the document store target.
func WithMongo(uri, database string) Option {
	uri = strings.TrimSpace(uri)
	database = strings.TrimSpace(database)
	return func(s *Settings) {
		if uri != "" {
			s.Mongo.URI = uri
		}
		if database != "" {
			s.Mongo.Database = database
		}
	}
}

// WithHTTPPort overrides the REST surface port.
func WithHTTPPort(port int) Option {
	return func(s *Settings) {
		if port > 0 {
			s.HTTP.Port = port
		}
	}
}

func envInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	return raw == "true" || raw == "1", true
}
