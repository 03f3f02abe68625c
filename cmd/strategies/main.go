// Command strategies launches the realtime signal engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/petrosa/realtime-strategies/config"
	"github.com/petrosa/realtime-strategies/internal/adapter"
	"github.com/petrosa/realtime-strategies/internal/breaker"
	"github.com/petrosa/realtime-strategies/internal/configstore"
	"github.com/petrosa/realtime-strategies/internal/consumer"
	"github.com/petrosa/realtime-strategies/internal/depth"
	"github.com/petrosa/realtime-strategies/internal/heartbeat"
	"github.com/petrosa/realtime-strategies/internal/observability"
	"github.com/petrosa/realtime-strategies/internal/publisher"
	httpserver "github.com/petrosa/realtime-strategies/internal/server/http"
	"github.com/petrosa/realtime-strategies/internal/strategy"
	"github.com/petrosa/realtime-strategies/internal/telemetry"
	libtelemetry "github.com/petrosa/realtime-strategies/lib/telemetry"
)

const (
	shutdownTimeout     = 30 * time.Second
	httpShutdownTimeout = 5 * time.Second
	sweeperInterval     = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "strategies: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLogger, err := buildZap(cfg.Environment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger := observability.NewZapLogger(zapLogger)
	observability.SetLogger(logger)
	defer func() {
		_ = logger.Sync()
	}()

	providers, telemetryShutdown, err := libtelemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = telemetryShutdown(shutdownCtx)
	}()
	meter := providers.MeterProvider.Meter("realtime-strategies")
	observability.SetMetrics(telemetry.NewOTelMetrics(meter))

	observability.Log().Info("engine starting",
		observability.Field{Key: "environment", Value: string(cfg.Environment)},
		observability.Field{Key: "consumer_topic", Value: cfg.Bus.ConsumerTopic},
		observability.Field{Key: "publisher_topic", Value: cfg.Bus.PublisherTopic},
	)

	// The config store is optional: a missing database degrades to env and
	// compiled defaults rather than blocking startup.
	var store configstore.Store
	var storeDisconnect func(context.Context) error
	db, disconnect, err := configstore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
	if err != nil {
		observability.Log().Warn("config store unavailable, continuing with env and defaults",
			observability.Field{Key: "error", Value: err.Error()},
		)
	} else {
		mongoStore := configstore.NewMongoStore(db)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			observability.Log().Warn("config store index setup failed",
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
		store = mongoStore
		storeDisconnect = disconnect
	}
	if storeDisconnect != nil {
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
			defer cancel()
			_ = storeDisconnect(disconnectCtx)
		}()
	}

	breakerSettings := breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}
	configBreaker := breaker.New("config-store", breakerSettings)
	manager := configstore.NewManager(store, cfg.Strategies.ConfigCacheTTL, configBreaker)

	registry := buildRegistry(cfg.Strategies)
	observability.Log().Info("strategies registered",
		observability.Field{Key: "strategies", Value: registry.IDs()},
	)

	stats := observability.NewEngineStats()
	analyzer := depth.NewAnalyzer()

	conn, err := nats.Connect(cfg.Bus.URL,
		nats.Name(cfg.Bus.ConsumerName),
		nats.Timeout(cfg.Bus.ConnectTimeout),
		nats.ReconnectWait(cfg.Bus.ReconnectWait),
		nats.MaxReconnects(cfg.Bus.MaxReconnects),
	)
	if err != nil {
		return fmt.Errorf("connect bus %s: %w", cfg.Bus.URL, err)
	}
	defer conn.Close()

	publishBreaker := breaker.New("publish", breakerSettings)
	pub := publisher.New(conn, publisher.Settings{
		Topic:          cfg.Bus.PublisherTopic,
		MaxRetries:     cfg.Publisher.MaxRetries,
		RetryDelay:     cfg.Publisher.RetryDelay,
		PublishTimeout: cfg.Publisher.PublishTimeout,
		RatePerSecond:  cfg.Publisher.RatePerSecond,
		Burst:          cfg.Publisher.Burst,
	}, publishBreaker, stats)

	cons := consumer.New(
		consumer.Settings{Topic: cfg.Bus.ConsumerTopic, QueueGroup: cfg.Bus.QueueGroup},
		registry,
		analyzer,
		manager,
		adapter.New(),
		pub,
		stats,
		breakerSettings,
	)
	if err := cons.Start(ctx, conn); err != nil {
		return err
	}

	breakerStates := func() map[string]string {
		states := cons.BreakerStates()
		states["publish"] = publishBreaker.State()
		states["config-store"] = configBreaker.State()
		return states
	}

	handler := httpserver.NewHandler(manager, analyzer, stats, httpserver.Health{
		Ready:     func() bool { return conn.IsConnected() },
		Breakers:  breakerStates,
		StartedAt: time.Now(),
	})
	server := httpserver.NewServer(
		fmt.Sprintf(":%d", cfg.HTTP.Port),
		handler,
		cfg.HTTP.ReadTimeout,
		cfg.HTTP.WriteTimeout,
	)

	beat := heartbeat.New(heartbeat.Settings{
		Enabled:              cfg.Heartbeat.Enabled,
		Interval:             cfg.Heartbeat.Interval,
		IncludeDetailedStats: cfg.Heartbeat.IncludeDetailedStats,
	}, stats, breakerStates)

	var wg conc.WaitGroup
	wg.Go(func() {
		analyzer.RunSweeper(ctx, sweeperInterval)
	})
	wg.Go(func() {
		beat.Run(ctx)
	})
	wg.Go(func() {
		if err := server.Start(); err != nil {
			observability.Log().Error("http server failed",
				observability.Field{Key: "error", Value: err.Error()},
			)
			stop()
		}
	})

	observability.Log().Info("engine running",
		observability.Field{Key: "http_port", Value: cfg.HTTP.Port},
	)

	<-ctx.Done()
	observability.Log().Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := cons.Stop(); err != nil {
		errs = append(errs, err)
	}
	httpCtx, httpCancel := context.WithTimeout(shutdownCtx, httpShutdownTimeout)
	if err := server.Shutdown(httpCtx); err != nil {
		errs = append(errs, err)
	}
	httpCancel()

	wg.Wait()

	if err := observability.AggregateErrors("shutdown", errs); err != nil {
		return err
	}
	observability.Log().Info("engine stopped")
	return nil
}

func buildZap(env config.Environment) (*zap.Logger, error) {
	if env == config.EnvDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildRegistry assembles the enabled strategies in dispatch order: depth
// strategies first, then trade, then ticker.
func buildRegistry(settings config.StrategySettings) *strategy.Registry {
	var strategies []strategy.Strategy
	if settings.OrderBookSkewEnabled {
		strategies = append(strategies, strategy.NewOrderBookSkew())
	}
	if settings.SpreadLiquidityEnabled {
		strategies = append(strategies, strategy.NewSpreadLiquidity())
	}
	if settings.IcebergEnabled {
		strategies = append(strategies, strategy.NewIcebergDetector())
	}
	if settings.TradeMomentumEnabled {
		strategies = append(strategies, strategy.NewTradeMomentum())
	}
	if settings.TickerVelocityEnabled {
		strategies = append(strategies, strategy.NewTickerVelocity())
	}
	return strategy.NewRegistry(strategies...)
}
