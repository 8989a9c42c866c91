package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/solfolio/backend/internal/blob/s3"
	"github.com/solfolio/backend/internal/cache/redis"
	"github.com/solfolio/backend/internal/config"
	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/hub"
	"github.com/solfolio/backend/internal/ingest"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/pipeline"
	"github.com/solfolio/backend/internal/rules"
	"github.com/solfolio/backend/internal/scoring"
	"github.com/solfolio/backend/internal/server"
	"github.com/solfolio/backend/internal/server/handler"
	"github.com/solfolio/backend/internal/store/memory"
	"github.com/solfolio/backend/internal/store/postgres"
)

// busChannel is the Redis Pub/Sub channel hub broadcasts are mirrored to.
const busChannel = "dashboard:events"

// Dependencies bundles every component the application lifecycle needs. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *metrics.Registry
	Queue    *pipeline.EventQueue
	Book     *pipeline.PositionBook
	Alerts   domain.AlertStore
	Hub      *hub.Hub
	Batcher  *pipeline.MicroBatcher
	Archiver *s3blob.AlertArchiver // nil unless S3 archival is configured
	Server   *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := metrics.NewRegistry()
	var healthChecks []handler.Check
	queue := pipeline.NewEventQueue(cfg.Pipeline.QueueCapacity, cfg.Pipeline.SendTimeout())
	book := pipeline.NewPositionBook()
	engine := rules.NewEngine(rules.DefaultRules(
		cfg.Rules.ConcentrationThreshold,
		cfg.Rules.TradeMinUSD,
		cfg.Rules.TradePriceHint,
	))

	// --- Alert store: Postgres when configured, in-memory otherwise ---
	var alerts domain.AlertStore
	if cfg.Database.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConnections,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		healthChecks = append(healthChecks, handler.Check{Name: "postgres", Probe: pgClient.Ping})
		alerts = postgres.NewAlertStore(pgClient.Pool())
	} else {
		alerts = memory.NewAlertStore(cfg.Risk.MaxRecentAlerts)
	}

	// --- Subscriber hub, optionally mirrored to Redis ---
	broadcastHub := hub.New(cfg.Hub.OutboxCapacity, registry, logger)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		healthChecks = append(healthChecks, handler.Check{Name: "redis", Probe: redisClient.Ping})
		broadcastHub.AttachBus(redis.NewSignalBus(redisClient), busChannel)
	}
	sessions := hub.NewSessionServer(broadcastHub, registry, logger)

	// --- Pipeline ---
	processor := pipeline.NewProcessor(engine, broadcastHub, book, alerts, registry, logger)
	batcher := pipeline.NewMicroBatcher(
		queue,
		processor,
		cfg.Pipeline.BatchSize,
		cfg.Pipeline.BatchTimeout(),
		registry,
		logger,
	)
	producer := ingest.NewProducer(queue, ingest.NewNormalizer(), registry, logger)

	scoringClient := scoring.NewClient(
		cfg.Scoring.URL,
		cfg.Scoring.Timeout(),
		cfg.Scoring.Enabled,
		registry,
		logger,
	)

	// --- S3 alert archiver (only when a bucket is configured) ---
	var archiver *s3blob.AlertArchiver
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		healthChecks = append(healthChecks, handler.Check{Name: "s3", Probe: s3Client.Health})

		archiver = s3blob.NewAlertArchiver(
			s3blob.NewWriter(s3Client),
			alerts,
			cfg.Risk.Retention(),
			cfg.S3.ArchiveInterval(),
			registry,
			logger,
		)
	}

	// --- HTTP server ---
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(healthChecks, logger),
		Metrics:   handler.NewMetricsHandler(registry, queue, logger),
		Portfolio: handler.NewPortfolioHandler(book, scoringClient, producer, registry, logger),
		Risk:      handler.NewRiskHandler(alerts, scoringClient, cfg.Risk.MaxRecentAlerts, registry, logger),
		Swap:      handler.NewSwapHandler(producer, registry, logger),
		Events:    handler.NewEventsHandler(producer, registry, logger),
	}
	srv := server.NewServer(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, handlers, sessions, logger)

	return &Dependencies{
		Registry: registry,
		Queue:    queue,
		Book:     book,
		Alerts:   alerts,
		Hub:      broadcastHub,
		Batcher:  batcher,
		Archiver: archiver,
		Server:   srv,
	}, cleanup, nil
}
