package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/shiftguard/notify-engine/internal/channel"
	"github.com/shiftguard/notify-engine/internal/config"
	"github.com/shiftguard/notify-engine/internal/fanout"
	"github.com/shiftguard/notify-engine/internal/handler"
	"github.com/shiftguard/notify-engine/internal/infra/postgresql"
	"github.com/shiftguard/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/shiftguard/notify-engine/internal/infra/redis"
	"github.com/shiftguard/notify-engine/internal/intake"
	"github.com/shiftguard/notify-engine/internal/observability"
	"github.com/shiftguard/notify-engine/internal/repository"
	"github.com/shiftguard/notify-engine/internal/service"
	"github.com/shiftguard/notify-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	intakePrefetch  = 16
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notify-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.Connect(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := fanout.NewRedisBroker(rdb, logger)
	if err != nil {
		return fmt.Errorf("fanout broker init failed: %w", err)
	}

	rateLimiter, err := infraredis.NewSendRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	preferenceRepo := repository.NewGormPreferenceRepo(db)

	registry, err := buildChannelRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("channel registry init failed: %w", err)
	}

	metrics := observability.NewMetrics()
	retries := service.NewRetryController(cfg.MaxDeliveryRetries)

	orchestrator, err := service.NewOrchestrator(
		notificationRepo,
		attemptRepo,
		preferenceRepo,
		registry,
		retries,
		broker,
		rateLimiter,
		time.Duration(cfg.DeliveryTimeoutSec)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	orchestrator.SetMetrics(metrics)

	drainer, err := service.NewQueueDrainer(
		notificationRepo,
		orchestrator,
		cfg.DrainBatchSize,
		cfg.DrainConcurrency,
		time.Duration(cfg.DrainIntervalSec)*time.Second,
		logger,
	)
	if err != nil {
		return fmt.Errorf("queue drainer init failed: %w", err)
	}
	drainer.SetMetrics(metrics)

	analytics, err := service.NewAnalyticsAggregator(attemptRepo)
	if err != nil {
		return fmt.Errorf("analytics aggregator init failed: %w", err)
	}

	notificationService, err := service.NewNotificationService(
		notificationRepo,
		attemptRepo,
		orchestrator,
		retries,
		analytics,
		broker,
		broker,
		logger,
	)
	if err != nil {
		return fmt.Errorf("notification service init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "notify-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return drainer.Start(groupCtx)
	})

	if cfg.RabbitMQURL != "" {
		consumer, err := intake.NewConsumer(cfg.RabbitMQURL, notificationService, intakePrefetch, logger)
		if err != nil {
			return fmt.Errorf("event intake init failed: %w", err)
		}
		g.Go(func() error {
			defer consumer.Close() //nolint:errcheck
			return consumer.Start(groupCtx)
		})
	} else {
		logger.Info("event intake disabled: RABBITMQ_URL not set")
	}

	g.Go(func() error {
		logger.Info("notify-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildChannelRegistry(cfg *config.Config, logger *zap.Logger) (*channel.Registry, error) {
	adapters := []channel.Adapter{
		channel.NewInAppAdapter(),
		channel.NewSMSAdapter(),
	}

	// Email needs both the relay transport and the profile directory; without
	// either the channel is left unregistered and deliveries to it fail with
	// UNKNOWN_CHANNEL.
	if cfg.EmailRelayURL != "" && cfg.ProfileServiceURL != "" {
		sender, err := channel.NewRelayEmailSender(cfg.EmailRelayURL)
		if err != nil {
			return nil, err
		}
		directory, err := channel.NewHTTPProfileDirectory(cfg.ProfileServiceURL)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, channel.NewEmailAdapter(directory, sender, ""))
	} else {
		logger.Warn("email channel disabled: EMAIL_RELAY_URL or PROFILE_SERVICE_URL not set")
	}

	return channel.NewRegistry(adapters...)
}
