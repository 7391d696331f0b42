package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notify-platform/outcome-engine/internal/complaint"
	"github.com/notify-platform/outcome-engine/internal/config"
	"github.com/notify-platform/outcome-engine/internal/dispatch"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/engine"
	"github.com/notify-platform/outcome-engine/internal/handler"
	"github.com/notify-platform/outcome-engine/internal/infra/postgresql"
	"github.com/notify-platform/outcome-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/notify-platform/outcome-engine/internal/infra/redis"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/processor"
	"github.com/notify-platform/outcome-engine/internal/provider"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"github.com/notify-platform/outcome-engine/internal/secrets"
	"github.com/notify-platform/outcome-engine/internal/selector"
	"github.com/notify-platform/outcome-engine/internal/service"
	"github.com/notify-platform/outcome-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

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
		logger.Fatal("outcome-engine stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
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

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	metrics := observability.NewMetrics()

	box, err := secrets.NewBox(cfg.CallbackSecretKey)
	if err != nil {
		return fmt.Errorf("secret box initialization failed: %w", err)
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.DispatchRatePerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	providerRepo := repository.NewGormProviderRepo(db)
	configRepo := repository.NewGormCallbackConfigRepo(db)
	jobRepo := repository.NewGormCallbackJobRepo(db)
	complaintRepo := repository.NewGormComplaintRepo(db)

	sel, err := selector.NewSelector(providerRepo, selector.NewRegistry(nil), map[domain.NotificationType]string{
		domain.TypeEmail:  cfg.EmailProviderStrategy,
		domain.TypeSMS:    cfg.SMSProviderStrategy,
		domain.TypeLetter: cfg.LetterProviderStrategy,
	}, logger)
	if err != nil {
		return fmt.Errorf("provider selector initialization failed: %w", err)
	}

	scheduler, err := dispatch.NewScheduler(jobRepo, publisher, box, cfg.CallbackMaxRetries, logger)
	if err != nil {
		return fmt.Errorf("callback scheduler initialization failed: %w", err)
	}

	outcomeEngine := engine.NewEngine(notificationRepo, configRepo, scheduler, metrics, logger)

	retryDelay := time.Duration(cfg.CallbackRetryDelaySeconds) * time.Second
	dispatcher, err := dispatch.NewDispatcher(jobRepo, configRepo, box, publisher, limiter, retryDelay, metrics, logger)
	if err != nil {
		return fmt.Errorf("callback dispatcher initialization failed: %w", err)
	}

	complaints, err := complaint.NewPublisher(complaintRepo, configRepo, scheduler, publisher, metrics, logger)
	if err != nil {
		return fmt.Errorf("complaint publisher initialization failed: %w", err)
	}

	graceWindow := time.Duration(cfg.EventGraceWindowSeconds) * time.Second
	events, err := processor.NewEventProcessor(notificationRepo, outcomeEngine, complaints, publisher, graceWindow, metrics, logger)
	if err != nil {
		return fmt.Errorf("event processor initialization failed: %w", err)
	}

	providerClient, err := provider.NewHTTPClient(cfg.ProviderSendURL)
	if err != nil {
		return fmt.Errorf("provider client initialization failed: %w", err)
	}

	sendWorker, err := service.NewSendWorker(notificationRepo, outcomeEngine, providerClient, limiter, metrics, logger)
	if err != nil {
		return fmt.Errorf("send worker initialization failed: %w", err)
	}

	notifications, err := service.NewNotificationService(notificationRepo, sel, publisher, logger)
	if err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}

	pool, err := service.NewWorkerPool(consumer, map[string]queue.MessageHandler{
		queue.QueueSend:           sendWorker.HandleSendMessage,
		queue.QueueProviderEvents: events.HandleEventMessage,
		queue.QueueCallbacks:      dispatcher.HandleCallbackMessage,
	}, cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("worker pool initialization failed: %w", err)
	}

	scanner, err := dispatch.NewRetryScanner(jobRepo, publisher, 0, 0, logger)
	if err != nil {
		return fmt.Errorf("retry scanner initialization failed: %w", err)
	}

	archiver, err := service.NewArchiver(notificationRepo, 0, 0, 0, logger)
	if err != nil {
		return fmt.Errorf("archiver initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", metrics.FiberHandler())
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterNotificationRoutes(app, notifications); err != nil {
		return fmt.Errorf("notification routes registration failed: %w", err)
	}
	if err := handler.RegisterWebhookRoutes(app, publisher, logger); err != nil {
		return fmt.Errorf("webhook routes registration failed: %w", err)
	}

	logger.Info("outcome-engine started",
		zap.Int("port", cfg.APIPort),
		zap.Int("worker_concurrency", cfg.WorkerConcurrency))

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		return pool.Start(groupCtx)
	})
	g.Go(func() error {
		return scanner.Start(groupCtx)
	})
	g.Go(func() error {
		return archiver.Start(groupCtx)
	})

	err = g.Wait()

	// Pending grace-window redeliveries finish before the broker connection
	// closes.
	events.Wait()

	if ctx.Err() != nil {
		logger.Info("outcome-engine shut down")
		return nil
	}
	return err
}
