package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"promo-server/internal/api"
	"promo-server/internal/audit"
	"promo-server/internal/config"
	"promo-server/internal/graph"
	"promo-server/internal/orchestrator"
	"promo-server/internal/perf"
	"promo-server/internal/repository"
	"promo-server/internal/service"
	"promo-server/internal/worker"
)

const (
	dlxName       = "production_batch_tasks_dlx"
	dlqName       = "production_batch_tasks_dlq"
	dlqRoutingKey = "dlq"

	metricsPushInterval = 15 * time.Second
)

func main() {
	// Best-effort .env load for local runs; containers set real env.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting promo production worker",
		zap.String("task_queue", cfg.TaskQueueName),
		zap.String("db", cfg.MaskedDSN()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL.
	dbPool, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := repository.RunMigrations(ctx, dbPool, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// RabbitMQ.
	conn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open RabbitMQ channel", zap.Error(err))
	}
	defer channel.Close()

	if err := declareTaskTopology(channel, cfg.TaskQueueName); err != nil {
		logger.Fatal("Failed to declare queue topology", zap.Error(err))
	}

	// Redis propensity sink.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()
	propensity := repository.NewRedisPropensitySink(redisClient, logger)

	// Collaborators.
	synthesisClient, err := service.NewSynthesisClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize synthesis client", zap.Error(err))
	}
	imageClient := service.NewImageClient(cfg, logger)
	videoClient := service.NewVideoClient(cfg, logger)
	avatarClient := service.NewAvatarVideoClient(cfg, logger)

	notifier, err := service.NewRabbitMQNotifier(channel, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notifier", zap.Error(err))
	}

	graphPersister := graph.NewPersister(cfg, logger)
	defer graphPersister.Close(context.Background())

	batchRepo := repository.NewPostgresBatchRepository(dbPool, logger)
	auditor := audit.NewAuditor(logger)
	perfRegistry := perf.NewRegistry(cfg.PerfRegistryCapacity)

	pipeline := orchestrator.New(
		synthesisClient, imageClient, videoClient, avatarClient,
		auditor, notifier, graphPersister, batchRepo, perfRegistry, logger)

	// Worker metrics push to the Pushgateway when one is configured.
	if cfg.PushgatewayURL != "" {
		if err := worker.InitMetricsPusher(cfg.PushgatewayURL, logger); err != nil {
			logger.Warn("Pushgateway unavailable, worker metrics disabled", zap.Error(err))
		} else {
			worker.StartMetricsPusher(metricsPushInterval)
			defer worker.CleanupMetrics()
		}
	}

	// Review API.
	apiServer := api.NewServer(batchRepo, graphPersister, logger)
	httpServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      apiServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("Review API listening", zap.String("port", cfg.APIPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Review API server failed", zap.Error(err))
		}
	}()

	// Consumer runs until the context is canceled.
	handler := worker.NewTaskHandler(pipeline, propensity, cfg.PropensityIncrement, logger)
	consumer := worker.NewConsumer(channel, cfg.TaskQueueName, handler, logger)

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-consumerDone:
		logger.Error("Consumer stopped unexpectedly", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Review API shutdown error", zap.Error(err))
	}

	logger.Info("Promo production worker stopped")
}

// declareTaskTopology declares the dead-letter exchange/queue pair and the
// durable task queue routed to it.
func declareTaskTopology(ch *amqp.Channel, taskQueueName string) error {
	if err := ch.ExchangeDeclare(dlxName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX %s: %w", dlxName, err)
	}
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ %s: %w", dlqName, err)
	}
	if err := ch.QueueBind(dlqName, dlqRoutingKey, dlxName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ %s to DLX %s: %w", dlqName, dlxName, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := ch.QueueDeclare(taskQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare task queue %s: %w", taskQueueName, err)
	}
	return nil
}

// setupDatabase connects to PostgreSQL with retries; infra may come up after
// the worker in compose deployments.
func setupDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)

	const maxRetries = 20
	retryDelay := 3 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := pgxpool.NewWithConfig(attemptCtx, poolConfig)
		if err == nil {
			err = pool.Ping(attemptCtx)
			if err == nil {
				cancel()
				logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
				return pool, nil
			}
			pool.Close()
		}
		cancel()

		lastErr = err
		logger.Warn("PostgreSQL connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, lastErr)
}

// connectRabbitMQ dials with retries for the same reason.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	const maxRetries = 10
	retryDelay := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		logger.Warn("RabbitMQ connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, lastErr
}
