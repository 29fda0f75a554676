package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wms-platform/distribution-service/internal/application"
	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/internal/infrastructure/events"
	mongoRepo "github.com/wms-platform/distribution-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/distribution-service/internal/infrastructure/redis"
	"github.com/wms-platform/distribution-service/pkg/cloudevents"
	"github.com/wms-platform/distribution-service/pkg/idempotency"
	"github.com/wms-platform/distribution-service/pkg/kafka"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
	"github.com/wms-platform/distribution-service/pkg/middleware"
	"github.com/wms-platform/distribution-service/pkg/mongodb"
	"github.com/wms-platform/distribution-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/distribution-service/pkg/outbox/mongodb"
	"github.com/wms-platform/distribution-service/pkg/resilience"
	"github.com/wms-platform/distribution-service/pkg/tracing"
)

const serviceName = "distribution-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logger := logging.New(logConfig)

	config, err := loadConfig()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	logConfig.Level = config.LogLevel
	logConfig.Environment = config.Environment
	logger = logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting distribution-service API", "timezone", config.Location.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.Initialize(ctx, config.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "enabled", config.Tracing.Enabled, "endpoint", config.Tracing.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	config.MongoDB.Monitor = mongodb.NewCommandMonitor(m, logger)
	connectRetry := resilience.DefaultRetryConfig()
	connectRetry.MaxAttempts = 5
	connectRetry.InitialDelay = 500 * time.Millisecond

	var mongoClient *mongodb.Client
	err = resilience.Retry(ctx, connectRetry, func() error {
		var connectErr error
		mongoClient, connectErr = mongodb.NewClient(ctx, config.MongoDB)
		if connectErr != nil {
			logger.WithError(connectErr).Warn("MongoDB not reachable yet")
		}
		return connectErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	instrumentedMongo := mongodb.NewInstrumentedClient(mongoClient, m, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = instrumentedMongo.Close(closeCtx)
	}()
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := instrumentedMongo.Database()
	lineItems := mongoRepo.NewLineItemRepository(db)
	stock := mongoRepo.NewStockLedger(db)
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	keyRepo := idempotency.NewMongoKeyRepository(db)

	for name, ensure := range map[string]func(context.Context) error{
		"line items":       lineItems.EnsureIndexes,
		"stock ledger":     stock.EnsureIndexes,
		"outbox":           outboxRepo.EnsureIndexes,
		"idempotency keys": keyRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure indexes", "collection", name)
		}
	}

	var locker domain.BatchLocker
	if config.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		locker = redis.NewBatchLocker(redisClient, config.Locker, logger)
		logger.Info("Batch locking enabled", "addr", config.RedisAddr, "ttl", config.Locker.TTL)
	} else {
		logger.Warn("REDIS_ADDR not set, batch transitions rely on database transactions only")
	}

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceDistribution)

	deps := application.Dependencies{
		LineItems: lineItems,
		Stock:     stock,
		Tx:        mongoRepo.NewTransactionManager(instrumentedMongo),
		Directory: mongoRepo.NewDistributorDirectory(db),
		Events:    events.NewOutboxRecorder(outboxRepo, eventFactory),
		Locker:    locker,
		Location:  config.Location,
		Logger:    logger,
		Metrics:   m,
	}
	svc := &services{
		distributions: application.NewDistributionService(deps),
		queries:       application.NewBatchQueryService(deps),
		acceptance:    application.NewBatchAcceptanceService(deps),
		location:      config.Location,
		clock:         time.Now,
	}

	producer := kafka.NewProductionProducer(config.Kafka, m, logger)
	defer producer.Close()

	publisher := outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
		PollInterval: config.OutboxPollInterval,
		BatchSize:    100,
	})
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer publisher.Stop()
	logger.Info("Outbox publisher started", "brokers", config.Kafka.Brokers, "topic", kafka.Topics.DistributionEvents)

	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger)
	middlewareConfig.Metrics = m
	middlewareConfig.EnableTracing = config.Tracing.Enabled
	middlewareConfig.AllowedOrigins = config.AllowedOrigins
	middleware.Setup(router, middlewareConfig)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func(c *gin.Context) error {
		return instrumentedMongo.HealthCheck(c.Request.Context())
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	idempotencyConfig := idempotency.DefaultConfig(serviceName, keyRepo, logger)
	idempotencyConfig.Metrics = m
	idempotencyConfig.ScopeExtractor = func(c *gin.Context) string {
		return middleware.GetTenantContext(c).WarehouseID
	}

	registerRoutes(router, svc, idempotency.Middleware(idempotencyConfig), logger)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server error")
			stop()
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
