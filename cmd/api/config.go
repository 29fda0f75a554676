package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wms-platform/distribution-service/internal/infrastructure/redis"
	"github.com/wms-platform/distribution-service/pkg/kafka"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/mongodb"
	"github.com/wms-platform/distribution-service/pkg/tracing"
)

// Config holds application configuration
type Config struct {
	ServerAddr     string
	Environment    string
	LogLevel       logging.LogLevel
	AllowedOrigins []string

	MongoDB *mongodb.Config
	Kafka   *kafka.Config
	Tracing *tracing.Config

	// RedisAddr empty disables cross-replica batch locking
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Locker        redis.LockerConfig

	Location           *time.Location
	OutboxPollInterval time.Duration
}

func loadConfig() (*Config, error) {
	environment := getEnv("ENVIRONMENT", "development")
	if environment != "production" {
		// a missing .env is fine
		_ = godotenv.Load()
		environment = getEnv("ENVIRONMENT", "development")
	}

	location, err := time.LoadLocation(getEnv("DISTRIBUTION_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISTRIBUTION_TIMEZONE: %w", err)
	}

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = serviceName

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = environment
	tracingConfig.Enabled = getEnvBool("TRACING_ENABLED", true)

	locker := redis.DefaultLockerConfig()
	locker.TTL = getEnvDuration("LOCK_TTL", locker.TTL)

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "distribution_db")
	mongoConfig.ReplicaSet = getEnv("MONGODB_REPLICA_SET", "")

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		Environment:        environment,
		LogLevel:           logging.ParseLevel(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MongoDB:            mongoConfig,
		Kafka:              kafkaConfig,
		Tracing:            tracingConfig,
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		Locker:             locker,
		Location:           location,
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
