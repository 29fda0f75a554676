// Package redis serializes batch transitions across service replicas
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/logging"
)

// LockerConfig tunes how long a transition may hold a batch
type LockerConfig struct {
	KeyPrefix  string
	TTL        time.Duration
	RetryEvery time.Duration
	MaxRetries int
}

// DefaultLockerConfig returns the production lock settings
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		KeyPrefix:  "distribution:batch-lock:",
		TTL:        30 * time.Second,
		RetryEvery: 100 * time.Millisecond,
		MaxRetries: 20,
	}
}

// BatchLocker implements domain.BatchLocker on top of redislock
type BatchLocker struct {
	locker *redislock.Client
	config LockerConfig
	logger *logging.Logger
}

// NewBatchLocker creates a locker sharing client
func NewBatchLocker(client redis.UniversalClient, config LockerConfig, logger *logging.Logger) *BatchLocker {
	return &BatchLocker{
		locker: redislock.New(client),
		config: config,
		logger: logger,
	}
}

// Lock waits briefly for the batch and fails with domain.ErrBatchLocked
// when another replica keeps holding it
func (l *BatchLocker) Lock(ctx context.Context, batchID string) (func(context.Context), error) {
	key := l.config.KeyPrefix + batchID
	lock, err := l.locker.Obtain(ctx, key, l.config.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.config.RetryEvery), l.config.MaxRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("batch %s: %w", batchID, domain.ErrBatchLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain batch lock: %w", err)
	}

	return func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithContext(ctx).Warn("Failed to release batch lock", "batchId", batchID, "error", err)
		}
	}, nil
}

var _ domain.BatchLocker = (*BatchLocker)(nil)
