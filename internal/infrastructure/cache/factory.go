package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
)

const memorySweepInterval = 5 * time.Minute

// NewDedupStore returns a Redis-backed store when Redis is enabled and
// reachable, and an in-memory store otherwise. Webhook correctness does not
// depend on the store, so an unreachable Redis only degrades deduplication.
func NewDedupStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-memory webhook dedup store")
		return NewInMemoryDedupStore(memorySweepInterval)
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory webhook dedup store",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		return NewInMemoryDedupStore(memorySweepInterval)
	}

	logger.Info("Using Redis webhook dedup store", zap.String("addr", cfg.Addr()))
	return NewRedisDedupStore(client, DefaultDedupKeyPrefix)
}
