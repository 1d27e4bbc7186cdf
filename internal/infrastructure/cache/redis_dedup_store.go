package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// DefaultDedupKeyPrefix namespaces webhook delivery keys in Redis
const DefaultDedupKeyPrefix = "storefront:webhook:"

// RedisDedupStore shares webhook delivery keys across replicas through Redis
type RedisDedupStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewRedisDedupStore wraps an existing client. An empty prefix uses DefaultDedupKeyPrefix.
func NewRedisDedupStore(client *redis.Client, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDedupKeyPrefix
	}
	return &RedisDedupStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records key with SET NX so concurrent callers agree on one winner
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record delivery key: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether key exists
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery key: %w", err)
	}
	return n > 0, nil
}

// Close closes the Redis client
func (s *RedisDedupStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisDedupStore)(nil)
