package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers delivery keys that were already handled.
// It is a fast path only: callers must stay correct when the store is
// empty, unreachable, or has expired a key.
type IdempotencyStore interface {
	// MarkProcessed records the key with a TTL.
	// Returns true if the key was newly recorded, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether the key has been recorded and not yet expired.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}
