package crmsync

import (
	"context"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/order"
)

// TransactionScope runs repository work inside one database transaction.
// The function's error rolls the transaction back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories share the transaction of the enclosing scope
type TransactionalRepositories interface {
	SyncQueue() crmsync.Repository
	Orders() order.Repository
}

// NoOpTransactionScope runs the function against plain repositories.
// Useful in tests and for stores without transaction support.
type NoOpTransactionScope struct {
	syncQueue crmsync.Repository
	orders    order.Repository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(syncQueue crmsync.Repository, orders order.Repository) *NoOpTransactionScope {
	return &NoOpTransactionScope{syncQueue: syncQueue, orders: orders}
}

// Execute calls fn without a transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// SyncQueue returns the sync queue repository
func (s *NoOpTransactionScope) SyncQueue() crmsync.Repository { return s.syncQueue }

// Orders returns the order repository
func (s *NoOpTransactionScope) Orders() order.Repository { return s.orders }
