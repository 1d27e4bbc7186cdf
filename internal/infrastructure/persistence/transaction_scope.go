package persistence

import (
	"context"

	"gorm.io/gorm"

	appcrmsync "github.com/storefront/backend/internal/application/crmsync"
	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/order"
)

// GormTransactionScope implements appcrmsync.TransactionScope using GORM transactions
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. A returned error rolls it back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appcrmsync.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) SyncQueue() crmsync.Repository {
	return NewGormSyncQueueRepository(r.tx)
}

func (r *gormTransactionalRepositories) Orders() order.Repository {
	return NewGormOrderRepository(r.tx)
}

var (
	_ appcrmsync.TransactionScope          = (*GormTransactionScope)(nil)
	_ appcrmsync.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
