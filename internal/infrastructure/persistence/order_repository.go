package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID loads an order with its line items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var m models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Create inserts an order with its items. Used by seeding and tests; checkout
// owns order creation in production.
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(models.OrderModelFromDomain(o)).Error
}

// MarkPaymentFailed moves a pending order to failed. The status guard keeps a
// late failure callback from downgrading a confirmed order.
func (r *GormOrderRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ? AND status = ?", id, order.StatusPending).
		Updates(map[string]any{
			"status":         order.StatusFailed,
			"payment_status": order.PaymentStatusFailed,
			"payment_id":     paymentID,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FlagForReview records why a paid order could not be fulfilled automatically
func (r *GormOrderRepository) FlagForReview(ctx context.Context, id uuid.UUID, reason, paymentID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"review_required":   true,
			"review_reason":     reason,
			"review_payment_id": paymentID,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

var _ order.Repository = (*GormOrderRepository)(nil)
