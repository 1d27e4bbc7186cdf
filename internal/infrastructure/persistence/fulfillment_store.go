package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appcrmsync "github.com/storefront/backend/internal/application/crmsync"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// ConfirmHook runs inside the fulfillment transaction after an order moves to
// confirmed. A returned error rolls the whole confirmation back.
type ConfirmHook func(ctx context.Context, repos appcrmsync.TransactionalRepositories, orderID uuid.UUID) error

// FulfillmentOption configures a fulfillment store
type FulfillmentOption func(*fulfillmentOptions)

type fulfillmentOptions struct {
	onConfirm ConfirmHook
}

// WithConfirmHook registers a hook that shares the confirmation transaction
func WithConfirmHook(hook ConfirmHook) FulfillmentOption {
	return func(o *fulfillmentOptions) {
		o.onConfirm = hook
	}
}

func applyFulfillmentOptions(opts []FulfillmentOption) fulfillmentOptions {
	var o fulfillmentOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runConfirmHook calls the hook, if any, on the open transaction
func (o fulfillmentOptions) runConfirmHook(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if o.onConfirm == nil {
		return nil
	}
	if err := o.onConfirm(ctx, &gormTransactionalRepositories{tx: tx}, orderID); err != nil {
		return fmt.Errorf("confirm hook: %w", err)
	}
	return nil
}

// GormFulfillmentStore confirms orders inside one explicit database transaction.
// The order row is locked first, then variants in ascending id order, so two
// orders sharing variants always acquire locks in the same sequence.
type GormFulfillmentStore struct {
	db   *gorm.DB
	opts fulfillmentOptions
}

// NewGormFulfillmentStore creates a new GormFulfillmentStore
func NewGormFulfillmentStore(db *gorm.DB, opts ...FulfillmentOption) *GormFulfillmentStore {
	return &GormFulfillmentStore{db: db, opts: applyFulfillmentOptions(opts)}
}

// ConfirmAndDeduct implements order.FulfillmentStore
func (s *GormFulfillmentStore) ConfirmAndDeduct(ctx context.Context, orderID uuid.UUID, paymentID, paymentMethod string) (*order.FulfillmentResult, error) {
	var result *order.FulfillmentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.OrderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "cart_id").
			First(&o, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if o.Status != order.StatusPending {
			result = &order.FulfillmentResult{OrderID: orderID, AlreadyTerminal: true, Status: o.Status}
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.OrderModel{}).
			Where("id = ?", orderID).
			Updates(map[string]any{
				"status":            order.StatusConfirmed,
				"payment_status":    order.PaymentStatusPaid,
				"payment_id":        paymentID,
				"payment_method":    paymentMethod,
				"confirmed_at":      now,
				"review_required":   false,
				"review_reason":     "",
				"review_payment_id": "",
				"updated_at":        now,
			}).Error; err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}

		var items []models.OrderItemModel
		if err := tx.Where("order_id = ?", orderID).
			Order("variant_id ASC").
			Find(&items).Error; err != nil {
			return fmt.Errorf("load order items: %w", err)
		}

		for _, item := range items {
			if err := deductStock(tx, item.VariantID, item.Quantity, now); err != nil {
				return err
			}
		}

		cleared := false
		if o.CartID != nil {
			if err := tx.Where("cart_id = ?", *o.CartID).Delete(&models.CartItemModel{}).Error; err != nil {
				return fmt.Errorf("clear cart items: %w", err)
			}
			if err := tx.Model(&models.CartModel{}).
				Where("id = ?", *o.CartID).
				Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
				return fmt.Errorf("deactivate cart: %w", err)
			}
			cleared = true
		}

		if err := s.opts.runConfirmHook(ctx, tx, orderID); err != nil {
			return err
		}

		result = &order.FulfillmentResult{
			OrderID:       orderID,
			Status:        order.StatusConfirmed,
			ItemsDeducted: len(items),
			CartCleared:   cleared,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// deductStock decrements a variant only when enough stock remains
func deductStock(tx *gorm.DB, variantID uuid.UUID, quantity int, now time.Time) error {
	res := tx.Model(&models.ProductVariantModel{}).
		Where("id = ? AND stock_quantity >= ?", variantID, quantity).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("deduct stock for variant %s: %w", variantID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	available := 0
	var v models.ProductVariantModel
	err := tx.Select("id", "stock_quantity").First(&v, "id = ?", variantID).Error
	switch {
	case err == nil:
		available = v.StockQuantity
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("load stock for variant %s: %w", variantID, err)
	}
	return &order.InsufficientInventoryError{
		VariantID: variantID,
		Requested: quantity,
		Available: available,
	}
}

var _ order.FulfillmentStore = (*GormFulfillmentStore)(nil)
