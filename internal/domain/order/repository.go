package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads orders and applies the payment-flow updates that happen
// outside the fulfillment transaction.
type Repository interface {
	// FindByID loads an order with its items. Returns ErrOrderNotFound when missing.
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// MarkPaymentFailed moves a pending order to failed/failed.
	// Returns false without error when the order is not pending.
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, paymentID string) (bool, error)

	// FlagForReview marks a still-pending order for manual reconciliation.
	FlagForReview(ctx context.Context, id uuid.UUID, reason, paymentID string) error
}

// Confirmation carries what a customer notification needs after payment
type Confirmation struct {
	OrderID       uuid.UUID
	OrderNumber   string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Total         string
	PaymentID     string
}

// Notifier delivers customer notifications. Delivery is best-effort and
// must never influence the order state.
type Notifier interface {
	OrderConfirmed(ctx context.Context, c Confirmation) error
}
