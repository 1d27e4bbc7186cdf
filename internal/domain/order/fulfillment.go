package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/shared"
)

// Fulfillment errors
var (
	ErrOrderNotFound         = shared.NewDomainError("ORDER_NOT_FOUND", "Order not found")
	ErrOrderAlreadyTerminal  = shared.NewDomainError("ORDER_ALREADY_TERMINAL", "Order is no longer pending")
	ErrInsufficientInventory = shared.NewDomainError("INSUFFICIENT_INVENTORY", "Insufficient inventory to fulfill order")
)

// InsufficientInventoryError describes the variant that could not be decremented.
// errors.Is(err, ErrInsufficientInventory) holds for it.
type InsufficientInventoryError struct {
	VariantID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for variant %s: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Is matches ErrInsufficientInventory
func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// FulfillmentResult describes what a ConfirmAndDeduct call did.
type FulfillmentResult struct {
	OrderID uuid.UUID
	// AlreadyTerminal is set when the order was not pending and nothing changed.
	AlreadyTerminal bool
	// Status is the order status after the call.
	Status        Status
	ItemsDeducted int
	CartCleared   bool
}

// FulfillmentStore confirms an order, deducts inventory for every line item,
// and clears the originating cart as one atomic unit at the storage layer.
//
// Calling it again for an order that is no longer pending is a no-op that
// returns AlreadyTerminal. An InsufficientInventoryError leaves the order,
// inventory and cart exactly as they were.
type FulfillmentStore interface {
	ConfirmAndDeduct(ctx context.Context, orderID uuid.UUID, paymentID, paymentMethod string) (*FulfillmentResult, error)
}
