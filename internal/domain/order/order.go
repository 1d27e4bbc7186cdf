package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/shared"
)

// Status is the lifecycle status of an order
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known order status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks if the payment flow may move an order from s to target.
// Only pending orders move, and nothing ever re-enters pending.
func (s Status) CanTransitionTo(target Status) bool {
	if s != StatusPending {
		return false
	}
	return target == StatusConfirmed || target == StatusFailed
}

// PaymentStatus is the payment state recorded on an order
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Address is the structured shipping address captured at checkout
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Item is a line item of an order. Items are immutable once the order exists.
type Item struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	VariantID  uuid.UUID
	SKU        string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// Order is a customer purchase
type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          *uuid.UUID
	CartID          *uuid.UUID
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	Status          Status
	PaymentStatus   PaymentStatus
	PaymentID       string
	PaymentMethod   string
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	ShippingAddress Address
	ReviewRequired  bool
	ReviewReason    string
	ConfirmedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []Item
}

// Confirm records a successful payment. Inventory and cart effects are applied
// by the FulfillmentStore in the same transaction, never here.
func (o *Order) Confirm(paymentID, paymentMethod string) error {
	if !o.Status.CanTransitionTo(StatusConfirmed) {
		return shared.NewDomainError("INVALID_STATE", "Only pending orders can be confirmed")
	}
	now := time.Now()
	o.Status = StatusConfirmed
	o.PaymentStatus = PaymentStatusPaid
	o.PaymentID = paymentID
	o.PaymentMethod = paymentMethod
	o.ReviewRequired = false
	o.ReviewReason = ""
	o.ConfirmedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkPaymentFailed records a declined or failed payment.
func (o *Order) MarkPaymentFailed() error {
	if !o.Status.CanTransitionTo(StatusFailed) {
		return shared.NewDomainError("INVALID_STATE", "Only pending orders can fail payment")
	}
	o.Status = StatusFailed
	o.PaymentStatus = PaymentStatusFailed
	o.UpdatedAt = time.Now()
	return nil
}

// TotalQuantity sums the quantities of all line items
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
