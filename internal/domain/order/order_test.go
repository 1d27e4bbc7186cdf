package order

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.False(t, StatusPending.CanTransitionTo(StatusCancelled))

	for _, from := range []Status{StatusConfirmed, StatusFailed, StatusCancelled} {
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusFailed} {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusConfirmed.IsValid())
	assert.False(t, Status("shipped").IsValid())
}

func TestOrder_Confirm(t *testing.T) {
	o := &Order{ID: uuid.New(), Status: StatusPending, PaymentStatus: PaymentStatusPending, ReviewRequired: true, ReviewReason: "earlier"}

	require.NoError(t, o.Confirm("EP1", "UPI"))
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, "EP1", o.PaymentID)
	assert.Equal(t, "UPI", o.PaymentMethod)
	assert.False(t, o.ReviewRequired)
	assert.Empty(t, o.ReviewReason)
	assert.NotNil(t, o.ConfirmedAt)

	err := o.Confirm("EP2", "UPI")
	require.Error(t, err)
	assert.Equal(t, "EP1", o.PaymentID)
}

func TestOrder_MarkPaymentFailed(t *testing.T) {
	o := &Order{Status: StatusPending, PaymentStatus: PaymentStatusPending}
	require.NoError(t, o.MarkPaymentFailed())
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, PaymentStatusFailed, o.PaymentStatus)

	confirmed := &Order{Status: StatusConfirmed, PaymentStatus: PaymentStatusPaid}
	require.Error(t, confirmed.MarkPaymentFailed())
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Equal(t, PaymentStatusPaid, confirmed.PaymentStatus)
}

func TestOrder_TotalQuantity(t *testing.T) {
	o := &Order{Items: []Item{{Quantity: 3}, {Quantity: 2}}}
	assert.Equal(t, 5, o.TotalQuantity())
}

func TestInsufficientInventoryError_Is(t *testing.T) {
	variantID := uuid.New()
	err := fmt.Errorf("fulfillment: %w", &InsufficientInventoryError{VariantID: variantID, Requested: 3, Available: 2})

	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	assert.False(t, errors.Is(err, ErrOrderNotFound))

	var invErr *InsufficientInventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, variantID, invErr.VariantID)
	assert.Contains(t, err.Error(), "requested 3, available 2")
}
