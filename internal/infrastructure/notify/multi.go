package notify

import (
	"context"
	"errors"

	"github.com/storefront/backend/internal/domain/order"
)

// Multi delivers a confirmation through every notifier in order. All of them
// run even when one fails; the failures are joined.
type Multi []order.Notifier

// OrderConfirmed implements order.Notifier
func (m Multi) OrderConfirmed(ctx context.Context, c order.Confirmation) error {
	var errs []error
	for _, n := range m {
		if err := n.OrderConfirmed(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ order.Notifier = Multi(nil)
