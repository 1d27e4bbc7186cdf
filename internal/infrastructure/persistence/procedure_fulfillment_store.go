package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
)

// ProcedureFulfillmentStore delegates fulfillment to the
// confirm_order_and_deduct_inventory stored function. The function returns
// NULL on success and a JSON object otherwise. With a confirm hook the call
// and the hook share one transaction.
type ProcedureFulfillmentStore struct {
	db   *gorm.DB
	opts fulfillmentOptions
}

// NewProcedureFulfillmentStore creates a new ProcedureFulfillmentStore
func NewProcedureFulfillmentStore(db *gorm.DB, opts ...FulfillmentOption) *ProcedureFulfillmentStore {
	return &ProcedureFulfillmentStore{db: db, opts: applyFulfillmentOptions(opts)}
}

type procedureOutcome struct {
	AlreadyTerminal bool         `json:"already_terminal"`
	Status          order.Status `json:"status"`
	Error           *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		VariantID string `json:"variant_id"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	} `json:"error"`
}

// ConfirmAndDeduct implements order.FulfillmentStore
func (s *ProcedureFulfillmentStore) ConfirmAndDeduct(ctx context.Context, orderID uuid.UUID, paymentID, paymentMethod string) (*order.FulfillmentResult, error) {
	if s.opts.onConfirm == nil {
		return s.confirm(s.db.WithContext(ctx), orderID, paymentID, paymentMethod)
	}

	var result *order.FulfillmentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.confirm(tx, orderID, paymentID, paymentMethod)
		if err != nil {
			return err
		}
		if result.AlreadyTerminal {
			return nil
		}
		return s.opts.runConfirmHook(ctx, tx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ProcedureFulfillmentStore) confirm(db *gorm.DB, orderID uuid.UUID, paymentID, paymentMethod string) (*order.FulfillmentResult, error) {
	var raw sql.NullString
	if err := db.
		Raw("SELECT confirm_order_and_deduct_inventory(?, ?, ?)", orderID, paymentID, paymentMethod).
		Row().
		Scan(&raw); err != nil {
		return nil, fmt.Errorf("call fulfillment procedure: %w", err)
	}

	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return &order.FulfillmentResult{OrderID: orderID, Status: order.StatusConfirmed}, nil
	}

	var out procedureOutcome
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decode fulfillment procedure result: %w", err)
	}

	if out.Error == nil {
		if out.AlreadyTerminal {
			return &order.FulfillmentResult{OrderID: orderID, AlreadyTerminal: true, Status: out.Status}, nil
		}
		return &order.FulfillmentResult{OrderID: orderID, Status: order.StatusConfirmed}, nil
	}

	switch out.Error.Code {
	case order.ErrOrderNotFound.Code:
		return nil, order.ErrOrderNotFound
	case order.ErrInsufficientInventory.Code:
		variantID, _ := uuid.Parse(out.Error.VariantID)
		return nil, &order.InsufficientInventoryError{
			VariantID: variantID,
			Requested: out.Error.Requested,
			Available: out.Error.Available,
		}
	default:
		return nil, shared.NewDomainError(out.Error.Code, out.Error.Message)
	}
}

var _ order.FulfillmentStore = (*ProcedureFulfillmentStore)(nil)
