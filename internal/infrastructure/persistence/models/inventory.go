package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariantModel holds the sellable variant and its stock counter.
// Stock is decremented only by order fulfillment.
type ProductVariantModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	SKU           string          `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name          string          `gorm:"type:varchar(255)"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StockQuantity int             `gorm:"not null;check:chk_product_variants_stock_non_negative,stock_quantity >= 0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// CartModel is a shopper's cart
type CartModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID    *uuid.UUID `gorm:"type:uuid;index"`
	IsActive  bool       `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []CartItemModel `gorm:"foreignKey:CartID"`
}

// TableName returns the table name for GORM
func (CartModel) TableName() string {
	return "carts"
}

// CartItemModel is a line in a cart
type CartItemModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;index"`
	VariantID uuid.UUID `gorm:"type:uuid;not null"`
	Quantity  int       `gorm:"not null"`
	CreatedAt time.Time
}

// TableName returns the table name for GORM
func (CartItemModel) TableName() string {
	return "cart_items"
}
