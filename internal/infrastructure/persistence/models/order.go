package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/storefront/backend/internal/domain/order"
)

// OrderModel is the persistence model for orders
type OrderModel struct {
	ID              uuid.UUID                         `gorm:"type:uuid;primaryKey"`
	OrderNumber     string                            `gorm:"type:varchar(50);not null;uniqueIndex"`
	UserID          *uuid.UUID                        `gorm:"type:uuid;index"`
	CartID          *uuid.UUID                        `gorm:"type:uuid;index"`
	CustomerEmail   string                            `gorm:"type:varchar(255)"`
	CustomerName    string                            `gorm:"type:varchar(255)"`
	CustomerPhone   string                            `gorm:"type:varchar(50)"`
	Status          order.Status                      `gorm:"type:varchar(20);not null;index"`
	PaymentStatus   order.PaymentStatus               `gorm:"type:varchar(20);not null"`
	PaymentID       string                            `gorm:"type:varchar(100)"`
	PaymentMethod   string                            `gorm:"type:varchar(50)"`
	Subtotal        decimal.Decimal                   `gorm:"type:decimal(12,2);not null"`
	Tax             decimal.Decimal                   `gorm:"type:decimal(12,2);not null"`
	Shipping        decimal.Decimal                   `gorm:"type:decimal(12,2);not null"`
	Discount        decimal.Decimal                   `gorm:"type:decimal(12,2);not null"`
	Total           decimal.Decimal                   `gorm:"type:decimal(12,2);not null"`
	ShippingAddress datatypes.JSONType[order.Address] `gorm:"not null"`
	ReviewRequired  bool                              `gorm:"not null;index"`
	ReviewReason    string                            `gorm:"type:text"`
	ReviewPaymentID string                            `gorm:"type:varchar(100)"`
	ConfirmedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []OrderItemModel `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *order.Order {
	o := &order.Order{
		ID:              m.ID,
		OrderNumber:     m.OrderNumber,
		UserID:          m.UserID,
		CartID:          m.CartID,
		CustomerEmail:   m.CustomerEmail,
		CustomerName:    m.CustomerName,
		CustomerPhone:   m.CustomerPhone,
		Status:          m.Status,
		PaymentStatus:   m.PaymentStatus,
		PaymentID:       m.PaymentID,
		PaymentMethod:   m.PaymentMethod,
		Subtotal:        m.Subtotal,
		Tax:             m.Tax,
		Shipping:        m.Shipping,
		Discount:        m.Discount,
		Total:           m.Total,
		ShippingAddress: m.ShippingAddress.Data(),
		ReviewRequired:  m.ReviewRequired,
		ReviewReason:    m.ReviewReason,
		ConfirmedAt:     m.ConfirmedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Items:           make([]order.Item, 0, len(m.Items)),
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, item.ToDomain())
	}
	return o
}

// OrderModelFromDomain creates a persistence model from a domain Order
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CartID:          o.CartID,
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentID:       o.PaymentID,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        o.Subtotal,
		Tax:             o.Tax,
		Shipping:        o.Shipping,
		Discount:        o.Discount,
		Total:           o.Total,
		ShippingAddress: datatypes.NewJSONType(o.ShippingAddress),
		ReviewRequired:  o.ReviewRequired,
		ReviewReason:    o.ReviewReason,
		ConfirmedAt:     o.ConfirmedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ID:         item.ID,
			OrderID:    o.ID,
			VariantID:  item.VariantID,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return m
}

// OrderItemModel is the persistence model for order line items
type OrderItemModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	VariantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	SKU        string          `gorm:"type:varchar(100)"`
	Name       string          `gorm:"type:varchar(255)"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt  time.Time
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain Item
func (m *OrderItemModel) ToDomain() order.Item {
	return order.Item{
		ID:         m.ID,
		OrderID:    m.OrderID,
		VariantID:  m.VariantID,
		SKU:        m.SKU,
		Name:       m.Name,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		TotalPrice: m.TotalPrice,
	}
}
