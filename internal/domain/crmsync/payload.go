package crmsync

import (
	"encoding/json"
	"fmt"
)

// Target services
const (
	TargetZohoCRM = "crm"
)

// Target entity types. The request payload schema is keyed by these.
const (
	EntityLeads       = "Leads"
	EntityContacts    = "Contacts"
	EntityDeals       = "Deals"
	EntitySalesOrders = "Sales_Orders"
)

// Payload is the typed request body of a queue item
type Payload interface {
	TargetEntityType() string
}

// LeadPayload mirrors a registration or contact-form submission
type LeadPayload struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Company     string `json:"company,omitempty"`
	LeadSource  string `json:"lead_source,omitempty"`
	Description string `json:"description,omitempty"`
}

func (LeadPayload) TargetEntityType() string { return EntityLeads }

// ContactPayload mirrors a registered customer
type ContactPayload struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	MailingCity string `json:"mailing_city,omitempty"`
}

func (ContactPayload) TargetEntityType() string { return EntityContacts }

// DealPayload mirrors a B2B quote request
type DealPayload struct {
	DealName     string `json:"deal_name"`
	Stage        string `json:"stage"`
	Amount       string `json:"amount,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ClosingDate  string `json:"closing_date,omitempty"`
	Description  string `json:"description,omitempty"`
}

func (DealPayload) TargetEntityType() string { return EntityDeals }

// SalesOrderLine is a line item inside a SalesOrderPayload
type SalesOrderLine struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// SalesOrderPayload mirrors a confirmed order
type SalesOrderPayload struct {
	Subject       string           `json:"subject"`
	OrderNumber   string           `json:"order_number"`
	Status        string           `json:"status"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name,omitempty"`
	PaymentID     string           `json:"payment_id,omitempty"`
	Subtotal      string           `json:"subtotal"`
	Tax           string           `json:"tax"`
	Shipping      string           `json:"shipping"`
	Discount      string           `json:"discount"`
	Total         string           `json:"total"`
	Lines         []SalesOrderLine `json:"lines"`
}

func (SalesOrderPayload) TargetEntityType() string { return EntitySalesOrders }

// GenericPayload carries modules without a dedicated schema, passed through as-is
type GenericPayload struct {
	Module string
	Fields map[string]any
}

func (g GenericPayload) TargetEntityType() string { return g.Module }

// EncodePayload serializes a payload for storage
func EncodePayload(p Payload) (json.RawMessage, error) {
	if g, ok := p.(GenericPayload); ok {
		return json.Marshal(g.Fields)
	}
	return json.Marshal(p)
}

// DecodePayload parses a stored payload according to its target entity type
func DecodePayload(targetEntityType string, raw json.RawMessage) (Payload, error) {
	switch targetEntityType {
	case EntityLeads:
		return decodeInto[LeadPayload](targetEntityType, raw)
	case EntityContacts:
		return decodeInto[ContactPayload](targetEntityType, raw)
	case EntityDeals:
		return decodeInto[DealPayload](targetEntityType, raw)
	case EntitySalesOrders:
		return decodeInto[SalesOrderPayload](targetEntityType, raw)
	default:
		fields := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", targetEntityType, err)
			}
		}
		return GenericPayload{Module: targetEntityType, Fields: fields}, nil
	}
}

func decodeInto[T Payload](targetEntityType string, raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode %s payload: empty payload", targetEntityType)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", targetEntityType, err)
	}
	return p, nil
}
