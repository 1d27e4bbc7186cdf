package crm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storefront/backend/internal/domain/crmsync"
)

// ErrMissingRecordID is returned for delete items without a CRM record id
var ErrMissingRecordID = errors.New(`crm: delete payload requires an "id" field`)

// BuildRequest turns a queue item into a CRM request, mapping typed payloads
// onto the CRM's field names. Undecodable payloads return an error.
func BuildRequest(item *crmsync.QueueItem) (Request, error) {
	req := Request{
		Service:    item.TargetService,
		Module:     item.TargetEntityType,
		Operation:  item.Operation,
		ExternalID: item.EntityID,
	}

	if item.Operation == crmsync.OperationDelete {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item.RequestPayload, &ref); err != nil {
			return Request{}, fmt.Errorf("decode delete payload: %w", err)
		}
		if ref.ID == "" {
			return Request{}, ErrMissingRecordID
		}
		req.ExternalID = ref.ID
		return req, nil
	}

	payload, err := crmsync.DecodePayload(item.TargetEntityType, item.RequestPayload)
	if err != nil {
		return Request{}, err
	}

	switch p := payload.(type) {
	case crmsync.LeadPayload:
		req.Record = compact(map[string]any{
			"First_Name":  p.FirstName,
			"Last_Name":   p.LastName,
			"Email":       p.Email,
			"Phone":       p.Phone,
			"Company":     p.Company,
			"Lead_Source": p.LeadSource,
			"Description": p.Description,
		})
		req.DuplicateCheckFields = []string{"Email"}
	case crmsync.ContactPayload:
		req.Record = compact(map[string]any{
			"First_Name":   p.FirstName,
			"Last_Name":    p.LastName,
			"Email":        p.Email,
			"Phone":        p.Phone,
			"Account_Name": p.AccountName,
			"Mailing_City": p.MailingCity,
		})
		req.DuplicateCheckFields = []string{"Email"}
	case crmsync.DealPayload:
		req.Record = compact(map[string]any{
			"Deal_Name":     p.DealName,
			"Stage":         p.Stage,
			"Amount":        p.Amount,
			"Contact_Email": p.ContactEmail,
			"Closing_Date":  p.ClosingDate,
			"Description":   p.Description,
		})
		req.DuplicateCheckFields = []string{"Deal_Name"}
	case crmsync.SalesOrderPayload:
		lines := make([]map[string]any, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, map[string]any{
				"product":    map[string]any{"Product_Code": l.SKU, "name": l.Name},
				"quantity":   l.Quantity,
				"list_price": l.UnitPrice,
				"total":      l.Total,
			})
		}
		req.Record = compact(map[string]any{
			"Subject":         p.Subject,
			"Status":          p.Status,
			"Order_Number":    p.OrderNumber,
			"Customer_Email":  p.CustomerEmail,
			"Customer_Name":   p.CustomerName,
			"Payment_ID":      p.PaymentID,
			"Sub_Total":       p.Subtotal,
			"Tax":             p.Tax,
			"Adjustment":      p.Shipping,
			"Discount":        p.Discount,
			"Grand_Total":     p.Total,
			"Product_Details": lines,
		})
		req.DuplicateCheckFields = []string{"Subject"}
	case crmsync.GenericPayload:
		req.Record = p.Fields
	default:
		return Request{}, fmt.Errorf("unsupported payload type %T", payload)
	}
	return req, nil
}

// compact drops empty string fields so upserts never blank CRM values
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		if s, ok := v.(string); ok && s == "" {
			delete(m, k)
		}
	}
	return m
}
