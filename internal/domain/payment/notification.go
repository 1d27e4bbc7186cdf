package payment

import "strings"

// Gateway statuses reported in a notification
const (
	StatusSuccess       = "success"
	StatusFailure       = "failure"
	StatusUserCancelled = "usercancelled"
	StatusDropped       = "dropped"
	StatusBounced       = "bounced"
)

// Notification is an inbound payment-gateway callback.
// UDF1 carries the order identifier set at checkout. Fields hold the values
// exactly as posted so the signature can be checked over them; the accessors
// below trim for lookups.
type Notification struct {
	Key         string
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	UDF         [10]string
	Status      string
	EasepayID   string
	Mode        string
	Hash        string
	ErrorMsg    string
}

// OrderRef returns the correlation field carrying the order identifier
func (n *Notification) OrderRef() string {
	return strings.TrimSpace(n.UDF[0])
}

// PaymentID returns the gateway's payment identifier
func (n *Notification) PaymentID() string {
	return strings.TrimSpace(n.EasepayID)
}

// PaymentMethod returns the payment mode reported by the gateway
func (n *Notification) PaymentMethod() string {
	return strings.TrimSpace(n.Mode)
}

// IsSuccess reports whether the gateway captured the payment
func (n *Notification) IsSuccess() bool {
	return strings.EqualFold(strings.TrimSpace(n.Status), StatusSuccess)
}

// MissingFields lists required fields that are empty
func (n *Notification) MissingFields() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"txnid", n.TxnID},
		{"status", n.Status},
		{"hash", n.Hash},
		{"udf1", n.UDF[0]},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Verifier checks that a notification was produced by the gateway
type Verifier interface {
	Verify(n *Notification) bool
}
