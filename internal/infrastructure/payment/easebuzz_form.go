package payment

import (
	"net/url"
	"strconv"

	domainpayment "github.com/storefront/backend/internal/domain/payment"
)

// ParseEasebuzzForm builds a notification from the form-encoded callback body.
// Values are kept verbatim because the hash covers them byte for byte.
// Fields Easebuzz adds beyond the hashed set are ignored.
func ParseEasebuzzForm(values url.Values) *domainpayment.Notification {
	get := values.Get

	n := &domainpayment.Notification{
		Key:         get("key"),
		TxnID:       get("txnid"),
		Amount:      get("amount"),
		ProductInfo: get("productinfo"),
		FirstName:   get("firstname"),
		Email:       get("email"),
		Phone:       get("phone"),
		Status:      get("status"),
		EasepayID:   get("easepayid"),
		Mode:        get("mode"),
		Hash:        get("hash"),
		ErrorMsg:    get("error_Message"),
	}
	for i := range n.UDF {
		n.UDF[i] = get("udf" + strconv.Itoa(i+1))
	}
	return n
}

// EncodeEasebuzzForm renders a notification as the form Easebuzz would post.
// Used to replay callbacks against a running server.
func EncodeEasebuzzForm(n *domainpayment.Notification) url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("key", n.Key)
	set("txnid", n.TxnID)
	set("amount", n.Amount)
	set("productinfo", n.ProductInfo)
	set("firstname", n.FirstName)
	set("email", n.Email)
	set("phone", n.Phone)
	set("status", n.Status)
	set("easepayid", n.EasepayID)
	set("mode", n.Mode)
	set("hash", n.Hash)
	set("error_Message", n.ErrorMsg)
	for i, udf := range n.UDF {
		set("udf"+strconv.Itoa(i+1), udf)
	}
	return v
}
