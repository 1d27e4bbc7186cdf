package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotification_MissingFields(t *testing.T) {
	n := &Notification{}
	assert.Equal(t, []string{"txnid", "status", "hash", "udf1"}, n.MissingFields())

	n = &Notification{TxnID: "ORD-1", Status: "success", Hash: "abc"}
	n.UDF[0] = " "
	assert.Equal(t, []string{"udf1"}, n.MissingFields())

	n.UDF[0] = "ORD-1"
	assert.Empty(t, n.MissingFields())
	assert.Equal(t, "ORD-1", n.OrderRef())
}

func TestNotification_IsSuccess(t *testing.T) {
	assert.True(t, (&Notification{Status: "success"}).IsSuccess())
	assert.True(t, (&Notification{Status: " SUCCESS "}).IsSuccess())
	assert.False(t, (&Notification{Status: StatusFailure}).IsSuccess())
	assert.False(t, (&Notification{Status: StatusUserCancelled}).IsSuccess())
}

func TestNotification_LookupAccessorsTrim(t *testing.T) {
	n := &Notification{EasepayID: " EP1\t", Mode: " UPI "}
	n.UDF[0] = " 3f1c9a0e-0000-4000-8000-000000000001 "

	assert.Equal(t, "EP1", n.PaymentID())
	assert.Equal(t, "UPI", n.PaymentMethod())
	assert.Equal(t, "3f1c9a0e-0000-4000-8000-000000000001", n.OrderRef())
	assert.Equal(t, " EP1\t", n.EasepayID)
}
