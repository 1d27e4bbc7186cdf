package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	domainpayment "github.com/storefront/backend/internal/domain/payment"
)

// EasebuzzVerifier validates the reverse hash Easebuzz attaches to callbacks:
//
//	sha512(salt|status|udf10|udf9|...|udf1|email|firstname|productinfo|amount|txnid|key)
//
// rendered as lowercase hex.
type EasebuzzVerifier struct {
	config EasebuzzConfig
	logger *zap.Logger
}

// NewEasebuzzVerifier creates a verifier. The config must be valid.
func NewEasebuzzVerifier(config EasebuzzConfig, logger *zap.Logger) (*EasebuzzVerifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EasebuzzVerifier{config: config, logger: logger}, nil
}

// Verify reports whether n carries a valid signature for this merchant.
// It never mutates n and never returns an error: any doubt is false.
func (v *EasebuzzVerifier) Verify(n *domainpayment.Notification) bool {
	if n == nil {
		return false
	}
	for _, required := range []string{n.TxnID, n.EasepayID, n.UDF[0], n.Status, n.Hash} {
		if strings.TrimSpace(required) == "" {
			return false
		}
	}
	if key := strings.TrimSpace(n.Key); key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(v.config.MerchantKey)) != 1 {
		v.logger.Debug("easebuzz callback for a different merchant key", zap.String("txnid", n.TxnID))
		return false
	}

	expected := v.ReverseHash(n)
	supplied := strings.ToLower(strings.TrimSpace(n.Hash))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

// ReverseHash computes the hash Easebuzz is expected to send for n
func (v *EasebuzzVerifier) ReverseHash(n *domainpayment.Notification) string {
	parts := make([]string, 0, 18)
	parts = append(parts, v.config.Salt, n.Status)
	for i := len(n.UDF) - 1; i >= 0; i-- {
		parts = append(parts, n.UDF[i])
	}
	parts = append(parts, n.Email, n.FirstName, n.ProductInfo, n.Amount, n.TxnID, v.config.MerchantKey)

	sum := sha512.Sum512([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Sign fills n.Key and n.Hash so that Verify accepts it. Used by tests and
// by tooling that replays callbacks against a local server.
func (v *EasebuzzVerifier) Sign(n *domainpayment.Notification) {
	n.Key = v.config.MerchantKey
	n.Hash = v.ReverseHash(n)
}

var _ domainpayment.Verifier = (*EasebuzzVerifier)(nil)
