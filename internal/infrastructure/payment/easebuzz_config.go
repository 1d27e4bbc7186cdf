package payment

import "errors"

// EasebuzzConfig contains the merchant credentials shared with Easebuzz
type EasebuzzConfig struct {
	// MerchantKey is the public merchant key echoed back in every callback
	MerchantKey string
	// Salt is the shared secret mixed into the reverse hash
	Salt string
}

// Errors for configuration validation
var (
	ErrEasebuzzMissingKey  = errors.New("easebuzz: missing merchant key")
	ErrEasebuzzMissingSalt = errors.New("easebuzz: missing salt")
)

// Validate validates the configuration
func (c *EasebuzzConfig) Validate() error {
	if c.MerchantKey == "" {
		return ErrEasebuzzMissingKey
	}
	if c.Salt == "" {
		return ErrEasebuzzMissingSalt
	}
	return nil
}
