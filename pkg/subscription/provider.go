package subscription

import (
	"context"
	"fmt"
	"strings"
)

// BillingProvider verifies and normalizes webhook deliveries from one
// payment provider.
type BillingProvider interface {
	Name() string
	// SignatureHeader is the HTTP header carrying the delivery signature.
	SignatureHeader() string
	// ParseWebhook verifies signature against payload and returns the
	// normalized event. Unverifiable deliveries return an error wrapping
	// ErrWebhookVerificationFailed; undecodable ones wrap ErrMalformedWebhook.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (BillingEvent, error)
}

// NewProvider builds the provider selected by cfg.BillingProvider.
func NewProvider(cfg Config, stripeCfg StripeConfig, paddleCfg PaddleConfig) (BillingProvider, error) {
	switch strings.ToLower(cfg.BillingProvider) {
	case "stripe", "":
		return NewStripeProvider(stripeCfg)
	case "paddle":
		return NewPaddleProvider(paddleCfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBillingProvider, cfg.BillingProvider)
}
