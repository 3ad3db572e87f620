package payments

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned when a webhook cannot be authenticated.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutParams describes the checkout to open with a provider.
type CheckoutParams struct {
	PaymentID     string
	UserID        string
	BillingType   BillingType
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerID    string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's answer to a checkout request.
type CheckoutSession struct {
	ExternalID string
	URL        string
}

// Gateway opens hosted checkouts with one provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
}

// Gateways holds the configured gateways by provider name.
type Gateways map[string]Gateway
