package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway opens Stripe Checkout sessions.
type StripeGateway struct {
	api           *client.API
	priceOneTime  string
	priceMonthly  string
	webhookSecret string
}

// NewStripeGateway creates a gateway. backends may be nil to use Stripe's API.
func NewStripeGateway(secretKey, priceOneTime, priceMonthly, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, backends),
		priceOneTime:  priceOneTime,
		priceMonthly:  priceMonthly,
		webhookSecret: webhookSecret,
	}
}

// CreateCheckout opens a Checkout session. Monthly billing uses subscription
// mode; the subscription carries the user id so cancellation can revoke premium.
func (g *StripeGateway) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	price := g.priceOneTime
	mode := stripe.CheckoutSessionModePayment
	if p.BillingType == BillingMonthly {
		price = g.priceMonthly
		mode = stripe.CheckoutSessionModeSubscription
	}
	if price == "" {
		return nil, fmt.Errorf("stripe price for %s billing is not configured", p.BillingType)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		ClientReferenceID: stripe.String(p.PaymentID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", p.PaymentID)
	params.AddMetadata("user_id", p.UserID)
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"payment_id": p.PaymentID, "user_id": p.UserID},
		}
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout: %w", err)
	}
	return &CheckoutSession{ExternalID: sess.ID, URL: sess.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func decodeEventObject(event stripe.Event, dst any) error {
	if event.Data == nil {
		return fmt.Errorf("stripe event %s has no data", event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		return fmt.Errorf("decode stripe %s: %w", event.Type, err)
	}
	return nil
}
