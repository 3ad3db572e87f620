package payments

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/domain/users"
)

const (
	ProviderStripe     = "stripe"
	ProviderAbacatePay = "abacatepay"
)

// BillingType is how often the user pays.
type BillingType string

const (
	BillingOneTime BillingType = "one_time"
	BillingMonthly BillingType = "monthly"
)

// Status is the lifecycle of a payment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusRefunded Status = "refunded"
)

// Payment is one checkout attempt.
type Payment struct {
	bun.BaseModel `bun:"table:core.payments,alias:p"`

	ID          string      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID      string      `bun:"user_id,type:uuid,notnull"`
	Provider    string      `bun:"provider,notnull"`
	BillingType BillingType `bun:"billing_type,notnull"`
	AmountCents int64       `bun:"amount_cents,notnull"`
	Currency    string      `bun:"currency,notnull"`
	Status      Status      `bun:"status,notnull,default:'pending'"`
	ExternalID  *string     `bun:"external_id"`
	CheckoutURL *string     `bun:"checkout_url"`
	PaidAt      *time.Time  `bun:"paid_at"`
	CreatedAt   time.Time   `bun:"created_at,notnull,default:now()"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull,default:now()"`
}

// Renewable reports whether further provider charges settle this payment
// again. AbacatePay bills a monthly plan as repeated payments of one billing.
func (p *Payment) Renewable() bool {
	return p.Provider == ProviderAbacatePay && p.BillingType == BillingMonthly
}

// Grant is the premium a settled payment confers. A nil Until means
// premium lasts until revoked.
type Grant struct {
	Until  *time.Time
	Status string
}

// GrantFunc decides the grant from the owner's current state.
type GrantFunc func(user *users.User) Grant

// Settlement is the outcome of settling a payment. User is nil when the
// owner no longer exists.
type Settlement struct {
	User  *users.User
	Grant Grant
}

// WebhookEvent records a consumed provider event.
type WebhookEvent struct {
	bun.BaseModel `bun:"table:core.webhook_events,alias:we"`

	Provider   string    `bun:"provider,pk"`
	EventID    string    `bun:"event_id,pk"`
	Type       string    `bun:"type,notnull"`
	ReceivedAt time.Time `bun:"received_at,notnull,default:now()"`
}

// CheckoutRequest is the body of POST /api/payments/checkout.
type CheckoutRequest struct {
	Provider    string      `json:"provider" validate:"required,oneof=stripe abacatepay"`
	BillingType BillingType `json:"billingType" validate:"required,oneof=one_time monthly"`
}

// CheckoutResponse points the browser at the provider.
type CheckoutResponse struct {
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// PaymentDTO is the owner's view of a payment.
type PaymentDTO struct {
	ID          string      `json:"id"`
	Provider    string      `json:"provider"`
	BillingType BillingType `json:"billingType"`
	AmountCents int64       `json:"amountCents"`
	Currency    string      `json:"currency"`
	Status      Status      `json:"status"`
	CheckoutURL *string     `json:"checkoutUrl,omitempty"`
	PaidAt      *time.Time  `json:"paidAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ToDTO converts a payment for its owner.
func ToDTO(p *Payment) PaymentDTO {
	return PaymentDTO{
		ID:          p.ID,
		Provider:    p.Provider,
		BillingType: p.BillingType,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Status:      p.Status,
		CheckoutURL: p.CheckoutURL,
		PaidAt:      p.PaidAt,
		CreatedAt:   p.CreatedAt,
	}
}
