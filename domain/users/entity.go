package users

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// Subscription states mirrored from the payment provider.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionOneTime  = "one_time"
)

// User is a newsletter subscriber and, optionally, an account holder.
type User struct {
	bun.BaseModel `bun:"table:core.users,alias:u"`

	ID             string         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email          string         `bun:"email,notnull" json:"email"`
	Name           *string        `bun:"name" json:"name,omitempty"`
	SeniorityLevel *string        `bun:"seniority_level" json:"seniorityLevel,omitempty"`
	Stacks         pq.StringArray `bun:"stacks,type:text[],notnull,default:'{}'" json:"stacks"`

	Confirmed             bool       `bun:"confirmed,notnull,default:false" json:"confirmed"`
	ConfirmedAt           *time.Time `bun:"confirmed_at" json:"confirmedAt,omitempty"`
	ConfirmationTokenHash *string    `bun:"confirmation_token_hash" json:"-"`
	ConfirmationExpiresAt *time.Time `bun:"confirmation_expires_at" json:"-"`
	ReminderSentAt        *time.Time `bun:"reminder_sent_at" json:"-"`

	Unsubscribed   bool       `bun:"unsubscribed,notnull,default:false" json:"unsubscribed"`
	UnsubscribedAt *time.Time `bun:"unsubscribed_at" json:"-"`

	PasswordHash  *string `bun:"password_hash" json:"-"`
	OAuthProvider *string `bun:"oauth_provider" json:"oauthProvider,omitempty"`
	OAuthSubject  *string `bun:"oauth_subject" json:"-"`

	Premium            bool       `bun:"premium,notnull,default:false" json:"premium"`
	PremiumUntil       *time.Time `bun:"premium_until" json:"premiumUntil,omitempty"`
	SubscriptionStatus *string    `bun:"subscription_status" json:"subscriptionStatus,omitempty"`
	StripeCustomerID   *string    `bun:"stripe_customer_id" json:"-"`

	LastDigestAt *time.Time `bun:"last_digest_at" json:"-"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// DisplayName returns the user's name or an empty string.
func (u *User) DisplayName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

// IsActiveSubscriber reports whether the user should receive newsletter email.
func (u *User) IsActiveSubscriber() bool {
	return u.Confirmed && !u.Unsubscribed
}

// HasPremium reports whether premium access is in effect at now.
// A premium flag without an end date lasts until revoked.
func (u *User) HasPremium(now time.Time) bool {
	if !u.Premium {
		return false
	}
	return u.PremiumUntil == nil || u.PremiumUntil.After(now)
}

// Feedback is one message from the feedback form.
type Feedback struct {
	bun.BaseModel `bun:"table:core.user_feedback,alias:uf"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID    string    `bun:"user_id,type:uuid,notnull" json:"userId"`
	Message   string    `bun:"message,notnull" json:"message"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// HiredMessage is a "got hired" story shared by a subscriber.
type HiredMessage struct {
	bun.BaseModel `bun:"table:core.hired_messages,alias:hm"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID    string    `bun:"user_id,type:uuid,notnull" json:"userId"`
	Company   *string   `bun:"company" json:"company,omitempty"`
	Message   string    `bun:"message,notnull" json:"message"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// SubscriberFilter pages through active subscribers by id.
type SubscriberFilter struct {
	// AfterID is the last id of the previous page.
	AfterID string
	Limit   int
	// ExcludePremium skips users with premium in effect at Now.
	ExcludePremium bool
	Now            time.Time
}

// NormalizeEmail lowercases and trims an address. Every lookup and write uses it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
