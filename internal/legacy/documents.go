// Package legacy imports the MongoDB collections of the previous deployment
// into the Postgres schema.
package legacy

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserDoc is a document of the users collection.
type UserDoc struct {
	ID                       bson.ObjectID `bson:"_id"`
	Email                    string        `bson:"email"`
	Name                     string        `bson:"name,omitempty"`
	SeniorityLevel           string        `bson:"seniorityLevel,omitempty"`
	Stacks                   []string      `bson:"stacks,omitempty"`
	Confirmed                bool          `bson:"confirmed"`
	ConfirmationToken        string        `bson:"confirmationToken,omitempty"`
	ConfirmationTokenExpires *time.Time    `bson:"confirmationTokenExpires,omitempty"`
	Password                 string        `bson:"password,omitempty"`
	Provider                 string        `bson:"provider,omitempty"`
	ProviderAccountID        string        `bson:"providerAccountId,omitempty"`
	Unsubscribed             bool          `bson:"unsubscribed"`
	UnsubscribedAt           *time.Time    `bson:"unsubscribedAt,omitempty"`
	IsPremium                bool          `bson:"isPremium"`
	PremiumExpiresAt         *time.Time    `bson:"premiumExpiresAt,omitempty"`
	SubscriptionStatus       string        `bson:"subscriptionStatus,omitempty"`
	StripeCustomerID         string        `bson:"stripeCustomerId,omitempty"`
	Feedback                 []MessageDoc  `bson:"feedback,omitempty"`
	HiredMessages            []MessageDoc  `bson:"gotHiredMessages,omitempty"`
	CreatedAt                time.Time     `bson:"createdAt"`
	UpdatedAt                time.Time     `bson:"updatedAt"`
}

// MessageDoc is an element of the feedback and "got hired" arrays.
type MessageDoc struct {
	Message   string    `bson:"message"`
	Company   string    `bson:"company,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// JobPostingDoc is a document of the jobpostings collection.
type JobPostingDoc struct {
	ID              bson.ObjectID `bson:"_id"`
	LinkVaga        string        `bson:"linkVaga"`
	NomeEmpresa     string        `bson:"nomeEmpresa"`
	Cargo           string        `bson:"cargo"`
	Descricao       string        `bson:"descricao,omitempty"`
	Stack           string        `bson:"stack"`
	SeniorityLevel  string        `bson:"seniorityLevel"`
	Email           string        `bson:"email"`
	Logo            string        `bson:"logo,omitempty"`
	Status          string        `bson:"status,omitempty"`
	RejectionReason string        `bson:"rejectionReason,omitempty"`
	CreatedAt       time.Time     `bson:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt"`
}

// PaymentDoc is a document of the payments collection.
type PaymentDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	UserID      bson.ObjectID `bson:"userId"`
	Provider    string        `bson:"provider"`
	Type        string        `bson:"type"`
	Amount      float64       `bson:"amount"`
	Currency    string        `bson:"currency,omitempty"`
	Status      string        `bson:"status"`
	ExternalID  string        `bson:"externalId,omitempty"`
	CheckoutURL string        `bson:"url,omitempty"`
	PaidAt      *time.Time    `bson:"paidAt,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}
