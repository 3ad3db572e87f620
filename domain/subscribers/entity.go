package subscribers

import (
	"time"

	"github.com/vaguinhas/vaguinhas/domain/users"
)

// SubscribeRequest is the body of POST /api/subscribe.
type SubscribeRequest struct {
	Email          string   `json:"email" validate:"required,email,max=254"`
	Name           *string  `json:"name,omitempty" validate:"omitempty,max=120"`
	SeniorityLevel string   `json:"seniorityLevel" validate:"required,seniority"`
	Stacks         []string `json:"stacks" validate:"required,min=1,max=9,dive,stack"`
}

// ResendRequest is the body of POST /api/resend-confirmation.
type ResendRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// UnsubscribeRequest is accepted as JSON (POST) or query string (GET).
type UnsubscribeRequest struct {
	Email string `json:"email" query:"email" validate:"required,email,max=254"`
	Token string `json:"token" query:"token" validate:"required,max=128"`
}

// PreferencesRequest is the body of PUT /api/subscribers/me/preferences.
type PreferencesRequest struct {
	SeniorityLevel string   `json:"seniorityLevel" validate:"required,seniority"`
	Stacks         []string `json:"stacks" validate:"required,min=1,max=9,dive,stack"`
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// GotHiredRequest is the body of POST /api/got-hired.
type GotHiredRequest struct {
	Company *string `json:"company,omitempty" validate:"omitempty,max=200"`
	Message string  `json:"message" validate:"required,min=1,max=2000"`
}

// SubscriberDTO is the public view of a subscriber.
type SubscriberDTO struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           *string    `json:"name,omitempty"`
	SeniorityLevel *string    `json:"seniorityLevel,omitempty"`
	Stacks         []string   `json:"stacks"`
	Confirmed      bool       `json:"confirmed"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
	Unsubscribed   bool       `json:"unsubscribed"`
	Premium        bool       `json:"premium"`
	PremiumUntil   *time.Time `json:"premiumUntil,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ToDTO converts a user into its public subscriber view.
func ToDTO(u *users.User) SubscriberDTO {
	stacks := []string(u.Stacks)
	if stacks == nil {
		stacks = []string{}
	}
	return SubscriberDTO{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		SeniorityLevel: u.SeniorityLevel,
		Stacks:         stacks,
		Confirmed:      u.Confirmed,
		ConfirmedAt:    u.ConfirmedAt,
		Unsubscribed:   u.Unsubscribed,
		Premium:        u.Premium,
		PremiumUntil:   u.PremiumUntil,
		CreatedAt:      u.CreatedAt,
	}
}

// SubscribeResponse is returned by POST /api/subscribe.
type SubscribeResponse struct {
	Message     string        `json:"message"`
	Reactivated bool          `json:"reactivated"`
	Subscriber  SubscriberDTO `json:"subscriber"`
}

// ConfirmResponse is returned by GET /api/confirm.
type ConfirmResponse struct {
	Message          string `json:"message"`
	Confirmed        bool   `json:"confirmed"`
	AlreadyConfirmed bool   `json:"alreadyConfirmed"`
}

// MessageResponse carries a human readable status.
type MessageResponse struct {
	Message string `json:"message"`
}
