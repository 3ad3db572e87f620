package accounts

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/vaguinhas/vaguinhas/domain/users"
)

// MagicLink is a single-use sign-in link. Only the token hash is stored.
type MagicLink struct {
	bun.BaseModel `bun:"table:core.magic_links,alias:ml"`

	ID        string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TokenHash string     `bun:"token_hash,notnull"`
	UserID    string     `bun:"user_id,type:uuid,notnull"`
	ExpiresAt time.Time  `bun:"expires_at,notnull"`
	Used      bool       `bun:"used,notnull,default:false"`
	UsedAt    *time.Time `bun:"used_at"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:now()"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=120"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// MagicLinkRequest is the body of POST /api/auth/magic-link.
type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// VerifyMagicLinkRequest is the body of POST /api/auth/magic-link/verify.
type VerifyMagicLinkRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// UserDTO is the signed-in user as returned to clients.
type UserDTO struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           *string    `json:"name,omitempty"`
	Confirmed      bool       `json:"confirmed"`
	SeniorityLevel *string    `json:"seniorityLevel,omitempty"`
	Stacks         []string   `json:"stacks"`
	Premium        bool       `json:"premium"`
	PremiumUntil   *time.Time `json:"premiumUntil,omitempty"`
	OAuthProvider  *string    `json:"oauthProvider,omitempty"`
}

// ToUserDTO converts a user for session responses. Premium reflects whether
// premium is in effect now, not only the stored flag.
func ToUserDTO(u *users.User, now time.Time) UserDTO {
	stacks := []string(u.Stacks)
	if stacks == nil {
		stacks = []string{}
	}
	return UserDTO{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Confirmed:      u.Confirmed,
		SeniorityLevel: u.SeniorityLevel,
		Stacks:         stacks,
		Premium:        u.HasPremium(now),
		PremiumUntil:   u.PremiumUntil,
		OAuthProvider:  u.OAuthProvider,
	}
}

// Session is a freshly issued session token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserDTO   `json:"user"`
}
