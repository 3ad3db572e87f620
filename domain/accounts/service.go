package accounts

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var (
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	ErrEmailNotConfirmed  = apperror.New(http.StatusForbidden, "email_not_confirmed", "Confirm your email before signing in")
	ErrInvalidMagicLink   = apperror.New(http.StatusUnauthorized, "invalid_magic_link", "Magic link is invalid, expired or already used")
	ErrUnknownProvider    = apperror.New(http.StatusNotFound, "unknown_provider", "Sign-in provider is not available")
	ErrEmailNotVerified   = apperror.New(http.StatusForbidden, "email_not_verified", "The provider did not return a verified email")
)

// UserStore is the slice of the users repository accounts need.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, user *users.User) error
	Update(ctx context.Context, user *users.User, columns ...string) error
	UpsertOAuth(ctx context.Context, email, name, provider, subject string) (*users.User, error)
}

// LinkStore persists magic links.
type LinkStore interface {
	CreateMagicLink(ctx context.Context, link *MagicLink) error
	ConsumeMagicLink(ctx context.Context, hash string, now time.Time) (*MagicLink, error)
	DeleteStaleMagicLinks(ctx context.Context, now time.Time) (int64, error)
}

// Confirmer issues a confirmation token and queues its email.
type Confirmer interface {
	RefreshConfirmation(ctx context.Context, user *users.User, template, key string) (bool, error)
}

// TxRunner runs work in one database transaction carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements password, magic link and OAuth sign-in.
type Service struct {
	users      UserStore
	links      LinkStore
	confirmer  Confirmer
	tx         TxRunner
	mail       email.Enqueuer
	issuer     *auth.Issuer
	providers  Providers
	app        config.AppConfig
	bcryptCost int
	linkTTL    time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	fx.In

	Users     UserStore
	Links     LinkStore
	Confirmer Confirmer
	Tx        TxRunner
	Mail      email.Enqueuer
	Issuer    *auth.Issuer
	Providers Providers
	Config    *config.Config
	Log       *slog.Logger
}

// NewService creates the accounts service.
func NewService(p ServiceParams) *Service {
	cost := p.Config.Auth.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	ttl := p.Config.Auth.MagicLinkTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		users:      p.Users,
		links:      p.Links,
		confirmer:  p.Confirmer,
		tx:         p.Tx,
		mail:       p.Mail,
		issuer:     p.Issuer,
		providers:  p.Providers,
		app:        p.Config.App,
		bcryptCost: cost,
		linkTTL:    ttl,
		log:        p.Log.With(logger.Scope("accounts.svc")),
		now:        time.Now,
	}
}

// Register creates an unconfirmed account and queues the confirmation email
// in the same transaction.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*users.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, apperror.NewInternal("failed to hash password", err)
	}
	hashed := string(hash)

	user := &users.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: &hashed,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		_, err := s.confirmer.RefreshConfirmation(ctx, user, "confirmation", "")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("account registered", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks a password and issues a session.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Confirmed {
		return nil, ErrEmailNotConfirmed
	}
	return s.session(user)
}

// RequestMagicLink emails a sign-in link when the address belongs to a user.
// Unknown addresses are silently ignored.
func (s *Service) RequestMagicLink(ctx context.Context, addr string) error {
	user, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		return err
	}
	if user == nil {
		s.log.Debug("magic link requested for unknown email")
		return nil
	}

	raw := auth.NewToken()
	link := &MagicLink{
		TokenHash: auth.HashToken(raw),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.linkTTL),
	}
	if err := s.links.CreateMagicLink(ctx, link); err != nil {
		return err
	}

	_, _, err = s.mail.Enqueue(ctx, email.Message{
		Template: "magic-link",
		To:       user.Email,
		ToName:   user.DisplayName(),
		Subject:  "Seu link de acesso ao vaguinhas",
		Data: map[string]any{
			"loginUrl":       s.app.URL("/auth/magic-link?token=" + raw),
			"expiresMinutes": int(s.linkTTL.Minutes()),
		},
		IdempotencyKey: "magic-link:" + link.TokenHash[:16],
	})
	if err != nil {
		return apperror.NewInternal("failed to queue magic link email", err)
	}
	return nil
}

// VerifyMagicLink consumes a link and issues a session. Following a link
// proves ownership of the address, so the email is confirmed too. A password
// set before that proof is discarded.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*Session, error) {
	link, err := s.links.ConsumeMagicLink(ctx, auth.HashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrInvalidMagicLink
	}

	user, err := s.users.FindByID(ctx, link.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidMagicLink
	}

	if !user.Confirmed {
		now := s.now()
		user.Confirmed = true
		user.ConfirmedAt = &now
		user.ConfirmationExpiresAt = nil
		user.PasswordHash = nil
		if err := s.users.Update(ctx, user, "confirmed", "confirmed_at", "confirmation_expires_at", "password_hash"); err != nil {
			return nil, err
		}
	}
	return s.session(user)
}

// OAuthURL returns the provider's authorization URL for state.
func (s *Service) OAuthURL(ctx context.Context, provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	u, err := p.AuthURL(ctx, state)
	if err != nil {
		return "", apperror.ErrUnavailable.WithInternal(err)
	}
	return u, nil
}

// OAuthCallback exchanges the code and signs the user in, creating the
// account on first use.
func (s *Service) OAuthCallback(ctx context.Context, provider, code string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	id, err := p.Exchange(ctx, code)
	if err != nil {
		s.log.Warn("oauth exchange failed", slog.String("provider", provider), logger.Error(err))
		return nil, apperror.ErrUnauthorized.WithMessage("Sign-in with " + provider + " failed").WithInternal(err)
	}
	if id.Email == "" || !id.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	user, err := s.users.UpsertOAuth(ctx, id.Email, id.Name, provider, id.Subject)
	if err != nil {
		return nil, err
	}
	s.log.Info("oauth sign-in", slog.String("provider", provider), slog.String("user_id", user.ID))
	return s.session(user)
}

// CurrentUser returns the user behind a session.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*UserDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrUnauthorized
	}
	dto := ToUserDTO(user, s.now())
	return &dto, nil
}

// CleanupMagicLinks removes used and expired links.
func (s *Service) CleanupMagicLinks(ctx context.Context) (int64, error) {
	n, err := s.links.DeleteStaleMagicLinks(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("magic links purged", slog.Int64("count", n))
	}
	return n, nil
}

// HasProvider reports whether provider is configured.
func (s *Service) HasProvider(provider string) bool {
	_, ok := s.providers[provider]
	return ok
}

func (s *Service) session(user *users.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperror.NewInternal("failed to issue session", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: ToUserDTO(user, s.now())}, nil
}
