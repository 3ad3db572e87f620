package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var (
	ErrAlreadySubscribed = apperror.NewConflict("Email already subscribed")
	ErrAlreadyConfirmed  = apperror.NewConflict("Email already confirmed")
	ErrTokenNotFound     = apperror.New(http.StatusNotFound, "token_not_found", "Confirmation token not found")
	ErrTokenExpired      = apperror.New(http.StatusBadRequest, "token_expired", "Confirmation token has expired")
	ErrSubscriberMissing = apperror.New(http.StatusNotFound, "subscriber_not_found", "Subscriber not found")
	ErrBadUnsubscribe    = apperror.NewForbidden("Invalid unsubscribe token")
)

// Store is the slice of the users repository the newsletter flows need.
type Store interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByConfirmationTokenHash(ctx context.Context, hash string) (*users.User, error)
	Create(ctx context.Context, user *users.User) error
	Update(ctx context.Context, user *users.User, columns ...string) error
	AddFeedback(ctx context.Context, userID, message string) (*users.Feedback, error)
	AddHiredMessage(ctx context.Context, userID string, company *string, message string) (*users.HiredMessage, error)
}

// TxRunner runs work in one database transaction carried by ctx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements subscribe, confirm and unsubscribe.
type Service struct {
	store           Store
	mail            email.Enqueuer
	tx              TxRunner
	app             config.AppConfig
	confirmationTTL time.Duration
	unsubSecret     string
	log             *slog.Logger
	now             func() time.Time
}

// NewService creates the subscribers service.
func NewService(store Store, mail email.Enqueuer, tx TxRunner, cfg *config.Config, log *slog.Logger) *Service {
	ttl := cfg.Auth.ConfirmationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:           store,
		mail:            mail,
		tx:              tx,
		app:             cfg.App,
		confirmationTTL: ttl,
		unsubSecret:     cfg.Auth.JWTSecret,
		log:             log.With(logger.Scope("subscribers.svc")),
		now:             time.Now,
	}
}

// Subscribe creates a pending subscriber and sends the confirmation email.
// A previously unsubscribed address is reactivated and must confirm again.
// The user row and its confirmation job commit together.
func (s *Service) Subscribe(ctx context.Context, req *SubscribeRequest) (*users.User, bool, error) {
	var (
		user        *users.User
		reactivated bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		user, reactivated, err = s.subscribe(ctx, req)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return user, reactivated, nil
}

func (s *Service) subscribe(ctx context.Context, req *SubscribeRequest) (*users.User, bool, error) {
	addr := users.NormalizeEmail(req.Email)
	stacks := catalog.NormalizeStacks(req.Stacks)
	seniority := req.SeniorityLevel

	existing, err := s.store.FindByEmail(ctx, addr)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		if !existing.Unsubscribed {
			return nil, false, ErrAlreadySubscribed
		}

		existing.Unsubscribed = false
		existing.UnsubscribedAt = nil
		existing.Confirmed = false
		existing.ConfirmedAt = nil
		existing.ReminderSentAt = nil
		existing.SeniorityLevel = &seniority
		existing.Stacks = stacks
		if req.Name != nil && *req.Name != "" {
			existing.Name = req.Name
		}
		raw := s.assignToken(existing)
		if err := s.store.Update(ctx, existing,
			"unsubscribed", "unsubscribed_at", "confirmed", "confirmed_at", "reminder_sent_at",
			"seniority_level", "stacks", "name", "confirmation_token_hash", "confirmation_expires_at",
		); err != nil {
			return nil, false, err
		}
		s.log.Info("subscriber reactivated", slog.String("user_id", existing.ID))
		if err := s.sendConfirmation(ctx, existing, raw, "confirmation"); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	user := &users.User{
		Email:          addr,
		Name:           req.Name,
		SeniorityLevel: &seniority,
		Stacks:         stacks,
	}
	raw := s.assignToken(user)
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, false, ErrAlreadySubscribed
		}
		return nil, false, err
	}

	s.log.Info("subscriber created", slog.String("user_id", user.ID))
	if err := s.sendConfirmation(ctx, user, raw, "confirmation"); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// Confirm consumes a confirmation token. Confirming twice is not an error;
// the second call reports alreadyConfirmed.
func (s *Service) Confirm(ctx context.Context, token string) (*users.User, bool, error) {
	if token == "" {
		return nil, false, ErrTokenNotFound
	}
	user, err := s.store.FindByConfirmationTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, ErrTokenNotFound
	}
	if user.Confirmed {
		return user, true, nil
	}

	now := s.now()
	if user.ConfirmationExpiresAt != nil && now.After(*user.ConfirmationExpiresAt) {
		return nil, false, ErrTokenExpired
	}

	user.Confirmed = true
	user.ConfirmedAt = &now
	user.ConfirmationExpiresAt = nil
	if err := s.store.Update(ctx, user, "confirmed", "confirmed_at", "confirmation_expires_at"); err != nil {
		return nil, false, err
	}

	s.log.Info("subscriber confirmed", slog.String("user_id", user.ID))

	seniority := ""
	if user.SeniorityLevel != nil {
		seniority = *user.SeniorityLevel
	}
	_, _, err = s.mail.Enqueue(ctx, email.Message{
		Template: "welcome",
		To:       user.Email,
		ToName:   user.DisplayName(),
		Subject:  "Bem-vindo(a) ao vaguinhas!",
		Data: map[string]any{
			"seniorityLevel": seniority,
			"stacks":         []string(user.Stacks),
			"preferencesUrl": s.app.URL("/preferencias"),
		},
		Unsubscribe:    true,
		IdempotencyKey: "welcome:" + user.ID,
	})
	if err != nil {
		return nil, false, apperror.NewInternal("failed to queue welcome email", err)
	}
	return user, false, nil
}

// ResendConfirmation issues a fresh token to an unconfirmed subscriber.
func (s *Service) ResendConfirmation(ctx context.Context, addr string) error {
	user, err := s.store.FindByEmail(ctx, addr)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrSubscriberMissing
	}
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}
	_, err = s.RefreshConfirmation(ctx, user, "confirmation", "")
	return err
}

// RefreshConfirmation replaces the user's confirmation token and queues
// template with the new link. An empty key derives one from the token.
func (s *Service) RefreshConfirmation(ctx context.Context, user *users.User, template, key string) (bool, error) {
	var created bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		raw := s.assignToken(user)
		if err := s.store.Update(ctx, user, "confirmation_token_hash", "confirmation_expires_at"); err != nil {
			return err
		}
		if key == "" {
			key = confirmationKey(user, raw)
		}
		var err error
		_, created, err = s.mail.Enqueue(ctx, s.confirmationMessage(user, raw, template, key))
		if err != nil {
			return apperror.NewInternal("failed to queue confirmation email", err)
		}
		return nil
	})
	return created, err
}

// Unsubscribe opts the address out. The token must be the HMAC of the email.
func (s *Service) Unsubscribe(ctx context.Context, addr, token string) error {
	addr = users.NormalizeEmail(addr)
	if !auth.VerifyUnsubscribeToken(s.unsubSecret, addr, token) {
		return ErrBadUnsubscribe
	}

	user, err := s.store.FindByEmail(ctx, addr)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrSubscriberMissing
	}
	if user.Unsubscribed {
		return nil
	}

	now := s.now()
	user.Unsubscribed = true
	user.UnsubscribedAt = &now
	if err := s.store.Update(ctx, user, "unsubscribed", "unsubscribed_at"); err != nil {
		return err
	}
	s.log.Info("subscriber unsubscribed", slog.String("user_id", user.ID))

	_, _, err = s.mail.Enqueue(ctx, email.Message{
		Template:       "unsubscribed",
		To:             user.Email,
		ToName:         user.DisplayName(),
		Subject:        "Você cancelou sua inscrição",
		Data:           map[string]any{"resubscribeUrl": s.app.URL("/")},
		IdempotencyKey: fmt.Sprintf("unsubscribed:%s:%d", user.ID, now.Unix()),
	})
	if err != nil {
		s.log.Warn("failed to queue unsubscribed email", slog.String("user_id", user.ID), logger.Error(err))
	}
	return nil
}

// UpdatePreferences changes the seniority and stacks of userID.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, req *PreferencesRequest) (*users.User, error) {
	user, err := s.mustFind(ctx, userID)
	if err != nil {
		return nil, err
	}
	seniority := req.SeniorityLevel
	user.SeniorityLevel = &seniority
	user.Stacks = catalog.NormalizeStacks(req.Stacks)
	if err := s.store.Update(ctx, user, "seniority_level", "stacks"); err != nil {
		return nil, err
	}
	return user, nil
}

// AddFeedback stores a feedback message from userID.
func (s *Service) AddFeedback(ctx context.Context, userID string, req *FeedbackRequest) (*users.Feedback, error) {
	if _, err := s.mustFind(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.AddFeedback(ctx, userID, req.Message)
}

// GotHired stores a "got hired" story from userID.
func (s *Service) GotHired(ctx context.Context, userID string, req *GotHiredRequest) (*users.HiredMessage, error) {
	if _, err := s.mustFind(ctx, userID); err != nil {
		return nil, err
	}
	company := req.Company
	if company != nil && *company == "" {
		company = nil
	}
	return s.store.AddHiredMessage(ctx, userID, company, req.Message)
}

// Get returns the subscriber behind a session.
func (s *Service) Get(ctx context.Context, userID string) (*users.User, error) {
	return s.mustFind(ctx, userID)
}

func (s *Service) mustFind(ctx context.Context, userID string) (*users.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSubscriberMissing
	}
	return user, nil
}

// assignToken sets a new confirmation token on user and returns the raw value.
// The hash stays on the row after confirmation so a repeated click is idempotent.
func (s *Service) assignToken(user *users.User) string {
	raw := auth.NewToken()
	hash := auth.HashToken(raw)
	expires := s.now().Add(s.confirmationTTL)
	user.ConfirmationTokenHash = &hash
	user.ConfirmationExpiresAt = &expires
	return raw
}

func (s *Service) sendConfirmation(ctx context.Context, user *users.User, raw, template string) error {
	_, _, err := s.mail.Enqueue(ctx, s.confirmationMessage(user, raw, template, confirmationKey(user, raw)))
	if err != nil {
		return apperror.NewInternal("failed to queue confirmation email", err)
	}
	return nil
}

func (s *Service) confirmationMessage(user *users.User, raw, template, key string) email.Message {
	subject := "Confirme seu email no vaguinhas"
	if template == "confirmation-reminder" {
		subject = "Falta pouco: confirme seu email"
	}
	return email.Message{
		Template: template,
		To:       user.Email,
		ToName:   user.DisplayName(),
		Subject:  subject,
		Data: map[string]any{
			"confirmUrl":   s.app.URL("/confirm?token=" + raw),
			"expiresHours": int(s.confirmationTTL.Hours()),
		},
		IdempotencyKey: key,
	}
}

// confirmationKey is unique per issued token, so a resend is a new email
// while a retried enqueue of the same token is not.
func confirmationKey(user *users.User, raw string) string {
	return "confirmation:" + user.ID + ":" + auth.HashToken(raw)[:16]
}
