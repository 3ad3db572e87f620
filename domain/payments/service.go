package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
)

var (
	ErrPaymentNotFound     = apperror.New(http.StatusNotFound, "payment_not_found", "Payment not found")
	ErrProviderUnavailable = apperror.ErrUnavailable.WithMessage("Payment provider is not configured")
	ErrCheckoutFailed      = apperror.New(http.StatusBadGateway, "checkout_failed", "Could not start checkout with the payment provider")
	ErrBadSignature        = apperror.New(http.StatusBadRequest, "invalid_signature", "Invalid webhook signature")
	ErrBadWebhookSecret    = apperror.New(http.StatusUnauthorized, "invalid_webhook_secret", "Invalid webhook secret")
	ErrBadWebhookPayload   = apperror.NewBadRequest("Invalid webhook payload")
)

// Store persists payments and consumed webhook events.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*Payment, error)
	SetCheckout(ctx context.Context, id, externalID, url string) error
	Settle(ctx context.Context, id string, at time.Time, renew bool, grant GrantFunc) (*Settlement, error)
	SetStatus(ctx context.Context, id string, status Status) error
	RecordEvent(ctx context.Context, provider, eventID, eventType string) (bool, error)
	ForgetEvent(ctx context.Context, provider, eventID string) error
}

// UserStore is the premium side of the users repository.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	RevokePremium(ctx context.Context, userID string) error
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
}

// EventParser authenticates and decodes Stripe webhooks.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (stripe.Event, error)
}

// Service implements checkout, webhook consumption and premium grants.
type Service struct {
	store    Store
	users    UserStore
	gateways Gateways
	mail     email.Enqueuer
	cfg      config.PaymentsConfig
	app      config.AppConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates the payments service.
func NewService(store Store, userStore UserStore, gateways Gateways, mail email.Enqueuer, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		users:    userStore,
		gateways: gateways,
		mail:     mail,
		cfg:      cfg.Payments,
		app:      cfg.App,
		log:      log.With(logger.Scope("payments.svc")),
		now:      time.Now,
	}
}

// NewGateways builds a gateway for every configured provider.
func NewGateways(cfg *config.Config) Gateways {
	p := cfg.Payments
	gw := Gateways{}
	if p.StripeEnabled() {
		gw[ProviderStripe] = NewStripeGateway(p.StripeSecretKey, p.StripePriceOneTime, p.StripePriceMonthly, p.StripeWebhookSecret, nil)
	}
	if p.AbacatePayEnabled() {
		gw[ProviderAbacatePay] = NewAbacatePayGateway(p.AbacatePayBaseURL, p.AbacatePayAPIKey, nil)
	}
	return gw
}

// Checkout creates a pending payment and opens a provider checkout for it.
func (s *Service) Checkout(ctx context.Context, userID string, req *CheckoutRequest) (*CheckoutResponse, error) {
	gw, ok := s.gateways[req.Provider]
	if !ok {
		return nil, ErrProviderUnavailable
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.ErrUserNotFound
	}

	amount := s.cfg.OneTimeAmountCents
	if req.BillingType == BillingMonthly {
		amount = s.cfg.MonthlyAmountCents
	}

	p := &Payment{
		UserID:      user.ID,
		Provider:    req.Provider,
		BillingType: req.BillingType,
		AmountCents: amount,
		Currency:    s.cfg.Currency,
		Status:      StatusPending,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	params := CheckoutParams{
		PaymentID:     p.ID,
		UserID:        user.ID,
		BillingType:   req.BillingType,
		AmountCents:   amount,
		Currency:      s.cfg.Currency,
		CustomerEmail: user.Email,
		SuccessURL:    s.app.URL("/premium/sucesso?paymentId=" + p.ID),
		CancelURL:     s.app.URL("/premium?canceled=1"),
	}
	if user.StripeCustomerID != nil {
		params.CustomerID = *user.StripeCustomerID
	}

	sess, err := gw.CreateCheckout(ctx, params)
	if err != nil {
		s.log.Error("checkout failed",
			slog.String("provider", req.Provider),
			slog.String("payment_id", p.ID),
			logger.Error(err))
		if serr := s.store.SetStatus(ctx, p.ID, StatusFailed); serr != nil {
			s.log.Warn("could not mark payment failed", slog.String("payment_id", p.ID), logger.Error(serr))
		}
		return nil, ErrCheckoutFailed.WithInternal(err)
	}
	if err := s.store.SetCheckout(ctx, p.ID, sess.ExternalID, sess.URL); err != nil {
		return nil, err
	}

	s.log.Info("checkout started",
		slog.String("provider", req.Provider),
		slog.String("payment_id", p.ID),
		slog.String("billing_type", string(req.BillingType)))
	return &CheckoutResponse{PaymentID: p.ID, CheckoutURL: sess.URL}, nil
}

// Get returns a payment owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPaymentNotFound
	}
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// HandleStripeWebhook verifies and applies one Stripe event. Replayed events
// are acknowledged without effects.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	parser, ok := s.gateways[ProviderStripe].(EventParser)
	if !ok {
		return ErrProviderUnavailable
	}
	event, err := parser.ParseEvent(payload, signature)
	if err != nil {
		s.log.Warn("rejected stripe webhook", logger.Error(err))
		return ErrBadSignature
	}

	return s.consume(ctx, ProviderStripe, event.ID, string(event.Type), func() error {
		return s.applyStripeEvent(ctx, event)
	})
}

func (s *Service) applyStripeEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripe.CheckoutSession
		if err := decodeEventObject(event, &sess); err != nil {
			return err
		}
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			s.log.Info("checkout completed without payment yet", slog.String("session_id", sess.ID))
			return nil
		}
		p, err := s.paymentForSession(ctx, &sess)
		if err != nil || p == nil {
			return err
		}
		if sess.Customer != nil && sess.Customer.ID != "" {
			if err := s.users.SetStripeCustomer(ctx, p.UserID, sess.Customer.ID); err != nil {
				return err
			}
		}
		return s.markPaid(ctx, p)

	case "checkout.session.async_payment_failed":
		var sess stripe.CheckoutSession
		if err := decodeEventObject(event, &sess); err != nil {
			return err
		}
		p, err := s.paymentForSession(ctx, &sess)
		if err != nil || p == nil || p.Status != StatusPending {
			return err
		}
		return s.store.SetStatus(ctx, p.ID, StatusFailed)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := decodeEventObject(event, &sub); err != nil {
			return err
		}
		userID := sub.Metadata["user_id"]
		if userID == "" {
			s.log.Warn("subscription without user metadata", slog.String("subscription_id", sub.ID))
			return nil
		}
		if err := s.users.RevokePremium(ctx, userID); err != nil {
			return err
		}
		s.log.Info("premium revoked", slog.String("user_id", userID), slog.String("subscription_id", sub.ID))
		return nil
	}

	s.log.Debug("ignored stripe event", slog.String("type", string(event.Type)))
	return nil
}

func (s *Service) paymentForSession(ctx context.Context, sess *stripe.CheckoutSession) (*Payment, error) {
	id := sess.ClientReferenceID
	if id == "" {
		id = sess.Metadata["payment_id"]
	}
	var (
		p   *Payment
		err error
	)
	if id != "" {
		p, err = s.store.FindByID(ctx, id)
	} else {
		p, err = s.store.FindByExternalID(ctx, ProviderStripe, sess.ID)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		s.log.Warn("no payment for checkout session", slog.String("session_id", sess.ID))
	}
	return p, nil
}

// HandleAbacatePayWebhook checks the shared secret and applies one event.
func (s *Service) HandleAbacatePayWebhook(ctx context.Context, secret string, payload []byte) error {
	if !auth.SecretMatches(secret, s.cfg.AbacatePayWebhookSecret) {
		return ErrBadWebhookSecret
	}

	var event AbacatePayEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" {
		return ErrBadWebhookPayload
	}

	return s.consume(ctx, ProviderAbacatePay, event.ID, event.Event, func() error {
		if event.Event != "billing.paid" {
			s.log.Debug("ignored abacatepay event", slog.String("type", event.Event))
			return nil
		}
		p, err := s.store.FindByExternalID(ctx, ProviderAbacatePay, event.Data.Billing.ID)
		if err != nil {
			return err
		}
		if p == nil {
			s.log.Warn("no payment for billing", slog.String("billing_id", event.Data.Billing.ID))
			return nil
		}
		return s.markPaid(ctx, p)
	})
}

// consume records the event and runs apply once. A failed apply forgets the
// event so the provider's retry gets processed.
func (s *Service) consume(ctx context.Context, provider, eventID, eventType string, apply func() error) error {
	fresh, err := s.store.RecordEvent(ctx, provider, eventID, eventType)
	if err != nil {
		return err
	}
	if !fresh {
		s.log.Info("duplicate webhook event", slog.String("provider", provider), slog.String("event_id", eventID))
		return nil
	}

	if err := apply(); err != nil {
		s.log.Error("webhook event failed",
			slog.String("provider", provider),
			slog.String("event_id", eventID),
			slog.String("type", eventType),
			logger.Error(err))
		if ferr := s.store.ForgetEvent(ctx, provider, eventID); ferr != nil {
			s.log.Error("could not forget webhook event", slog.String("event_id", eventID), logger.Error(ferr))
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.ErrInternal.WithInternal(err)
	}
	return nil
}

// markPaid settles a payment and grants its owner premium. A pending payment
// settles once. A renewable one settles again on every provider charge.
func (s *Service) markPaid(ctx context.Context, p *Payment) error {
	renewal := p.Status == StatusPaid && p.Renewable()
	if p.Status != StatusPending && !renewal {
		return nil
	}
	now := s.now()

	st, err := s.store.Settle(ctx, p.ID, now, p.Renewable(), func(u *users.User) Grant {
		return s.premiumGrant(u, p, now)
	})
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	if st.User == nil {
		s.log.Warn("paid payment without user", slog.String("payment_id", p.ID))
		return nil
	}
	user := st.User
	s.log.Info("premium granted",
		slog.String("user_id", user.ID),
		slog.String("payment_id", p.ID),
		slog.String("billing_type", string(p.BillingType)),
		slog.Bool("renewal", renewal))

	data := map[string]any{
		"billingType": string(p.BillingType),
		"monthly":     p.BillingType == BillingMonthly,
		"amount":      formatAmount(p.AmountCents),
	}
	if until := st.Grant.Until; until != nil {
		data["premiumUntil"] = until.In(s.app.Location()).Format("02/01/2006")
	}
	key := "payment-confirmed:" + p.ID
	if renewal {
		key += ":" + now.UTC().Format("2006-01-02")
	}
	msg := email.Message{
		Template:       "payment-confirmed",
		To:             user.Email,
		Subject:        "Pagamento confirmado: seu premium está ativo",
		Data:           data,
		IdempotencyKey: key,
	}
	if user.Name != nil {
		msg.ToName = *user.Name
	}
	if _, _, err := s.mail.Enqueue(ctx, msg); err != nil {
		s.log.Warn("could not enqueue payment confirmation", slog.String("payment_id", p.ID), logger.Error(err))
	}
	return nil
}

// premiumGrant decides how long a payment extends premium. Time-boxed grants
// run from the later of now and the current expiry. A Stripe subscription
// stays open until customer.subscription.deleted, and open-ended premium is
// never shortened. AbacatePay has no cancellation event, so each monthly
// charge buys one month.
func (s *Service) premiumGrant(user *users.User, p *Payment, now time.Time) Grant {
	if p.BillingType == BillingMonthly && p.Provider == ProviderStripe {
		return Grant{Status: users.SubscriptionActive}
	}
	if user.Premium && user.PremiumUntil == nil {
		return Grant{Status: users.SubscriptionActive}
	}

	base := now
	if user.HasPremium(now) && user.PremiumUntil.After(now) {
		base = *user.PremiumUntil
	}
	if p.BillingType == BillingMonthly {
		until := base.AddDate(0, 1, 0)
		return Grant{Until: &until, Status: users.SubscriptionActive}
	}
	until := base.AddDate(0, 0, s.cfg.OneTimePremiumDays)
	return Grant{Until: &until, Status: users.SubscriptionOneTime}
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}
