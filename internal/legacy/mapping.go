package legacy

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/payments"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/pkg/auth"
)

// legacyNamespace derives stable row ids from Mongo ObjectIDs so re-runs hit
// the same primary keys.
var legacyNamespace = uuid.MustParse("6f1d4c0e-3b7a-5e55-9a42-7a6775696e68")

func rowID(collection string, id bson.ObjectID, suffix ...string) string {
	name := collection + ":" + id.Hex()
	if len(suffix) > 0 {
		name += ":" + strings.Join(suffix, ":")
	}
	return uuid.NewSHA1(legacyNamespace, []byte(name)).String()
}

// UserRows is one legacy user flattened into its tables.
type UserRows struct {
	User     *users.User
	Feedback []*users.Feedback
	Hired    []*users.HiredMessage
}

// MapUser converts a user document. ok is false for documents without a
// usable email.
func MapUser(doc *UserDoc, now time.Time) (rows UserRows, ok bool) {
	email := users.NormalizeEmail(doc.Email)
	if email == "" || !strings.Contains(email, "@") || doc.ID.IsZero() {
		return UserRows{}, false
	}

	created := orNow(doc.CreatedAt, now)
	u := &users.User{
		ID:             rowID("users", doc.ID),
		Email:          email,
		Name:           optional(doc.Name),
		SeniorityLevel: optional(strings.ToLower(doc.SeniorityLevel)),
		Stacks:         pq.StringArray(catalog.NormalizeStacks(doc.Stacks)),
		Confirmed:      doc.Confirmed,
		Unsubscribed:   doc.Unsubscribed,
		UnsubscribedAt: doc.UnsubscribedAt,
		PasswordHash:   optional(doc.Password),
		CreatedAt:      created,
		UpdatedAt:      orNow(doc.UpdatedAt, created),
	}
	if doc.Confirmed {
		u.ConfirmedAt = &created
	} else if doc.ConfirmationToken != "" {
		hash := auth.HashToken(doc.ConfirmationToken)
		u.ConfirmationTokenHash = &hash
		u.ConfirmationExpiresAt = doc.ConfirmationTokenExpires
	}
	if doc.Provider != "" && doc.Provider != "credentials" {
		u.OAuthProvider = optional(strings.ToLower(doc.Provider))
		u.OAuthSubject = optional(doc.ProviderAccountID)
	}

	if doc.IsPremium {
		u.Premium = true
		u.PremiumUntil = doc.PremiumExpiresAt
		u.SubscriptionStatus = optional(subscriptionStatus(doc))
	}
	u.StripeCustomerID = optional(doc.StripeCustomerID)

	rows.User = u
	for i, m := range doc.Feedback {
		if strings.TrimSpace(m.Message) == "" {
			continue
		}
		rows.Feedback = append(rows.Feedback, &users.Feedback{
			ID:        rowID("users", doc.ID, "feedback", strconv.Itoa(i)),
			UserID:    u.ID,
			Message:   m.Message,
			CreatedAt: orNow(m.CreatedAt, created),
		})
	}
	for i, m := range doc.HiredMessages {
		if strings.TrimSpace(m.Message) == "" {
			continue
		}
		rows.Hired = append(rows.Hired, &users.HiredMessage{
			ID:        rowID("users", doc.ID, "hired", strconv.Itoa(i)),
			UserID:    u.ID,
			Company:   optional(m.Company),
			Message:   m.Message,
			CreatedAt: orNow(m.CreatedAt, created),
		})
	}
	return rows, true
}

func subscriptionStatus(doc *UserDoc) string {
	switch strings.ToLower(doc.SubscriptionStatus) {
	case "active", "trialing":
		return users.SubscriptionActive
	case "canceled", "cancelled":
		return users.SubscriptionCanceled
	}
	if doc.PremiumExpiresAt == nil {
		return users.SubscriptionActive
	}
	return users.SubscriptionOneTime
}

// MapJobPosting converts a job posting document. Logos that were stored as
// absolute URLs are not object keys and are dropped.
func MapJobPosting(doc *JobPostingDoc, now time.Time) (*jobpostings.JobPosting, bool) {
	if doc.ID.IsZero() || doc.LinkVaga == "" || doc.NomeEmpresa == "" || doc.Cargo == "" {
		return nil, false
	}

	created := orNow(doc.CreatedAt, now)
	p := &jobpostings.JobPosting{
		ID:              rowID("jobpostings", doc.ID),
		LinkVaga:        strings.TrimSpace(doc.LinkVaga),
		NomeEmpresa:     strings.TrimSpace(doc.NomeEmpresa),
		Cargo:           strings.TrimSpace(doc.Cargo),
		Descricao:       optional(doc.Descricao),
		Stack:           strings.ToLower(doc.Stack),
		SeniorityLevel:  strings.ToLower(doc.SeniorityLevel),
		ContactEmail:    users.NormalizeEmail(doc.Email),
		RejectionReason: optional(doc.RejectionReason),
		CreatedAt:       created,
		UpdatedAt:       orNow(doc.UpdatedAt, created),
	}
	if doc.Logo != "" && !strings.HasPrefix(doc.Logo, "http://") && !strings.HasPrefix(doc.Logo, "https://") {
		p.LogoKey = &doc.Logo
	}

	switch strings.ToLower(doc.Status) {
	case "approved":
		p.Status = jobpostings.StatusApproved
	case "rejected":
		p.Status = jobpostings.StatusRejected
	default:
		p.Status = jobpostings.StatusPending
	}
	if p.Status != jobpostings.StatusPending {
		reviewed := p.UpdatedAt
		p.ReviewedAt = &reviewed
	}
	return p, true
}

// MapPayment converts a payment document.
func MapPayment(doc *PaymentDoc, currency string, now time.Time) (*payments.Payment, bool) {
	if doc.ID.IsZero() || doc.UserID.IsZero() {
		return nil, false
	}

	var provider string
	switch p := strings.ToLower(doc.Provider); {
	case p == payments.ProviderStripe:
		provider = payments.ProviderStripe
	case strings.HasPrefix(p, "abacate"):
		provider = payments.ProviderAbacatePay
	default:
		return nil, false
	}

	billing := payments.BillingOneTime
	switch strings.ToLower(doc.Type) {
	case "monthly", "subscription", "recurring":
		billing = payments.BillingMonthly
	}

	created := orNow(doc.CreatedAt, now)
	p := &payments.Payment{
		ID:          rowID("payments", doc.ID),
		UserID:      rowID("users", doc.UserID),
		Provider:    provider,
		BillingType: billing,
		AmountCents: int64(math.Round(doc.Amount * 100)),
		Currency:    strings.ToLower(doc.Currency),
		Status:      paymentStatus(doc.Status),
		ExternalID:  optional(doc.ExternalID),
		CheckoutURL: optional(doc.CheckoutURL),
		PaidAt:      doc.PaidAt,
		CreatedAt:   created,
		UpdatedAt:   orNow(doc.UpdatedAt, created),
	}
	if p.Currency == "" {
		p.Currency = currency
	}
	if p.Status == payments.StatusPaid && p.PaidAt == nil {
		p.PaidAt = &p.UpdatedAt
	}
	return p, true
}

func paymentStatus(s string) payments.Status {
	switch strings.ToLower(s) {
	case "paid", "completed", "complete", "succeeded", "approved":
		return payments.StatusPaid
	case "failed", "expired":
		return payments.StatusFailed
	case "canceled", "cancelled":
		return payments.StatusCanceled
	case "refunded":
		return payments.StatusRefunded
	default:
		return payments.StatusPending
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
