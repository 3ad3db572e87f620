package campaigns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vaguinhas/vaguinhas/domain/email"
	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/config"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
	"github.com/vaguinhas/vaguinhas/pkg/logger"
	"github.com/vaguinhas/vaguinhas/pkg/tracing"
)

const (
	pageSize          = 500
	digestMaxPostings = 20
	digestWindow      = 24 * time.Hour
	reminderMinAge    = 24 * time.Hour
	reminderMaxAge    = 7 * 24 * time.Hour
	dateLayout        = "2006-01-02"
)

var ErrJobNotFound = apperror.New(http.StatusNotFound, "job_not_found", "Job not found")

// SubscriberStore lists campaign recipients.
type SubscriberStore interface {
	ListSubscribers(ctx context.Context, f users.SubscriberFilter) ([]*users.User, error)
	ListUnconfirmedForReminder(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*users.User, error)
	Update(ctx context.Context, user *users.User, columns ...string) error
}

// Confirmer issues a fresh confirmation link and queues its email.
type Confirmer interface {
	RefreshConfirmation(ctx context.Context, user *users.User, template, key string) (bool, error)
}

// Postings finds the approved postings a digest recipient should see.
type Postings interface {
	ListApprovedSince(ctx context.Context, since time.Time, stacks []string, seniority string, limit int) ([]jobpostings.PostingDTO, error)
}

// Queue is the part of the job queue campaigns enqueue into and inspect.
type Queue interface {
	jobs.Enqueuer
	Stats(ctx context.Context) (*jobs.Stats, error)
	RetryDeadLetter(ctx context.Context, name string) (int, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Service runs bulk email campaigns as queue jobs.
type Service struct {
	subscribers SubscriberStore
	confirmer   Confirmer
	postings    Postings
	mail        email.Enqueuer
	queue       Queue
	app         config.AppConfig
	log         *slog.Logger
	now         func() time.Time
}

// NewService creates the campaigns service.
func NewService(subscribers SubscriberStore, confirmer Confirmer, postings Postings, mail email.Enqueuer, queue Queue, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		subscribers: subscribers,
		confirmer:   confirmer,
		postings:    postings,
		mail:        mail,
		queue:       queue,
		app:         cfg.App,
		log:         log.With(logger.Scope("campaigns.svc")),
		now:         time.Now,
	}
}

// TriggerBroadcast enqueues a broadcast. Reusing a campaign id returns the
// job created the first time.
func (s *Service) TriggerBroadcast(ctx context.Context, req *BroadcastRequest) (*jobs.Job, bool, error) {
	p := BroadcastPayload{
		CampaignID: campaignID(req.CampaignID),
		Subject:    strings.TrimSpace(req.Subject),
		Message:    strings.TrimSpace(req.Message),
		CTAURL:     req.CTAURL,
		CTAText:    req.CTAText,
	}
	return s.enqueue(ctx, JobBroadcast, p, "campaign:broadcast:"+p.CampaignID)
}

// TriggerSupportUs enqueues the support-us campaign.
func (s *Service) TriggerSupportUs(ctx context.Context, id string) (*jobs.Job, bool, error) {
	p := SupportUsPayload{CampaignID: campaignID(id)}
	return s.enqueue(ctx, JobSupportUs, p, "campaign:support-us:"+p.CampaignID)
}

// TriggerConfirmationReminders enqueues at most one reminder run per hour.
func (s *Service) TriggerConfirmationReminders(ctx context.Context) (*jobs.Job, bool, error) {
	hour := s.now().UTC().Format("2006-01-02T15")
	return s.enqueue(ctx, JobConfirmationReminders, struct{}{}, "campaign:confirmation-reminders:"+hour)
}

// TriggerDailyDigest enqueues the digest for date (default today). Every
// instance and every trigger for the same date share one job.
func (s *Service) TriggerDailyDigest(ctx context.Context, date string) (*jobs.Job, bool, error) {
	if date == "" {
		date = s.now().In(s.app.Location()).Format(dateLayout)
	}
	return s.enqueue(ctx, JobDailyDigest, DailyDigestPayload{Date: date}, "daily-digest:"+date)
}

func (s *Service) enqueue(ctx context.Context, name string, payload any, key string) (*jobs.Job, bool, error) {
	job, created, err := s.queue.Enqueue(ctx, jobs.EnqueueOptions{
		Name:           name,
		Payload:        payload,
		MaxAttempts:    5,
		IdempotencyKey: key,
	})
	if err != nil {
		s.log.Error("failed to enqueue campaign", slog.String("job", name), logger.Error(err))
		return nil, false, apperror.NewInternal("failed to enqueue campaign", err)
	}
	s.log.Info("campaign triggered",
		slog.String("job", name),
		slog.String("job_id", job.ID),
		slog.Bool("created", created))
	return job, created, nil
}

// Stats returns queue statistics.
func (s *Service) Stats(ctx context.Context) (*jobs.Stats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return stats, nil
}

// RetryDeadLetter requeues dead jobs, optionally only those named name.
func (s *Service) RetryDeadLetter(ctx context.Context, name string) (int, error) {
	n, err := s.queue.RetryDeadLetter(ctx, name)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

// GetJob returns a queued job.
func (s *Service) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}
	job, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// RunConfirmationReminders reminds users who subscribed between one and
// seven days ago and never confirmed.
func (s *Service) RunConfirmationReminders(ctx context.Context, _ *jobs.Job) (any, error) {
	ctx, span := tracing.Start(ctx, "campaigns.confirmation_reminders")
	defer span.End()

	now := s.now()
	res := &Result{}
	seen := map[string]bool{}
	for {
		batch, err := s.subscribers.ListUnconfirmedForReminder(ctx, now.Add(-reminderMaxAge), now.Add(-reminderMinAge), pageSize)
		if err != nil {
			return res, err
		}
		fresh := 0
		for _, u := range batch {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			fresh++
			res.Recipients++

			created, err := s.confirmer.RefreshConfirmation(ctx, u, "confirmation-reminder", "confirmation-reminder:"+u.ID)
			if err != nil {
				s.recipientFailed(res, JobConfirmationReminders, u, err)
				continue
			}
			u.ReminderSentAt = &now
			if err := s.subscribers.Update(ctx, u, "reminder_sent_at"); err != nil {
				s.recipientFailed(res, JobConfirmationReminders, u, err)
				continue
			}
			s.count(res, created)
		}
		if len(batch) < pageSize || fresh == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return s.finish(JobConfirmationReminders, res)
}

// RunSupportUs asks confirmed subscribers without premium to support the project.
func (s *Service) RunSupportUs(ctx context.Context, job *jobs.Job) (any, error) {
	p, err := jobs.Decode[SupportUsPayload](job)
	if err != nil {
		return nil, err
	}
	if p.CampaignID == "" {
		return nil, jobs.Permanent(fmt.Errorf("support-us: campaignId is required"))
	}
	ctx, span := tracing.Start(ctx, "campaigns.support_us", attribute.String("campaign.id", p.CampaignID))
	defer span.End()

	res := &Result{}
	err = s.eachSubscriber(ctx, true, func(u *users.User) {
		res.Recipients++
		s.send(ctx, res, JobSupportUs, u, email.Message{
			Template:       "support-us",
			Subject:        "Ajude o vaguinhas a continuar no ar",
			Data:           map[string]any{"supportUrl": s.app.URL("/apoie")},
			IdempotencyKey: fmt.Sprintf("support-us:%s:%s", p.CampaignID, u.ID),
		})
	})
	if err != nil {
		return res, err
	}
	return s.finish(JobSupportUs, res)
}

// RunBroadcast sends a free-form message to every confirmed subscriber.
func (s *Service) RunBroadcast(ctx context.Context, job *jobs.Job) (any, error) {
	p, err := jobs.Decode[BroadcastPayload](job)
	if err != nil {
		return nil, err
	}
	if p.CampaignID == "" || p.Subject == "" || p.Message == "" {
		return nil, jobs.Permanent(fmt.Errorf("broadcast: campaignId, subject and message are required"))
	}
	ctx, span := tracing.Start(ctx, "campaigns.broadcast", attribute.String("campaign.id", p.CampaignID))
	defer span.End()

	data := map[string]any{"message": p.Message}
	if p.CTAURL != "" {
		data["ctaUrl"] = p.CTAURL
		data["ctaText"] = p.CTAText
	}

	res := &Result{}
	err = s.eachSubscriber(ctx, false, func(u *users.User) {
		res.Recipients++
		s.send(ctx, res, JobBroadcast, u, email.Message{
			Template:       "broadcast",
			Subject:        p.Subject,
			Data:           data,
			IdempotencyKey: fmt.Sprintf("broadcast:%s:%s", p.CampaignID, u.ID),
		})
	})
	if err != nil {
		return res, err
	}
	return s.finish(JobBroadcast, res)
}

// RunDailyDigest sends each subscriber the approved postings matching their
// stacks and seniority published since their previous digest.
func (s *Service) RunDailyDigest(ctx context.Context, job *jobs.Job) (any, error) {
	p, err := jobs.Decode[DailyDigestPayload](job)
	if err != nil {
		return nil, err
	}
	loc := s.app.Location()
	day, err := time.ParseInLocation(dateLayout, p.Date, loc)
	if err != nil {
		return nil, jobs.Permanent(fmt.Errorf("daily digest: bad date %q: %w", p.Date, err))
	}
	ctx, span := tracing.Start(ctx, "campaigns.daily_digest", attribute.String("digest.date", p.Date))
	defer span.End()

	now := s.now()
	res := &Result{}
	err = s.eachSubscriber(ctx, false, func(u *users.User) {
		res.Recipients++
		if len(u.Stacks) == 0 {
			res.Skipped++
			return
		}

		since := now.Add(-digestWindow)
		if u.LastDigestAt != nil && u.LastDigestAt.After(since) {
			since = *u.LastDigestAt
		}
		seniority := ""
		if u.SeniorityLevel != nil {
			seniority = *u.SeniorityLevel
		}

		postings, err := s.postings.ListApprovedSince(ctx, since, u.Stacks, seniority, digestMaxPostings)
		if err != nil {
			s.recipientFailed(res, JobDailyDigest, u, err)
			return
		}
		if len(postings) == 0 {
			res.Skipped++
			return
		}

		items := make([]map[string]any, 0, len(postings))
		for _, posting := range postings {
			items = append(items, jobpostings.DigestItem(posting))
		}
		ok := s.send(ctx, res, JobDailyDigest, u, email.Message{
			Template: "daily-digest",
			Subject:  fmt.Sprintf("%d vaga(s) para você hoje", len(postings)),
			Data: map[string]any{
				"date":     day.Format("02/01/2006"),
				"count":    len(postings),
				"postings": items,
			},
			IdempotencyKey: fmt.Sprintf("digest:%s:%s", p.Date, u.ID),
		})
		if !ok {
			return
		}

		u.LastDigestAt = &now
		if err := s.subscribers.Update(ctx, u, "last_digest_at"); err != nil {
			s.log.Warn("failed to record digest time", slog.String("user_id", u.ID), logger.Error(err))
		}
	})
	if err != nil {
		return res, err
	}
	return s.finish(JobDailyDigest, res)
}

// eachSubscriber pages through confirmed subscribers in id order.
func (s *Service) eachSubscriber(ctx context.Context, excludePremium bool, fn func(u *users.User)) error {
	filter := users.SubscriberFilter{Limit: pageSize, ExcludePremium: excludePremium, Now: s.now()}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.subscribers.ListSubscribers(ctx, filter)
		if err != nil {
			return err
		}
		for _, u := range page {
			fn(u)
		}
		if len(page) < filter.Limit {
			return nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}

// send fills in the recipient and newsletter footer and queues msg.
func (s *Service) send(ctx context.Context, res *Result, campaign string, u *users.User, msg email.Message) bool {
	msg.To = u.Email
	msg.ToName = u.DisplayName()
	msg.Unsubscribe = true
	_, created, err := s.mail.Enqueue(ctx, msg)
	if err != nil {
		s.recipientFailed(res, campaign, u, err)
		return false
	}
	s.count(res, created)
	return true
}

func (s *Service) count(res *Result, created bool) {
	if created {
		res.Enqueued++
	} else {
		res.Skipped++
	}
}

func (s *Service) recipientFailed(res *Result, campaign string, u *users.User, err error) {
	res.Failed++
	s.log.Warn("campaign recipient failed",
		slog.String("campaign", campaign),
		slog.String("user_id", u.ID),
		logger.Error(err))
}

// finish logs the run and fails the job when any recipient failed. Retries
// only reach those recipients since the others' emails already exist.
func (s *Service) finish(campaign string, res *Result) (any, error) {
	s.log.Info("campaign finished",
		slog.String("campaign", campaign),
		slog.Int("recipients", res.Recipients),
		slog.Int("enqueued", res.Enqueued),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	if res.Failed > 0 {
		return res, fmt.Errorf("%s: %d of %d recipients failed", campaign, res.Failed, res.Recipients)
	}
	return res, nil
}

func campaignID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
