package campaigns

import "github.com/vaguinhas/vaguinhas/internal/jobs"

// Job names handled by this package.
const (
	JobConfirmationReminders = "campaign.confirmation-reminders"
	JobSupportUs             = "campaign.support-us"
	JobBroadcast             = "campaign.broadcast"
	JobDailyDigest           = "campaign.daily-digest"
)

// SupportUsPayload is the payload of campaign.support-us.
type SupportUsPayload struct {
	CampaignID string `json:"campaignId"`
}

// BroadcastPayload is the payload of campaign.broadcast.
type BroadcastPayload struct {
	CampaignID string `json:"campaignId"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
	CTAURL     string `json:"ctaUrl,omitempty"`
	CTAText    string `json:"ctaText,omitempty"`
}

// DailyDigestPayload is the payload of campaign.daily-digest. Date is
// YYYY-MM-DD in the application timezone.
type DailyDigestPayload struct {
	Date string `json:"date"`
}

// Result is stored as the job result of every campaign run.
type Result struct {
	Recipients int `json:"recipients"`
	Enqueued   int `json:"enqueued"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// BroadcastRequest is the body of POST /api/admin/campaigns/broadcast.
type BroadcastRequest struct {
	CampaignID string `json:"campaignId" validate:"omitempty,max=100"`
	Subject    string `json:"subject" validate:"required,max=200"`
	Message    string `json:"message" validate:"required,max=10000"`
	CTAURL     string `json:"ctaUrl" validate:"omitempty,http_url"`
	CTAText    string `json:"ctaText" validate:"required_with=CTAURL,max=80"`
}

// SupportUsRequest is the body of POST /api/admin/campaigns/support-us.
type SupportUsRequest struct {
	CampaignID string `json:"campaignId" validate:"omitempty,max=100"`
}

// DailyDigestRequest is the body of POST /api/admin/campaigns/daily-digest.
type DailyDigestRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// TriggerResponse reports the job a trigger enqueued.
type TriggerResponse struct {
	JobID   string `json:"jobId"`
	Created bool   `json:"created"`
}

func toTriggerResponse(job *jobs.Job, created bool) TriggerResponse {
	return TriggerResponse{JobID: job.ID, Created: created}
}
