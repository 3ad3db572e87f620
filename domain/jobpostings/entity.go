package jobpostings

import (
	"time"

	"github.com/uptrace/bun"
)

// Status is the moderation state of a posting.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// JobPosting is a job listing submitted by a company.
type JobPosting struct {
	bun.BaseModel `bun:"table:core.job_postings,alias:jp"`

	ID              string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	LinkVaga        string     `bun:"link_vaga,notnull"`
	NomeEmpresa     string     `bun:"nome_empresa,notnull"`
	Cargo           string     `bun:"cargo,notnull"`
	Descricao       *string    `bun:"descricao"`
	Stack           string     `bun:"stack,notnull"`
	SeniorityLevel  string     `bun:"seniority_level,notnull"`
	ContactEmail    string     `bun:"contact_email,notnull"`
	LogoKey         *string    `bun:"logo_key"`
	Status          Status     `bun:"status,notnull,default:'pending'"`
	RejectionReason *string    `bun:"rejection_reason"`
	ReviewedAt      *time.Time `bun:"reviewed_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:now()"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:now()"`
}

// CreateRequest is the body of POST /api/job-postings.
type CreateRequest struct {
	LinkVaga       string  `json:"linkVaga" validate:"required,http_url,max=2048"`
	NomeEmpresa    string  `json:"nomeEmpresa" validate:"required,min=1,max=200"`
	Cargo          string  `json:"cargo" validate:"required,min=1,max=200"`
	Descricao      *string `json:"descricao,omitempty" validate:"omitempty,max=5000"`
	Stack          string  `json:"stack" validate:"required,stack"`
	SeniorityLevel string  `json:"seniorityLevel" validate:"required,seniority"`
	ContactEmail   string  `json:"contactEmail" validate:"required,email,max=254"`
	LogoKey        *string `json:"logoKey,omitempty" validate:"omitempty,max=512"`
}

// ListQuery filters the public listing.
type ListQuery struct {
	Stack     string `query:"stack" validate:"omitempty,stack"`
	Seniority string `query:"seniority" validate:"omitempty,seniority"`
	Page      int    `query:"page" validate:"omitempty,min=1"`
	Limit     int    `query:"limit" validate:"omitempty,min=1"`
}

// AdminListQuery filters the moderation queue.
type AdminListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending approved rejected"`
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1"`
}

// ReviewRequest is the body of PATCH /api/admin/job-postings/:id.
type ReviewRequest struct {
	Status Status  `json:"status" validate:"required,oneof=approved rejected"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// LogoUploadRequest is the body of POST /api/job-postings/logo-upload-url.
type LogoUploadRequest struct {
	ContentType string `json:"contentType" validate:"required,oneof=image/png image/jpeg image/webp image/gif"`
}

// Filter is a repository listing filter.
type Filter struct {
	Status    Status
	Stack     string
	Seniority string
	Offset    int
	Limit     int
}

// PostingDTO is the public view of a posting.
type PostingDTO struct {
	ID              string     `json:"id"`
	LinkVaga        string     `json:"linkVaga"`
	NomeEmpresa     string     `json:"nomeEmpresa"`
	Cargo           string     `json:"cargo"`
	Descricao       *string    `json:"descricao,omitempty"`
	Stack           string     `json:"stack"`
	SeniorityLevel  string     `json:"seniorityLevel"`
	LogoURL         string     `json:"logoUrl,omitempty"`
	Status          Status     `json:"status"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`
	ContactEmail    string     `json:"contactEmail,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ListResponse is one page of postings.
type ListResponse struct {
	Items []PostingDTO `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}
