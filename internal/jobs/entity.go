package jobs

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// JobStatus represents the state of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	// StatusDeadLetter holds jobs that exhausted their attempts or failed permanently.
	StatusDeadLetter JobStatus = "dead_letter"
)

// Job is one unit of background work. Payload is handler-specific JSON.
type Job struct {
	bun.BaseModel `bun:"table:queue.jobs,alias:j"`

	ID             string          `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name           string          `bun:"name,notnull" json:"name"`
	Payload        json.RawMessage `bun:"payload,type:jsonb,notnull" json:"payload"`
	Status         JobStatus       `bun:"status,notnull,default:'pending'" json:"status"`
	Attempts       int             `bun:"attempts,notnull,default:0" json:"attempts"`
	MaxAttempts    int             `bun:"max_attempts,notnull,default:3" json:"maxAttempts"`
	IdempotencyKey *string         `bun:"idempotency_key" json:"idempotencyKey,omitempty"`
	LastError      *string         `bun:"last_error" json:"lastError,omitempty"`
	Result         json.RawMessage `bun:"result,type:jsonb" json:"result,omitempty"`
	RunAt          time.Time       `bun:"run_at,notnull,default:now()" json:"runAt"`
	StartedAt      *time.Time      `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `bun:"completed_at" json:"completedAt,omitempty"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	DeadLetter int64 `json:"deadLetter"`
}
