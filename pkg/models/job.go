package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
	JobStatusCancelled  = "cancelled"
)

const (
	JobTypeMetadataRefresh = "metadata_refresh"
)

// Job is one queued unit of background work. Data holds the job request as a
// JSON blob; the owning package parses it into DataParsed. Terminal statuses
// (completed, error, cancelled) are final and never resumed.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID             int         `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Type           string      `bun:",nullzero" json:"type"`
	Status         string      `bun:",nullzero" json:"status"`
	Data           string      `bun:",nullzero" json:"-"`
	DataParsed     interface{} `bun:"-" json:"data,omitempty"`
	TotalItems     int         `json:"total_items"`
	CompletedItems int         `json:"completed_items"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	UserID         *int        `json:"user_id,omitempty"`
	LibraryID      *int        `json:"library_id,omitempty"`
	ProcessID      *string     `json:"process_id,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeMetadataRefresh:
		job.DataParsed = &JobMetadataRefreshData{}
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// JobMetadataRefreshData is the stored request for a refresh job. Options
// stays raw here; the refresh package parses it against the library
// defaults when the job runs.
type JobMetadataRefreshData struct {
	LibraryID *int            `json:"library_id,omitempty"`
	BookIDs   []int           `json:"book_ids,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (job *Job) Terminal() bool {
	switch job.Status {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}
