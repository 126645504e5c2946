// Package jobs runs asynchronous campaign work such as copy grading and exports.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies what a job does
type Type string

const (
	TypeCopyGrading    Type = "copy_grading"
	TypeFunnelAnalysis Type = "funnel_analysis"
	TypeAIRewrite      Type = "ai_rewrite"
	TypePDFExport      Type = "pdf_export"
)

// Status is the job state. complete and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job records one asynchronous operation for a campaign
type Job struct {
	JobID      string          `json:"job_id"`
	CampaignID string          `json:"campaign_id"`
	OwnerID    string          `json:"owner_id"`
	Type       Type            `json:"job_type"`
	Status     Status          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewJob creates a pending job with a fresh time-sortable id
func NewJob(campaignID, ownerID string, typ Type, payload any) (*Job, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	now := time.Now().UTC()
	return &Job{
		JobID:      ulid.Make().String(),
		CampaignID: campaignID,
		OwnerID:    ownerID,
		Type:       typ,
		Status:     StatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ErrorResult builds the result payload stored on failed jobs
func ErrorResult(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// Stats counts jobs by status
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Complete   int64 `json:"complete"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// ListFilter narrows job listings
type ListFilter struct {
	CampaignID string
	Status     Status
	Type       Type
	Limit      int
	Offset     int
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobFinalized = errors.New("job already finished")
)

// Store is the persistence used by the runner and cleaner
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	// ClaimNextJob moves the oldest pending job to processing. Returns nil, nil when idle.
	ClaimNextJob(ctx context.Context) (*Job, error)
	FinishJob(ctx context.Context, id string, status Status, result json.RawMessage) (*Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error)
	JobStats(ctx context.Context) (*Stats, error)
	CleanupJobs(ctx context.Context, maxAge time.Duration) (int, error)
	FailStaleJobs(ctx context.Context, olderThan time.Duration) (int, error)
}
