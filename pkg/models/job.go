package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// TerminalStatus reports whether s is a status no job ever leaves.
func TerminalStatus(s string) bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one batch-detection request. The API returns a job id on
// POST /api/v1/jobs; the client polls GET /api/v1/jobs/{job_id} until the
// status is completed or failed. Counters only ever grow.
type Job struct {
	ID              uuid.UUID  `json:"id"`
	Status          string     `json:"status"`
	TotalImages     int        `json:"total_images"`
	ProcessedImages int        `json:"processed_images"`
	FailedImages    int        `json:"failed_images"`
	Error           *string    `json:"error,omitempty"`
	Parameters      JobParams  `json:"parameters"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobParams are the processing parameters fixed at submission time and
// recorded in the job manifest.
type JobParams struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}
