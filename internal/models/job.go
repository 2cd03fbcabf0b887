package models

import (
	"time"
)

// JobStatus follows pending -> processing -> completed | failed.
// Transitions are monotonic; a terminal job never goes back.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether s is a terminal job state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobView is the client-facing snapshot of one job.
type JobView struct {
	JobID     string            `json:"jobId"`
	Status    JobStatus         `json:"status"`
	Result    *ExtractionResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Filename  string            `json:"filename,omitempty"`
}

// JobSummary is the lightweight listing entry (no result payload).
type JobSummary struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Filename  string    `json:"filename,omitempty"`
}
