package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationJob is the in-memory record of one deck build. The job manager
// owns all mutation; everyone else receives copies.
type GenerationJob struct {
	ID           uuid.UUID `json:"jobId"`
	SessionID    string    `json:"sessionId,omitempty"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	Done         int       `json:"done"`
	Total        int       `json:"total"`
	ResultPath   string    `json:"-"`
	ResultURL    string    `json:"resultUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
