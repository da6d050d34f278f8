package models

import "github.com/google/uuid"

// Progress event types pushed to clients over the websocket channel.
const (
	EventSlideProgress  = "slide:progress"
	EventSlideCompleted = "slide:completed"
	EventError          = "error"
)

// Event is a single frame on the progress channel.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ProgressPayload reports build progress as a 0-100 percentage.
type ProgressPayload struct {
	JobID    uuid.UUID `json:"jobId"`
	Progress int       `json:"progress"`
}

// CompletedPayload announces a finished deck. FileURL is empty when the
// result is only available through the download endpoint.
type CompletedPayload struct {
	JobID   uuid.UUID `json:"jobId"`
	FileURL string    `json:"fileUrl,omitempty"`
}

// ErrorPayload carries a terminal job failure to subscribers.
type ErrorPayload struct {
	JobID   uuid.UUID `json:"jobId"`
	Message string    `json:"message"`
}
