package client

import (
	"encoding/json"
	"fmt"
)

// Slide is the wire shape of one slide plan. Image carries either a plain
// prompt string or a resolved metadata object; use ImagePrompt or ImageMeta
// to build it.
type Slide struct {
	Title   string          `json:"title"`
	Bullets []string        `json:"bullets"`
	Image   json.RawMessage `json:"image,omitempty"`
	Notes   string          `json:"notes,omitempty"`
}

// ImagePrompt wraps a free-text prompt for the Slide.Image field.
func ImagePrompt(prompt string) json.RawMessage {
	raw, _ := json.Marshal(prompt)
	return raw
}

// ImageMeta wraps resolved image metadata for the Slide.Image field.
func ImageMeta(url, altText, provider string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{
		"url":      url,
		"altText":  altText,
		"provider": provider,
	})
	return raw
}

// Job mirrors the server's job status payload.
type Job struct {
	JobID        string `json:"jobId"`
	SessionID    string `json:"sessionId,omitempty"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Done         int    `json:"done"`
	Total        int    `json:"total"`
	ResultURL    string `json:"resultUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// BuildAccepted acknowledges a queued build.
type BuildAccepted struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	ResultURL string `json:"resultUrl,omitempty"`
}

// GenerateRequest asks the server for a slide outline.
type GenerateRequest struct {
	Prompt     string `json:"prompt"`
	SlideCount *int   `json:"slideCount,omitempty"`
	Model      string `json:"model,omitempty"`
	Language   string `json:"language,omitempty"`
	Context    string `json:"context,omitempty"`
}

// TokenPair holds issued credentials.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// ProviderList reports the server's image backends.
type ProviderList struct {
	Providers map[string]bool `json:"providers"`
	Available []string        `json:"available"`
	Default   string          `json:"default"`
}

// Event is one frame from the progress channel.
type Event struct {
	Index   int             `json:"index"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Progress channel event types.
const (
	EventSlideProgress  = "slide:progress"
	EventSlideCompleted = "slide:completed"
	EventError          = "error"
)

// ProgressEvent is the payload of a slide:progress frame.
type ProgressEvent struct {
	JobID    string `json:"jobId"`
	Progress int    `json:"progress"`
}

// CompletedEvent is the payload of a slide:completed frame.
type CompletedEvent struct {
	JobID   string `json:"jobId"`
	FileURL string `json:"fileUrl,omitempty"`
}

// ErrorEvent is the payload of an error frame.
type ErrorEvent struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}
