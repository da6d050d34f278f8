package models

import "github.com/google/uuid"

// Outline generation bounds.
const (
	MinSlideCount     = 1
	MaxSlideCount     = 20
	DefaultSlideCount = 5
)

// ChatGenerateRequest asks the outline generator for a slide plan.
// SlideCount is optional and defaults to DefaultSlideCount when omitted.
type ChatGenerateRequest struct {
	Prompt     string `json:"prompt" binding:"required"`
	SlideCount *int   `json:"slideCount,omitempty"`
	Model      string `json:"model,omitempty"`
	Language   string `json:"language,omitempty"`
	Context    string `json:"context,omitempty"`
}

// ResolvedSlideCount applies the default and reports the requested count.
func (r *ChatGenerateRequest) ResolvedSlideCount() int {
	if r.SlideCount == nil {
		return DefaultSlideCount
	}
	return *r.SlideCount
}

// ChatGenerateResponse returns the generated outline and the model that
// produced it. Stub is true when the deterministic offline outline was used.
type ChatGenerateResponse struct {
	Slides []SlidePlan `json:"slides"`
	Model  string      `json:"model,omitempty"`
	Stub   bool        `json:"stub,omitempty"`
}

// BuildRequest starts an asynchronous deck build from validated slide plans.
type BuildRequest struct {
	Slides    []SlidePlan `json:"slides" binding:"required"`
	SessionID string      `json:"sessionId,omitempty"`
}

// BuildAcceptedResponse acknowledges a queued build. ResultURL stays empty
// until the job completes; completion is signalled over the progress channel.
type BuildAcceptedResponse struct {
	JobID     uuid.UUID `json:"jobId"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"resultUrl,omitempty"`
}

// ProvidersResponse lists the registered image backends, which of them are
// usable with the current credentials, and the configured default.
type ProvidersResponse struct {
	Providers map[string]bool `json:"providers"`
	Available []string        `json:"available"`
	Default   string          `json:"default"`
}

// EditTarget selects which part of a slide an edit instruction applies to.
type EditTarget string

const (
	EditTargetTitle  EditTarget = "title"
	EditTargetBullet EditTarget = "bullet"
	EditTargetNotes  EditTarget = "notes"
	EditTargetImage  EditTarget = "image"
)

// Valid reports whether the target names a supported slide part.
func (t EditTarget) Valid() bool {
	switch t {
	case EditTargetTitle, EditTargetBullet, EditTargetNotes, EditTargetImage:
		return true
	}
	return false
}

// MaxBatchEdits caps the number of edits a batch request may carry.
const MaxBatchEdits = 10

// EditSlideRequest rewrites one part of a single slide.
type EditSlideRequest struct {
	Slide       SlidePlan  `json:"slide"`
	Target      EditTarget `json:"target"`
	Instruction string     `json:"instruction" binding:"required"`
	BulletIndex *int       `json:"bulletIndex,omitempty"`
}

// EditSlideResponse returns the slide with the edit applied.
type EditSlideResponse struct {
	Slide SlidePlan `json:"slide"`
}

// SlideEdit addresses one edit inside a batch by slide index.
type SlideEdit struct {
	SlideIndex  int        `json:"slideIndex"`
	Target      EditTarget `json:"target"`
	Instruction string     `json:"instruction"`
	BulletIndex *int       `json:"bulletIndex,omitempty"`
}

// BatchEditRequest applies up to MaxBatchEdits edits against one outline.
type BatchEditRequest struct {
	Slides []SlidePlan `json:"slides" binding:"required"`
	Edits  []SlideEdit `json:"edits" binding:"required"`
}

// BatchEditResponse returns the outline after all edits were applied.
type BatchEditResponse struct {
	Slides []SlidePlan `json:"slides"`
}

// LoginRequest asks for a token pair bound to an email identity. There is
// no password step; production deployments put a magic-link flow in front.
type LoginRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RefreshRequest exchanges a refresh token for a fresh pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
