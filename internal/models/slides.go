package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Field limits for slide content, matching the public API contract.
const (
	MaxTitleLength  = 100
	MaxBulletLength = 200
)

// ImageMeta describes a resolved image produced by an image provider.
// Instances are read-only once created.
type ImageMeta struct {
	URL      string `json:"url"`
	AltText  string `json:"altText"`
	Provider string `json:"provider"`
}

// Validate checks that the URL is a well-formed http/https URL.
func (m *ImageMeta) Validate() error {
	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("image url %q is not a valid http/https URL", m.URL)
	}
	return nil
}

// NormalizeImageURL strips a trailing root-only slash so that equal images
// compare equal regardless of how the base URL was written.
func NormalizeImageURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "/" && u.RawQuery == "" && u.Fragment == "" {
		return strings.TrimSuffix(raw, "/")
	}
	return raw
}

// ImageRef is the image field of a slide plan: either a plain prompt string
// still to be resolved, or resolved ImageMeta. Exactly one side is set.
type ImageRef struct {
	Prompt string
	Meta   *ImageMeta
}

// Resolved reports whether the reference carries provider metadata.
func (r *ImageRef) Resolved() bool {
	return r != nil && r.Meta != nil
}

func (r ImageRef) MarshalJSON() ([]byte, error) {
	if r.Meta != nil {
		return json.Marshal(r.Meta)
	}
	return json.Marshal(r.Prompt)
}

func (r *ImageRef) UnmarshalJSON(data []byte) error {
	var prompt string
	if err := json.Unmarshal(data, &prompt); err == nil {
		r.Prompt = prompt
		r.Meta = nil
		return nil
	}
	var meta ImageMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("image must be a prompt string or image metadata: %w", err)
	}
	r.Prompt = ""
	r.Meta = &meta
	return nil
}

// SlidePlan is the plan for a single slide. Plans are treated as immutable
// once handed to a build; edits produce new values.
type SlidePlan struct {
	Title   string    `json:"title"`
	Bullets []string  `json:"bullets"`
	Image   *ImageRef `json:"image,omitempty"`
	Notes   string    `json:"notes,omitempty"`
}

// slidePlanWire mirrors the accepted wire shape, including the legacy
// "body" field older clients send instead of "bullets".
type slidePlanWire struct {
	Title   string          `json:"title"`
	Bullets []string        `json:"bullets"`
	Body    json.RawMessage `json:"body"`
	Image   *ImageRef       `json:"image"`
	Notes   string          `json:"notes"`
}

func (s *SlidePlan) UnmarshalJSON(data []byte) error {
	var wire slidePlanWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.Title = wire.Title
	s.Bullets = wire.Bullets
	s.Image = wire.Image
	s.Notes = wire.Notes

	// Legacy payloads carry body as a single string or a string list.
	if len(s.Bullets) == 0 && len(wire.Body) > 0 {
		var single string
		if err := json.Unmarshal(wire.Body, &single); err == nil {
			if single != "" {
				s.Bullets = []string{single}
			}
			return nil
		}
		var many []string
		if err := json.Unmarshal(wire.Body, &many); err == nil {
			s.Bullets = many
		}
	}
	return nil
}

// Validate checks the content limits of one slide plan.
func (s *SlidePlan) Validate() error {
	if n := utf8.RuneCountInString(s.Title); n == 0 || n > MaxTitleLength {
		return fmt.Errorf("title must be 1-%d characters", MaxTitleLength)
	}
	if len(s.Bullets) == 0 {
		return fmt.Errorf("bullets must contain at least one item")
	}
	for i, b := range s.Bullets {
		if n := utf8.RuneCountInString(b); n == 0 || n > MaxBulletLength {
			return fmt.Errorf("bullet %d must be 1-%d characters", i, MaxBulletLength)
		}
	}
	if s.Image != nil && s.Image.Meta != nil {
		if err := s.Image.Meta.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSlides validates a whole outline.
func ValidateSlides(slides []SlidePlan) error {
	if len(slides) == 0 {
		return fmt.Errorf("at least one slide is required")
	}
	for i := range slides {
		if err := slides[i].Validate(); err != nil {
			return fmt.Errorf("slide %d: %w", i, err)
		}
	}
	return nil
}
