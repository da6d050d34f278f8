package outline

import (
	"encoding/json"
	"errors"
	"strings"

	"slides-server/internal/models"
)

// ErrUnparsableOutline means the model text contained no usable slide array.
var ErrUnparsableOutline = errors.New("model response contains no slide outline")

// ExtractSlides pulls a slide outline out of raw model text. Models wrap
// their JSON in markdown fences or envelope objects often enough that the
// parser tries the common shapes before giving up.
func ExtractSlides(text string) ([]models.SlidePlan, error) {
	text = stripFences(strings.TrimSpace(text))

	if slides, err := decodeSlides([]byte(text)); err == nil {
		return slides, nil
	}

	// Envelope form: {"slides": [...]}
	var envelope struct {
		Slides []models.SlidePlan `json:"slides"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err == nil && len(envelope.Slides) > 0 {
		return envelope.Slides, nil
	}

	// Last resort: the outermost bracketed region.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if slides, err := decodeSlides([]byte(text[start : end+1])); err == nil {
			return slides, nil
		}
	}

	return nil, ErrUnparsableOutline
}

func decodeSlides(data []byte) ([]models.SlidePlan, error) {
	var slides []models.SlidePlan
	if err := json.Unmarshal(data, &slides); err != nil {
		return nil, err
	}
	if len(slides) == 0 {
		return nil, ErrUnparsableOutline
	}
	for i := range slides {
		if slides[i].Title == "" {
			return nil, ErrUnparsableOutline
		}
	}
	return slides, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		head := strings.TrimSpace(text[:idx])
		if head == "json" || head == "" {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
