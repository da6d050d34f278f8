package outline

import (
	"fmt"

	"slides-server/internal/models"
)

// StubOutline builds the deterministic offline outline used when no API key
// is configured or the upstream is unreachable. Same inputs always yield
// the same slides.
func StubOutline(count int) []models.SlidePlan {
	slides := make([]models.SlidePlan, count)
	for i := range slides {
		slides[i] = models.SlidePlan{
			Title:   fmt.Sprintf("Slide %d", i+1),
			Bullets: []string{"Bullet"},
		}
	}
	return slides
}
