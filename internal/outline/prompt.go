package outline

import (
	"fmt"
	"strings"

	"slides-server/internal/models"
)

const systemPromptTemplate = `You are a presentation outline writer.
Produce exactly %d slides for the topic the user gives you.
Respond with a JSON array only, no prose and no markdown fences.
Each element must be an object with these fields:
  "title": slide title, at most %d characters
  "bullets": array of bullet strings, each at most %d characters
  "notes": optional speaker notes
  "image": optional short image prompt describing a fitting illustration
%sDo not wrap the array in any other object.`

// buildSystemPrompt renders the outline instruction for the requested
// slide count and output language.
func buildSystemPrompt(slideCount int, language string) string {
	languageLine := ""
	if language != "" {
		languageLine = fmt.Sprintf("Write every title, bullet and note in %s.\n", language)
	}
	return fmt.Sprintf(systemPromptTemplate, slideCount, models.MaxTitleLength, models.MaxBulletLength, languageLine)
}

// buildUserPrompt combines the topic with optional extra context.
func buildUserPrompt(prompt, contextNote string) string {
	prompt = strings.TrimSpace(prompt)
	if contextNote == "" {
		return prompt
	}
	return prompt + "\n\nAdditional context:\n" + strings.TrimSpace(contextNote)
}

// buildLegacyPrompt flattens the exchange into a single prompt for the
// legacy completions endpoint.
func buildLegacyPrompt(prompt, contextNote string, slideCount int, language string) string {
	var b strings.Builder
	b.WriteString(buildSystemPrompt(slideCount, language))
	b.WriteString("\n\nTopic: ")
	b.WriteString(buildUserPrompt(prompt, contextNote))
	b.WriteString("\n\nJSON array:")
	return b.String()
}
