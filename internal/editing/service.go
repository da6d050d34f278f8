// Package editing applies targeted instructions to existing slides.
package editing

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/imagegen"
	"slides-server/internal/models"
	"slides-server/internal/outline"
)

// Service rewrites slide parts. Text targets go through the chat model,
// the image target goes through the provider registry.
type Service struct {
	cfg      *config.Config
	client   outline.AIClient
	registry *imagegen.Registry
	logger   *zap.Logger
}

// NewService wires the editor.
func NewService(cfg *config.Config, client outline.AIClient, registry *imagegen.Registry, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		client:   client,
		registry: registry,
		logger:   logger,
	}
}

// EditSlide applies one instruction to one slide part and returns the
// edited slide. The input slide is not mutated.
func (s *Service) EditSlide(ctx context.Context, req models.EditSlideRequest) (models.SlidePlan, error) {
	if err := validateEdit(req.Target, req.Instruction, req.BulletIndex, len(req.Slide.Bullets)); err != nil {
		return models.SlidePlan{}, err
	}

	slide := cloneSlide(req.Slide)
	if err := s.apply(ctx, &slide, req.Target, req.Instruction, req.BulletIndex); err != nil {
		return models.SlidePlan{}, err
	}
	if err := slide.Validate(); err != nil {
		return models.SlidePlan{}, fmt.Errorf("%w: %v", models.ErrEditInvalid, err)
	}
	return slide, nil
}

// ApplyBatch applies up to MaxBatchEdits edits against one outline and
// returns the new outline. Duplicate addresses are rejected.
func (s *Service) ApplyBatch(ctx context.Context, req models.BatchEditRequest) ([]models.SlidePlan, error) {
	if len(req.Edits) == 0 {
		return nil, fmt.Errorf("%w: at least one edit is required", models.ErrEditInvalid)
	}
	if len(req.Edits) > models.MaxBatchEdits {
		return nil, fmt.Errorf("%w: at most %d edits are allowed per batch", models.ErrEditInvalid, models.MaxBatchEdits)
	}

	seen := make(map[string]bool, len(req.Edits))
	for _, e := range req.Edits {
		if e.SlideIndex < 0 || e.SlideIndex >= len(req.Slides) {
			return nil, fmt.Errorf("%w: slideIndex %d is out of range", models.ErrEditInvalid, e.SlideIndex)
		}
		bullets := len(req.Slides[e.SlideIndex].Bullets)
		if err := validateEdit(e.Target, e.Instruction, e.BulletIndex, bullets); err != nil {
			return nil, err
		}
		key := editKey(e)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate edit for slide %d target %s", models.ErrEditInvalid, e.SlideIndex, e.Target)
		}
		seen[key] = true
	}

	out := make([]models.SlidePlan, len(req.Slides))
	for i := range req.Slides {
		out[i] = cloneSlide(req.Slides[i])
	}
	for _, e := range req.Edits {
		if err := s.apply(ctx, &out[e.SlideIndex], e.Target, e.Instruction, e.BulletIndex); err != nil {
			return nil, fmt.Errorf("edit on slide %d failed: %w", e.SlideIndex, err)
		}
	}
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: slide %d: %v", models.ErrEditInvalid, i, err)
		}
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, slide *models.SlidePlan, target models.EditTarget, instruction string, bulletIndex *int) error {
	switch target {
	case models.EditTargetTitle:
		text, err := s.rewrite(ctx, "title", slide.Title, instruction, models.MaxTitleLength)
		if err != nil {
			return err
		}
		slide.Title = text
	case models.EditTargetBullet:
		text, err := s.rewrite(ctx, "bullet point", slide.Bullets[*bulletIndex], instruction, models.MaxBulletLength)
		if err != nil {
			return err
		}
		slide.Bullets[*bulletIndex] = text
	case models.EditTargetNotes:
		text, err := s.rewrite(ctx, "speaker notes", slide.Notes, instruction, 0)
		if err != nil {
			return err
		}
		slide.Notes = text
	case models.EditTargetImage:
		meta, err := s.registry.GenerateImage(ctx, instruction, "")
		if err != nil {
			return err
		}
		slide.Image = &models.ImageRef{Meta: &meta}
	}
	return nil
}

// rewrite asks the model for replacement text. Without an API key the
// instruction itself becomes the text, which keeps editing deterministic
// in keyless development runs.
func (s *Service) rewrite(ctx context.Context, part, current, instruction string, maxLen int) (string, error) {
	if s.cfg.OpenRouterAPIKey == "" {
		return clampText(instruction, maxLen), nil
	}

	systemPrompt := fmt.Sprintf(
		"You rewrite presentation slide text. Apply the user's instruction to the %s. Respond with the replacement text only, without quotes or markdown.", part)
	userPrompt := fmt.Sprintf("Current %s:\n%s\n\nInstruction: %s", part, current, instruction)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenRouterTimeout)
	defer cancel()

	text, _, err := s.client.ChatCompletion(callCtx, s.cfg.OpenRouterDefaultModel, systemPrompt, userPrompt, outline.GenerationParams{})
	if err != nil {
		s.logger.Warn("edit rewrite failed",
			zap.String("part", part),
			zap.Error(err))
		return "", err
	}
	cleaned := cleanReply(text)
	if cleaned == "" {
		return "", fmt.Errorf("model returned empty replacement for %s", part)
	}
	return clampText(cleaned, maxLen), nil
}

func validateEdit(target models.EditTarget, instruction string, bulletIndex *int, bulletCount int) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown edit target %q", models.ErrEditInvalid, target)
	}
	if strings.TrimSpace(instruction) == "" {
		return fmt.Errorf("%w: instruction must not be empty", models.ErrEditInvalid)
	}
	if target == models.EditTargetBullet {
		if bulletIndex == nil {
			return fmt.Errorf("%w: bulletIndex is required for bullet edits", models.ErrEditInvalid)
		}
		if *bulletIndex < 0 || *bulletIndex >= bulletCount {
			return fmt.Errorf("%w: bulletIndex %d is out of range", models.ErrEditInvalid, *bulletIndex)
		}
	}
	return nil
}

func editKey(e models.SlideEdit) string {
	bullet := -1
	if e.BulletIndex != nil {
		bullet = *e.BulletIndex
	}
	return fmt.Sprintf("%d|%s|%d", e.SlideIndex, e.Target, bullet)
}

func cloneSlide(s models.SlidePlan) models.SlidePlan {
	out := s
	out.Bullets = append([]string(nil), s.Bullets...)
	if s.Image != nil {
		ref := *s.Image
		if s.Image.Meta != nil {
			meta := *s.Image.Meta
			ref.Meta = &meta
		}
		out.Image = &ref
	}
	return out
}

// cleanReply strips fences and symmetric quotes from a model reply.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	for _, q := range []string{`"`, "'"} {
		if len(text) >= 2 && strings.HasPrefix(text, q) && strings.HasSuffix(text, q) {
			text = text[1 : len(text)-1]
		}
	}
	return strings.TrimSpace(text)
}

func clampText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
