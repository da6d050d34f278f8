package outline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

// Service turns a user prompt into a validated slide outline. Upstream
// failures degrade to a deterministic offline outline unless strict
// upstream mode is on.
type Service struct {
	cfg    *config.Config
	client AIClient
	logger *zap.Logger
}

// NewService wires the outline generator.
func NewService(cfg *config.Config, client AIClient, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Generate validates the request, asks the configured model for an outline
// and falls back down the chain chat -> legacy completions -> offline stub.
// Validation errors are terminal and never reach the fallback chain.
func (s *Service) Generate(ctx context.Context, req models.ChatGenerateRequest) (models.ChatGenerateResponse, error) {
	var resp models.ChatGenerateResponse

	if strings.TrimSpace(req.Prompt) == "" {
		return resp, models.ErrPromptRequired
	}
	count := req.ResolvedSlideCount()
	if count < models.MinSlideCount || count > models.MaxSlideCount {
		return resp, models.ErrSlideCountRange
	}
	model := s.cfg.OpenRouterDefaultModel
	if req.Model != "" {
		if !s.cfg.ModelAllowed(req.Model) {
			return resp, models.ErrModelNotAllowed
		}
		model = req.Model
	}

	if s.cfg.OpenRouterAPIKey == "" {
		if s.cfg.StrictUpstream {
			return resp, fmt.Errorf("%w: no API key configured", models.ErrUpstreamUnavailable)
		}
		s.logger.Info("no API key configured, serving offline outline",
			zap.Int("slide_count", count))
		return models.ChatGenerateResponse{
			Slides: StubOutline(count),
			Model:  model,
			Stub:   true,
		}, nil
	}

	systemPrompt := buildSystemPrompt(count, req.Language)
	userPrompt := buildUserPrompt(req.Prompt, req.Context)
	params := GenerationParams{Temperature: float64Ptr(0.7)}

	slides, err := s.generateWithRetries(ctx, model, systemPrompt, userPrompt, params)
	if err == nil {
		return models.ChatGenerateResponse{
			Slides: sanitizeSlides(slides, count),
			Model:  model,
		}, nil
	}

	if legacySlides, legacyErr := s.generateLegacy(ctx, model, req, count); legacyErr == nil {
		s.logger.Info("chat completions unavailable, legacy completions succeeded",
			zap.String("model", model))
		return models.ChatGenerateResponse{
			Slides: sanitizeSlides(legacySlides, count),
			Model:  model,
		}, nil
	}

	if s.cfg.StrictUpstream {
		return resp, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}

	s.logger.Warn("upstream outline generation failed, serving offline outline",
		zap.String("model", model),
		zap.Error(err))
	return models.ChatGenerateResponse{
		Slides: StubOutline(count),
		Model:  model,
		Stub:   true,
	}, nil
}

// generateWithRetries runs the bounded retry loop against the chat
// endpoint. Unparsable model output counts as a failed attempt; validation
// failures from the upstream abort immediately.
func (s *Service) generateWithRetries(ctx context.Context, model, systemPrompt, userPrompt string, params GenerationParams) ([]models.SlidePlan, error) {
	baseDelay := s.cfg.AIBaseRetryDelay
	var lastErr error

	for attempt := 1; attempt <= s.cfg.AIMaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenRouterTimeout)
		text, _, err := s.client.ChatCompletion(callCtx, model, systemPrompt, userPrompt, params)
		cancel()

		if err == nil {
			slides, parseErr := ExtractSlides(text)
			if parseErr == nil {
				return slides, nil
			}
			s.logger.Warn("outline attempt produced unparsable text",
				zap.Int("attempt", attempt),
				zap.Error(parseErr))
			lastErr = parseErr
		} else {
			lastErr = err
			if !retryable(err) {
				return nil, err
			}
			s.logger.Warn("outline attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.cfg.AIMaxAttempts),
				zap.Error(err))
		}

		if attempt == s.cfg.AIMaxAttempts {
			break
		}

		delay := float64(baseDelay) * math.Pow(2, float64(attempt-1))
		jitter := delay * 0.1
		delay += jitter * (rand.Float64()*2 - 1)
		waitDuration := time.Duration(delay)
		if waitDuration < baseDelay {
			waitDuration = baseDelay
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitDuration):
		}
	}

	return nil, lastErr
}

// generateLegacy makes one attempt against the legacy completions endpoint
// with the exchange flattened into a single prompt.
func (s *Service) generateLegacy(ctx context.Context, model string, req models.ChatGenerateRequest, count int) ([]models.SlidePlan, error) {
	prompt := buildLegacyPrompt(req.Prompt, req.Context, count, req.Language)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.OpenRouterTimeout)
	defer cancel()

	text, _, err := s.client.Completion(callCtx, model, prompt, GenerationParams{Temperature: float64Ptr(0.7)})
	if err != nil {
		return nil, err
	}
	return ExtractSlides(text)
}

// sanitizeSlides forces a model outline into the response contract: exactly
// count slides, trimmed fields within limits, at least one bullet each.
func sanitizeSlides(slides []models.SlidePlan, count int) []models.SlidePlan {
	if len(slides) > count {
		slides = slides[:count]
	}
	for i := range slides {
		slides[i].Title = truncateRunes(strings.TrimSpace(slides[i].Title), models.MaxTitleLength)
		if slides[i].Title == "" {
			slides[i].Title = fmt.Sprintf("Slide %d", i+1)
		}
		cleaned := make([]string, 0, len(slides[i].Bullets))
		for _, b := range slides[i].Bullets {
			b = truncateRunes(strings.TrimSpace(b), models.MaxBulletLength)
			if b != "" {
				cleaned = append(cleaned, b)
			}
		}
		if len(cleaned) == 0 {
			cleaned = []string{"Bullet"}
		}
		slides[i].Bullets = cleaned
	}
	for len(slides) < count {
		slides = append(slides, models.SlidePlan{
			Title:   fmt.Sprintf("Slide %d", len(slides)+1),
			Bullets: []string{"Bullet"},
		})
	}
	return slides
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func float64Ptr(f float64) *float64 {
	return &f
}
