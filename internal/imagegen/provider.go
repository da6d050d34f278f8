package imagegen

import (
	"context"
	"errors"
	"strings"
)

// Registered provider names.
const (
	ProviderDalle     = "dalle"
	ProviderStability = "stability-ai"
	ProviderAuto      = "auto"
	ProviderNone      = "placeholder"
)

// ErrImageGenerationFailed marks a failed provider call.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ErrImageSaveFailed marks a failure while persisting generated bytes.
var ErrImageSaveFailed = errors.New("image save failed")

// Provider is a single image backend. Generate returns raw PNG bytes.
type Provider interface {
	Name() string
	// Available reports whether the provider is configured, without any
	// network calls.
	Available() bool
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// NormalizePrompt collapses whitespace and lowercases the prompt so that
// equivalent prompts share one cache entry.
func NormalizePrompt(p string) string {
	return strings.ToLower(strings.Join(strings.Fields(p), " "))
}
