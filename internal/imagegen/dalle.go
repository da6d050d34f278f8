package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

// DalleProvider generates images through the OpenAI images endpoint.
type DalleProvider struct {
	client    *openaigo.Client
	model     string
	available bool
	logger    *zap.Logger
}

// NewDalleProvider builds the DALL-E backend. The provider registers even
// without a key so listings can report it as unavailable.
func NewDalleProvider(cfg *config.Config, logger *zap.Logger) *DalleProvider {
	clientConfig := openaigo.DefaultConfig(cfg.OpenAIAPIKey)
	clientConfig.BaseURL = cfg.OpenAIBaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.OpenAITimeout,
	}
	return &DalleProvider{
		client:    openaigo.NewClientWithConfig(clientConfig),
		model:     cfg.OpenAIDalleModel,
		available: cfg.OpenAIAPIKey != "",
		logger:    logger,
	}
}

func (p *DalleProvider) Name() string {
	return ProviderDalle
}

func (p *DalleProvider) Available() bool {
	return p.available
}

func (p *DalleProvider) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := p.client.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         prompt,
		Model:          p.model,
		N:              1,
		Size:           openaigo.CreateImageSize1024x1024,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openaigo.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", ErrImageGenerationFailed, &models.RateLimitedError{})
		}
		return nil, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrImageGenerationFailed, err)
	}
	p.logger.Debug("dalle image generated",
		zap.String("model", p.model),
		zap.Int("size_bytes", len(data)))
	return data, nil
}
