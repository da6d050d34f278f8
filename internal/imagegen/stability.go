package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

// StabilityProvider generates images through the Stability AI REST API.
type StabilityProvider struct {
	baseURL  string
	engineID string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

type stabilityTextPrompt struct {
	Text string `json:"text"`
}

type stabilityRequest struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	CfgScale    float64               `json:"cfg_scale"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Samples     int                   `json:"samples"`
	Steps       int                   `json:"steps"`
}

type stabilityResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// NewStabilityProvider builds the Stability backend.
func NewStabilityProvider(cfg *config.Config, logger *zap.Logger) *StabilityProvider {
	return &StabilityProvider{
		baseURL:  cfg.StabilityBaseURL,
		engineID: cfg.StabilityEngineID,
		apiKey:   cfg.StabilityAPIKey,
		client: &http.Client{
			Timeout: cfg.StabilityTimeout,
		},
		logger: logger,
	}
}

func (p *StabilityProvider) Name() string {
	return ProviderStability
}

func (p *StabilityProvider) Available() bool {
	return p.apiKey != ""
}

func (p *StabilityProvider) Generate(ctx context.Context, prompt string) ([]byte, error) {
	reqPayload := stabilityRequest{
		TextPrompts: []stabilityTextPrompt{{Text: prompt}},
		CfgScale:    7,
		Width:       1024,
		Height:      1024,
		Samples:     1,
		Steps:       30,
	}
	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := fmt.Sprintf("%s/v1/generation/%s/text-to-image", p.baseURL, p.engineID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %v", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %w", ErrImageGenerationFailed,
			&models.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))})
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("stability API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", bodyBytes))
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrImageGenerationFailed, resp.StatusCode, string(bodyBytes))
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrImageGenerationFailed, readErr)
	}

	var parsed stabilityResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrImageGenerationFailed, err)
	}
	if len(parsed.Artifacts) == 0 || parsed.Artifacts[0].Base64 == "" {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	data, err := base64.StdEncoding.DecodeString(parsed.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrImageGenerationFailed, err)
	}
	p.logger.Debug("stability image generated",
		zap.String("engine", p.engineID),
		zap.Int("size_bytes", len(data)))
	return data, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
