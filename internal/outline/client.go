package outline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slides_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slides_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slides_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slides_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model"},
	)
)

// ErrAIGenerationFailed marks any upstream failure while producing text.
var ErrAIGenerationFailed = errors.New("ai text generation failed")

// GenerationParams tune a single generation call. Pointers distinguish an
// unset parameter from an explicit zero.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo reports the token usage of a single call. When the upstream
// omits usage data the counts are estimated with tiktoken.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool
}

// AIClient talks to a chat-completion backend.
type AIClient interface {
	// ChatCompletion sends a system+user exchange and returns the raw model text.
	ChatCompletion(ctx context.Context, model, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error)
	// Completion sends a plain prompt to the legacy completions endpoint.
	Completion(ctx context.Context, model, prompt string, params GenerationParams) (string, UsageInfo, error)
}

// --- OpenAI-compatible client (OpenRouter, OpenAI) ---

type openAIClient struct {
	client *openaigo.Client
	logger *zap.Logger
}

func (c *openAIClient) ChatCompletion(ctx context.Context, model, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: empty system prompt", ErrAIGenerationFailed)
	}

	messages := []openaigo.ChatCompletionMessage{
		{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
	}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: userInput,
		})
	}

	startTime := time.Now()
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openaigo.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: float32Val(params.Temperature),
			MaxTokens:   intVal(params.MaxTokens),
			TopP:        float32Val(params.TopP),
		},
	)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("AI chat completion failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, classifyUpstreamError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("AI chat completion returned empty response",
			zap.String("model", model),
			zap.Duration("duration", duration))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	text := resp.Choices[0].Message.Content
	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	} else {
		usage = estimateUsage(model, systemPrompt+userInput, text)
	}
	observeTokens(model, usage)

	c.logger.Debug("AI chat completion succeeded",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Bool("usage_estimated", usage.Estimated))

	return text, usage, nil
}

func (c *openAIClient) Completion(ctx context.Context, model, prompt string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(prompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: empty prompt", ErrAIGenerationFailed)
	}

	startTime := time.Now()
	resp, err := c.client.CreateCompletion(
		ctx,
		openaigo.CompletionRequest{
			Model:       model,
			Prompt:      prompt,
			Temperature: float32Val(params.Temperature),
			MaxTokens:   intVal(params.MaxTokens),
			TopP:        float32Val(params.TopP),
		},
	)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("AI legacy completion failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_legacy"}).Inc()
		return "", usage, classifyUpstreamError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success_legacy"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	text := resp.Choices[0].Text
	if resp.Usage.TotalTokens > 0 {
		usage.PromptTokens = resp.Usage.PromptTokens
		usage.CompletionTokens = resp.Usage.CompletionTokens
		usage.TotalTokens = resp.Usage.TotalTokens
	} else {
		usage = estimateUsage(model, prompt, text)
	}
	observeTokens(model, usage)

	return text, usage, nil
}

// estimateUsage approximates token counts with tiktoken when the upstream
// response carries no usage block.
func estimateUsage(model, prompt, completion string) UsageInfo {
	usage := UsageInfo{Estimated: true}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return usage
		}
	}
	usage.PromptTokens = len(tke.Encode(prompt, nil, nil))
	usage.CompletionTokens = len(tke.Encode(completion, nil, nil))
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

func observeTokens(model string, usage UsageInfo) {
	if usage.TotalTokens == 0 {
		return
	}
	aiPromptTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.CompletionTokens))
}

// classifyUpstreamError maps go-openai errors onto the retry taxonomy.
// Status 429 becomes a RateLimitedError, other API failures keep their
// status code reachable through UpstreamStatus.
func classifyUpstreamError(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrAIGenerationFailed, &models.RateLimitedError{})
		}
		return fmt.Errorf("%w: %w", ErrAIGenerationFailed, &upstreamStatusError{status: apiErr.HTTPStatusCode, cause: err})
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %w", ErrAIGenerationFailed, &upstreamStatusError{status: reqErr.HTTPStatusCode, cause: err})
	}
	return fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 1.0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// --- Ollama client ---

type ollamaClient struct {
	client  *api.Client
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	httpClient := &http.Client{
		Timeout: cfg.OpenRouterTimeout,
	}

	// api.NewClient wants the bare host URL without the /v1 suffix.
	baseURL := strings.TrimSuffix(cfg.OpenRouterBaseURL, "/v1")
	baseURL = strings.TrimSuffix(baseURL, "/")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama base URL %q: %w", baseURL, err)
	}

	logger.Info("ollama client created",
		zap.String("base_url", baseURL),
		zap.Duration("timeout", cfg.OpenRouterTimeout))

	return &ollamaClient{
		client:  api.NewClient(parsedURL, httpClient),
		timeout: cfg.OpenRouterTimeout,
		logger:  logger,
	}, nil
}

func (c *ollamaClient) ChatCompletion(ctx context.Context, model, systemPrompt, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: empty system prompt", ErrAIGenerationFailed)
	}

	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
	}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(false),
		Options: map[string]interface{}{
			"temperature": params.Temperature,
			"top_p":       params.TopP,
			"num_predict": intVal(params.MaxTokens),
		},
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("ollama chat failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err))
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", usage, fmt.Errorf("%w: %w", ErrAIGenerationFailed, err)
		}
		return "", usage, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	usage.PromptTokens = resp.PromptEvalCount
	usage.CompletionTokens = resp.EvalCount
	usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	observeTokens(model, usage)

	return resp.Message.Content, usage, nil
}

func (c *ollamaClient) Completion(ctx context.Context, model, prompt string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(prompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: empty prompt", ErrAIGenerationFailed)
	}

	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: func(b bool) *bool { return &b }(false),
		Options: map[string]interface{}{
			"temperature": params.Temperature,
			"top_p":       params.TopP,
			"num_predict": intVal(params.MaxTokens),
		},
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var resp api.GenerateResponse
	err := c.client.Generate(requestCtx, req, func(r api.GenerateResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_legacy"}).Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrAIGenerationFailed, err)
	}

	if resp.Response == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: empty response", ErrAIGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": "success_legacy"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(duration.Seconds())

	usage.PromptTokens = resp.PromptEvalCount
	usage.CompletionTokens = resp.EvalCount
	usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	observeTokens(model, usage)

	return resp.Response, usage, nil
}

// --- Factory ---

// NewAIClient builds the configured chat backend.
func NewAIClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		openaiConfig := openaigo.DefaultConfig(cfg.OpenRouterAPIKey)
		openaiConfig.BaseURL = cfg.OpenRouterBaseURL
		openaiConfig.HTTPClient = &http.Client{
			Timeout: cfg.OpenRouterTimeout,
		}
		client := openaigo.NewClientWithConfig(openaiConfig)
		logger.Info("openai-compatible client created",
			zap.String("base_url", cfg.OpenRouterBaseURL),
			zap.Duration("timeout", cfg.OpenRouterTimeout))
		return &openAIClient{
			client: client,
			logger: logger,
		}, nil
	case "ollama":
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown AI client type: %q", cfg.AIClientType)
	}
}
