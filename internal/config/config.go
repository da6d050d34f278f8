package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime setting of the slides server. Values come from
// environment variables; defaults keep a keyless development run working.
type Config struct {
	// Server
	ServerPort         string `envconfig:"SERVER_PORT" default:"8000"`
	Env                string `envconfig:"PROJECT_ENV" default:"development"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding        string `envconfig:"LOG_ENCODING" default:"json"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
	PublicBaseURL      string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8000"`

	// Static file hosting (generated images, placeholder asset)
	StaticDir          string `envconfig:"STATIC_DIR" default:"static"`
	StaticURLPath      string `envconfig:"STATIC_URL_PATH" default:"/static"`
	StaticImagesSubdir string `envconfig:"STATIC_IMAGES_SUBDIR" default:"images"`
	PlaceholderURLPath string `envconfig:"PLACEHOLDER_URL_PATH" default:"/static/placeholder.png"`

	// Outline generation (OpenRouter-compatible chat completions)
	OpenRouterAPIKey        string        `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL       string        `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterDefaultModel  string        `envconfig:"OPENROUTER_DEFAULT_MODEL" default:"openai/gpt-4o-mini"`
	OpenRouterAllowedModels []string      `envconfig:"OPENROUTER_ALLOWED_MODELS" default:"openai/gpt-4o-mini,anthropic/claude-3.5-haiku,google/gemini-flash-1.5,deepseek/deepseek-chat"`
	OpenRouterTimeout       time.Duration `envconfig:"OPENROUTER_TIMEOUT" default:"120s"`
	AIClientType            string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIMaxAttempts           int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay        time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	StrictUpstream          bool          `envconfig:"STRICT_UPSTREAM" default:"false"`

	// DALL-E image provider
	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIDalleModel string        `envconfig:"OPENAI_DALLE_MODEL" default:"dall-e-3"`
	OpenAITimeout    time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`

	// Stability AI image provider
	StabilityAPIKey   string        `envconfig:"STABILITY_API_KEY"`
	StabilityBaseURL  string        `envconfig:"STABILITY_BASE_URL" default:"https://api.stability.ai"`
	StabilityEngineID string        `envconfig:"STABILITY_ENGINE_ID" default:"stable-diffusion-xl-1024-v1-0"`
	StabilityTimeout  time.Duration `envconfig:"STABILITY_TIMEOUT" default:"60s"`

	// Image pipeline
	DefaultImageProvider       string        `envconfig:"DEFAULT_IMAGE_PROVIDER" default:"dalle"`
	ImageProviderFallbackOrder []string      `envconfig:"IMAGE_PROVIDER_FALLBACK_ORDER" default:"dalle,stability-ai"`
	ImageMaxConcurrency        int           `envconfig:"IMAGE_MAX_CONCURRENCY" default:"3"`
	ImageRequestsPerSecond     float64       `envconfig:"IMAGE_REQUESTS_PER_SECOND" default:"2"`
	ImageCacheTTL              time.Duration `envconfig:"IMAGE_CACHE_TTL" default:"1h"`
	ImageCacheMaxEntries       int           `envconfig:"IMAGE_CACHE_MAX_ENTRIES" default:"256"`

	// Deck rendering
	PPTXTempDir          string        `envconfig:"PPTX_TEMP_DIR" default:"tmp/pptx"`
	PPTXFontName         string        `envconfig:"PPTX_FONT_NAME" default:"Calibri"`
	PPTXTitleFontSizePt  int           `envconfig:"PPTX_TITLE_FONT_SIZE_PT" default:"32"`
	PPTXBodyFontSizePt   int           `envconfig:"PPTX_BODY_FONT_SIZE_PT" default:"18"`
	PPTXImageHTTPTimeout time.Duration `envconfig:"PPTX_IMAGE_HTTP_TIMEOUT" default:"15s"`

	// Jobs
	MaxActiveJobs int           `envconfig:"MAX_ACTIVE_JOBS" default:"32"`
	JobRetention  time.Duration `envconfig:"JOB_RETENTION" default:"1h"`

	// Progress channel
	WSReplayBufferSize int `envconfig:"WS_REPLAY_BUFFER_SIZE" default:"256"`

	// Auth
	JWTSecret       string        `envconfig:"JWT_SECRET_KEY" default:"change-me"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"24h"`

	// Rate limiting (fixed window per client IP)
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`
	RateLimitMax    uint          `envconfig:"RATE_LIMIT_MAX" default:"100"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	return &cfg, nil
}

// GetAllowedOrigins splits the comma-separated CORS origin list.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ModelAllowed reports whether the requested model may be used for outline
// generation. An empty allow-list permits any model.
func (c *Config) ModelAllowed(model string) bool {
	if len(c.OpenRouterAllowedModels) == 0 {
		return true
	}
	for _, m := range c.OpenRouterAllowedModels {
		if m == model {
			return true
		}
	}
	return false
}
