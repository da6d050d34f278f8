package imagegen

import (
	"context"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"slides-server/internal/config"
	"slides-server/internal/models"
)

var (
	imageGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slides_image_generations_total",
			Help: "Total number of image generation attempts by provider and outcome.",
		},
		[]string{"provider", "status"},
	)
	imageGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slides_image_generation_duration_seconds",
			Help:    "Histogram of image provider call durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Registry holds the configured image backends and applies the resolution
// rules: an explicit provider is used as-is, auto walks the default and the
// fallback order and degrades to the placeholder when everything fails.
type Registry struct {
	cfg       *config.Config
	store     *Store
	providers map[string]Provider
	order     []string
	cache     *gocache.Cache
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewRegistry wires the providers in registration order.
func NewRegistry(cfg *config.Config, store *Store, logger *zap.Logger, providers ...Provider) *Registry {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	burst := int(cfg.ImageRequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		cfg:       cfg,
		store:     store,
		providers: byName,
		order:     cfg.ImageProviderFallbackOrder,
		cache:     gocache.New(cfg.ImageCacheTTL, 10*time.Minute),
		limiter:   rate.NewLimiter(rate.Limit(cfg.ImageRequestsPerSecond), burst),
		logger:    logger,
	}
}

// List reports the registered providers and their configured availability.
// No network calls are made. Available lists usable providers in resolution
// order, default first.
func (r *Registry) List() models.ProvidersResponse {
	resp := models.ProvidersResponse{
		Providers: make(map[string]bool, len(r.providers)),
		Available: []string{},
		Default:   r.cfg.DefaultImageProvider,
	}
	for name, p := range r.providers {
		resp.Providers[name] = p.Available()
	}
	seen := make(map[string]bool, len(r.providers))
	for _, name := range append([]string{r.cfg.DefaultImageProvider}, r.order...) {
		p, ok := r.providers[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		if p.Available() {
			resp.Available = append(resp.Available, name)
		}
	}
	for name, p := range r.providers {
		if !seen[name] && p.Available() {
			resp.Available = append(resp.Available, name)
		}
	}
	return resp
}

// resolve returns the providers to try, in order. An explicit request pins
// exactly one provider and never falls back.
func (r *Registry) resolve(requested string) ([]Provider, error) {
	if requested != "" && requested != ProviderAuto {
		p, ok := r.providers[requested]
		if !ok {
			return nil, models.ErrProviderUnknown
		}
		if !p.Available() {
			return nil, models.ErrProviderUnavailable
		}
		return []Provider{p}, nil
	}

	var chain []Provider
	seen := make(map[string]bool)
	for _, name := range append([]string{r.cfg.DefaultImageProvider}, r.order...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		if p, ok := r.providers[name]; ok && p.Available() {
			chain = append(chain, p)
		}
	}
	return chain, nil
}

// GenerateImage produces stored image metadata for a prompt. In auto mode
// the call never fails: total provider failure yields the placeholder.
// With an explicit provider the failure is returned instead.
func (r *Registry) GenerateImage(ctx context.Context, prompt, requested string) (models.ImageMeta, error) {
	explicit := requested != "" && requested != ProviderAuto

	chain, err := r.resolve(requested)
	if err != nil {
		return models.ImageMeta{}, err
	}

	cacheField := NormalizePrompt(prompt)
	var lastErr error
	for _, p := range chain {
		if meta, ok := r.cacheGet(p.Name(), cacheField); ok {
			imageGenerationsTotal.With(prometheus.Labels{"provider": p.Name(), "status": "cache_hit"}).Inc()
			return meta, nil
		}

		if err := r.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		startTime := time.Now()
		data, err := p.Generate(ctx, prompt)
		duration := time.Since(startTime)

		if err != nil {
			imageGenerationsTotal.With(prometheus.Labels{"provider": p.Name(), "status": "error"}).Inc()
			r.logger.Warn("image provider failed",
				zap.String("provider", p.Name()),
				zap.Duration("duration", duration),
				zap.Error(err))
			lastErr = err
			if explicit {
				return models.ImageMeta{}, err
			}
			continue
		}

		fileName, err := r.store.SavePNG(data)
		if err != nil {
			imageGenerationsTotal.With(prometheus.Labels{"provider": p.Name(), "status": "error"}).Inc()
			lastErr = err
			if explicit {
				return models.ImageMeta{}, err
			}
			continue
		}

		imageGenerationsTotal.With(prometheus.Labels{"provider": p.Name(), "status": "success"}).Inc()
		imageGenerationDuration.With(prometheus.Labels{"provider": p.Name()}).Observe(duration.Seconds())

		meta := models.ImageMeta{
			URL:      models.NormalizeImageURL(r.store.PublicURL(fileName)),
			AltText:  prompt,
			Provider: p.Name(),
		}
		r.cachePut(p.Name(), cacheField, meta)
		return meta, nil
	}

	if explicit && lastErr != nil {
		return models.ImageMeta{}, lastErr
	}

	imageGenerationsTotal.With(prometheus.Labels{"provider": ProviderNone, "status": "placeholder"}).Inc()
	if lastErr != nil {
		r.logger.Warn("all image providers failed, using placeholder", zap.Error(lastErr))
	}
	return r.Placeholder(prompt), nil
}

// Placeholder builds the metadata for the bundled placeholder asset.
func (r *Registry) Placeholder(prompt string) models.ImageMeta {
	return models.ImageMeta{
		URL:      r.store.PlaceholderURL(),
		AltText:  prompt,
		Provider: ProviderNone,
	}
}

// Store exposes the backing image store.
func (r *Registry) Store() *Store {
	return r.store
}

func cacheKey(provider, normalizedPrompt string) string {
	return provider + "|" + normalizedPrompt
}

func (r *Registry) cacheGet(provider, normalizedPrompt string) (models.ImageMeta, bool) {
	v, ok := r.cache.Get(cacheKey(provider, normalizedPrompt))
	if !ok {
		return models.ImageMeta{}, false
	}
	meta, ok := v.(models.ImageMeta)
	return meta, ok
}

func (r *Registry) cachePut(provider, normalizedPrompt string, meta models.ImageMeta) {
	if r.cfg.ImageCacheMaxEntries > 0 && r.cache.ItemCount() >= r.cfg.ImageCacheMaxEntries {
		r.evictOldest()
	}
	r.cache.Set(cacheKey(provider, normalizedPrompt), meta, gocache.DefaultExpiration)
}

// evictOldest removes the entry closest to expiry. Entries share one TTL,
// so the closest expiry is also the oldest insert.
func (r *Registry) evictOldest() {
	var oldestKey string
	oldest := int64(math.MaxInt64)
	for k, item := range r.cache.Items() {
		if item.Expiration > 0 && item.Expiration < oldest {
			oldest = item.Expiration
			oldestKey = k
		}
	}
	if oldestKey != "" {
		r.cache.Delete(oldestKey)
	}
}
