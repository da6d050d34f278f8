package deck

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slides-server/internal/config"
	"slides-server/internal/deck/pptx"
	"slides-server/internal/imagegen"
	"slides-server/internal/models"
)

// staticProvider hands back fixed bytes for every prompt.
type staticProvider struct {
	name string
	data []byte
}

func (p *staticProvider) Name() string    { return p.name }
func (p *staticProvider) Available() bool { return true }

func (p *staticProvider) Generate(_ context.Context, _ string) ([]byte, error) {
	return p.data, nil
}

func builderTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		PublicBaseURL:              "http://localhost:8000",
		StaticDir:                  t.TempDir(),
		StaticURLPath:              "/static",
		StaticImagesSubdir:         "images",
		PlaceholderURLPath:         "/static/placeholder.png",
		DefaultImageProvider:       imagegen.ProviderDalle,
		ImageProviderFallbackOrder: []string{imagegen.ProviderDalle, imagegen.ProviderStability},
		ImageRequestsPerSecond:     1000,
		ImageCacheTTL:              time.Minute,
		ImageCacheMaxEntries:       16,
		ImageMaxConcurrency:        2,
		PPTXTempDir:                filepath.Join(t.TempDir(), "pptx"),
		PPTXImageHTTPTimeout:       time.Second,
	}
}

func newTestBuilder(t *testing.T, cfg *config.Config, providers ...imagegen.Provider) *Builder {
	t.Helper()
	store, err := imagegen.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	registry := imagegen.NewRegistry(cfg, store, zap.NewNop(), providers...)
	builder, err := NewBuilder(cfg, registry, zap.NewNop())
	require.NoError(t, err)
	return builder
}

func TestBuildWritesDeck(t *testing.T) {
	cfg := builderTestConfig(t)
	builder := newTestBuilder(t, cfg)

	slides := []models.SlidePlan{
		{Title: "One", Bullets: []string{"A", "B"}},
		{Title: "Two", Bullets: []string{"C"}, Notes: "Pause here for questions"},
		{Title: "Three", Bullets: []string{"D"}},
	}
	var progress [][2]int
	path, err := builder.Build(context.Background(), slides, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	require.NoError(t, err, "A plain text deck should build")
	assert.Equal(t, cfg.PPTXTempDir, filepath.Dir(path), "Output belongs in the configured temp dir")

	base := filepath.Base(path)
	require.True(t, strings.HasSuffix(base, ".pptx"))
	_, parseErr := uuid.Parse(strings.TrimSuffix(base, ".pptx"))
	assert.NoError(t, parseErr, "The file name should be a UUID")

	count, err := pptx.SlideCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	notes, err := pptx.NotesText(path, 2)
	require.NoError(t, err)
	assert.Equal(t, "Pause here for questions", notes, "Speaker notes must survive unchanged")

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress,
		"Progress should advance once per slide in order")
}

func TestBuildEmbedsProviderImage(t *testing.T) {
	cfg := builderTestConfig(t)
	builder := newTestBuilder(t, cfg,
		&staticProvider{name: imagegen.ProviderDalle, data: []byte("generated png")})

	slides := []models.SlidePlan{{
		Title:   "Visual",
		Bullets: []string{"A"},
		Image:   &models.ImageRef{Prompt: "a red fox"},
	}}
	path, err := builder.Build(context.Background(), slides, nil)

	require.NoError(t, err)
	has, err := pptx.HasMedia(path, 1)
	require.NoError(t, err)
	assert.True(t, has, "The generated image should be embedded on the slide")
}

func TestBuildUsesPlaceholderWhenProvidersFail(t *testing.T) {
	cfg := builderTestConfig(t)
	builder := newTestBuilder(t, cfg)

	slides := []models.SlidePlan{{
		Title:   "Visual",
		Bullets: []string{"A"},
		Image:   &models.ImageRef{Prompt: "a red fox"},
	}}
	path, err := builder.Build(context.Background(), slides, nil)

	require.NoError(t, err, "Image failures must never fail the build")
	has, err := pptx.HasMedia(path, 1)
	require.NoError(t, err)
	assert.True(t, has, "The placeholder should stand in for the missing image")
}

func TestBuildReadsResolvedLocalImage(t *testing.T) {
	cfg := builderTestConfig(t)
	store, err := imagegen.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	name, err := store.SavePNG([]byte("stored png"))
	require.NoError(t, err)

	registry := imagegen.NewRegistry(cfg, store, zap.NewNop())
	builder, err := NewBuilder(cfg, registry, zap.NewNop())
	require.NoError(t, err)

	slides := []models.SlidePlan{{
		Title:   "Visual",
		Bullets: []string{"A"},
		Image: &models.ImageRef{Meta: &models.ImageMeta{
			URL:      store.PublicURL(name),
			AltText:  "a red fox",
			Provider: imagegen.ProviderDalle,
		}},
	}}
	path, err := builder.Build(context.Background(), slides, nil)

	require.NoError(t, err)
	has, err := pptx.HasMedia(path, 1)
	require.NoError(t, err)
	assert.True(t, has, "A locally stored image should be read straight from disk")
}

func TestBuildRejectsEmptyDeck(t *testing.T) {
	builder := newTestBuilder(t, builderTestConfig(t))

	_, err := builder.Build(context.Background(), nil, nil)

	assert.Error(t, err)
}

func TestBuildHonorsCancellation(t *testing.T) {
	builder := newTestBuilder(t, builderTestConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := builder.Build(ctx, []models.SlidePlan{{Title: "One", Bullets: []string{"A"}}}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}
