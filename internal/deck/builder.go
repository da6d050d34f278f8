// Package deck renders slide plans into PowerPoint files.
package deck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slides-server/internal/config"
	"slides-server/internal/deck/pptx"
	"slides-server/internal/imagegen"
	"slides-server/internal/models"
)

// maxImageFetchBytes caps a single downloaded image.
const maxImageFetchBytes = 20 << 20

// ProgressFunc receives (done, total) after each rendered slide.
type ProgressFunc func(done, total int)

// Builder turns validated slide plans into .pptx files in the temp dir.
type Builder struct {
	cfg      *config.Config
	registry *imagegen.Registry
	client   *http.Client
	logger   *zap.Logger

	placeholderOnce sync.Once
	placeholder     []byte
}

// NewBuilder prepares the output directory.
func NewBuilder(cfg *config.Config, registry *imagegen.Registry, logger *zap.Logger) (*Builder, error) {
	if err := os.MkdirAll(cfg.PPTXTempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %q: %w", cfg.PPTXTempDir, err)
	}
	return &Builder{
		cfg:      cfg,
		registry: registry,
		client: &http.Client{
			Timeout: cfg.PPTXImageHTTPTimeout,
		},
		logger: logger,
	}, nil
}

// Build renders the deck and returns the path of the written file. Slide
// images are fetched concurrently first; rendering then walks the slides in
// order and reports progress after each one. Output I/O errors are fatal.
func (b *Builder) Build(ctx context.Context, slides []models.SlidePlan, onProgress ProgressFunc) (string, error) {
	total := len(slides)
	if total == 0 {
		return "", fmt.Errorf("cannot build an empty deck")
	}

	images := b.prefetchImages(ctx, slides)

	writer := pptx.NewWriter(pptx.Style{
		FontName:    b.cfg.PPTXFontName,
		TitleSizePt: b.cfg.PPTXTitleFontSizePt,
		BodySizePt:  b.cfg.PPTXBodyFontSizePt,
	})
	for i, s := range slides {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		writer.AddSlide(pptx.Slide{
			Title:   s.Title,
			Bullets: s.Bullets,
			Notes:   s.Notes,
			Image:   images[i],
		})
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	fileName := fmt.Sprintf("%s.pptx", uuid.New().String())
	outPath := filepath.Join(b.cfg.PPTXTempDir, fileName)
	if err := writer.Save(outPath); err != nil {
		return "", err
	}

	b.logger.Info("deck written",
		zap.String("path", outPath),
		zap.Int("slides", total))
	return outPath, nil
}

// prefetchImages resolves and downloads every slide image with bounded
// concurrency. A failed image never fails the build; the slide gets the
// placeholder instead.
func (b *Builder) prefetchImages(ctx context.Context, slides []models.SlidePlan) [][]byte {
	images := make([][]byte, len(slides))

	limit := b.cfg.ImageMaxConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range slides {
		if slides[i].Image == nil {
			continue
		}
		i := i
		g.Go(func() error {
			images[i] = b.fetchImage(gctx, slides[i])
			return nil
		})
	}
	g.Wait()
	return images
}

func (b *Builder) fetchImage(ctx context.Context, s models.SlidePlan) []byte {
	ref := s.Image

	var meta models.ImageMeta
	switch {
	case ref.Resolved():
		meta = *ref.Meta
	case strings.TrimSpace(ref.Prompt) != "":
		m, err := b.registry.GenerateImage(ctx, ref.Prompt, "")
		if err != nil {
			b.logger.Warn("image resolution failed, using placeholder",
				zap.String("prompt", ref.Prompt),
				zap.Error(err))
			return b.placeholderBytes()
		}
		meta = m
	default:
		return nil
	}

	if meta.Provider == imagegen.ProviderNone {
		return b.placeholderBytes()
	}

	if localPath := b.registry.Store().LocalPath(meta.URL); localPath != "" {
		data, err := os.ReadFile(localPath)
		if err == nil {
			return data
		}
		b.logger.Warn("failed to read stored image, using placeholder",
			zap.String("path", localPath),
			zap.Error(err))
		return b.placeholderBytes()
	}

	data, err := b.download(ctx, meta.URL)
	if err != nil {
		b.logger.Warn("image download failed, using placeholder",
			zap.String("url", meta.URL),
			zap.Error(err))
		return b.placeholderBytes()
	}
	return data
}

func (b *Builder) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return data, nil
}

// placeholderBytes loads the placeholder asset once, generating the PNG in
// memory when the asset is absent.
func (b *Builder) placeholderBytes() []byte {
	b.placeholderOnce.Do(func() {
		rel := strings.TrimPrefix(b.cfg.PlaceholderURLPath, b.cfg.StaticURLPath)
		assetPath := filepath.Join(b.cfg.StaticDir, filepath.FromSlash(path.Clean("/"+rel)))
		if data, err := os.ReadFile(assetPath); err == nil && len(data) > 0 {
			b.placeholder = data
			return
		}
		b.placeholder = imagegen.PlaceholderPNG(512, 512)
	})
	return b.placeholder
}
