package imagegen

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slides-server/internal/config"
)

// Store persists generated images under the static directory and builds
// their public URLs.
type Store struct {
	dir             string
	publicBase      string
	urlPath         string
	placeholderPath string
	placeholderFile string
	logger          *zap.Logger
}

// NewStore creates the images directory if needed and materializes the
// placeholder asset so its public URL resolves.
func NewStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg.StaticDir == "" {
		return nil, fmt.Errorf("static directory (STATIC_DIR) is not configured")
	}
	dir := filepath.Join(cfg.StaticDir, cfg.StaticImagesSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory %q: %w", dir, err)
	}
	s := &Store{
		dir:             dir,
		publicBase:      strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		urlPath:         path.Join(cfg.StaticURLPath, cfg.StaticImagesSubdir),
		placeholderPath: cfg.PlaceholderURLPath,
		placeholderFile: placeholderFilePath(cfg),
		logger:          logger,
	}
	if err := s.ensurePlaceholder(); err != nil {
		logger.Warn("failed to write placeholder asset", zap.Error(err))
	}
	return s, nil
}

// placeholderFilePath maps the placeholder URL path onto the static dir,
// or "" when the URL lives outside the static mount.
func placeholderFilePath(cfg *config.Config) string {
	if !strings.HasPrefix(cfg.PlaceholderURLPath, cfg.StaticURLPath) {
		return ""
	}
	rel := strings.TrimPrefix(cfg.PlaceholderURLPath, cfg.StaticURLPath)
	return filepath.Join(cfg.StaticDir, filepath.FromSlash(path.Clean("/"+rel)))
}

func (s *Store) ensurePlaceholder() error {
	if s.placeholderFile == "" {
		return nil
	}
	if _, err := os.Stat(s.placeholderFile); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.placeholderFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.placeholderFile, PlaceholderPNG(512, 512), 0o644)
}

// SavePNG writes the image under a fresh UUID name and returns the filename.
func (s *Store) SavePNG(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image data", ErrImageSaveFailed)
	}
	fileName := fmt.Sprintf("%s.png", uuid.New().String())
	filePath := filepath.Join(s.dir, fileName)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		s.logger.Error("failed to save image", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	s.logger.Debug("image saved", zap.String("path", filePath), zap.Int("size_bytes", len(data)))
	return fileName, nil
}

// PublicURL builds the externally reachable URL for a stored filename.
func (s *Store) PublicURL(fileName string) string {
	return s.publicBase + path.Join(s.urlPath, fileName)
}

// PlaceholderURL is the public URL of the bundled placeholder asset.
func (s *Store) PlaceholderURL() string {
	return s.publicBase + s.placeholderPath
}

// LocalPath translates a URL produced by PublicURL back to the file on
// disk, or "" when the URL is not one of ours.
func (s *Store) LocalPath(url string) string {
	prefix := s.publicBase + s.urlPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return ""
	}
	return filepath.Join(s.dir, name)
}
