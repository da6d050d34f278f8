package imagegen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStoreSavePNG(t *testing.T) {
	cfg := imagegenTestConfig(t)
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	t.Run("Saved file gets a UUID name", func(t *testing.T) {
		name, err := store.SavePNG([]byte("png-bytes"))

		require.NoError(t, err)
		require.True(t, strings.HasSuffix(name, ".png"))
		_, parseErr := uuid.Parse(strings.TrimSuffix(name, ".png"))
		assert.NoError(t, parseErr, "The file name should be a UUID")

		data, readErr := os.ReadFile(filepath.Join(cfg.StaticDir, cfg.StaticImagesSubdir, name))
		require.NoError(t, readErr)
		assert.Equal(t, []byte("png-bytes"), data)
	})

	t.Run("Empty data is rejected", func(t *testing.T) {
		_, err := store.SavePNG(nil)

		assert.ErrorIs(t, err, ErrImageSaveFailed)
	})
}

func TestStoreURLs(t *testing.T) {
	cfg := imagegenTestConfig(t)
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/static/images/abc.png", store.PublicURL("abc.png"))
	assert.Equal(t, "http://localhost:8000/static/placeholder.png", store.PlaceholderURL())
}

func TestStorePlaceholderAsset(t *testing.T) {
	t.Run("Asset is materialized on construction", func(t *testing.T) {
		cfg := imagegenTestConfig(t)
		_, err := NewStore(cfg, zap.NewNop())
		require.NoError(t, err)

		data, readErr := os.ReadFile(filepath.Join(cfg.StaticDir, "placeholder.png"))
		require.NoError(t, readErr, "The placeholder URL must be backed by a real file")
		assert.Equal(t, PlaceholderPNG(512, 512), data)
	})

	t.Run("An existing asset is left alone", func(t *testing.T) {
		cfg := imagegenTestConfig(t)
		custom := []byte("custom-placeholder")
		require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "placeholder.png"), custom, 0o644))

		_, err := NewStore(cfg, zap.NewNop())
		require.NoError(t, err)

		data, readErr := os.ReadFile(filepath.Join(cfg.StaticDir, "placeholder.png"))
		require.NoError(t, readErr)
		assert.Equal(t, custom, data, "A deployed asset must not be overwritten")
	})
}

func TestStoreLocalPath(t *testing.T) {
	cfg := imagegenTestConfig(t)
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)

	t.Run("Own URLs map back to disk", func(t *testing.T) {
		name, err := store.SavePNG([]byte("png"))
		require.NoError(t, err)

		local := store.LocalPath(store.PublicURL(name))

		require.NotEmpty(t, local)
		_, statErr := os.Stat(local)
		assert.NoError(t, statErr, "The resolved path should exist")
	})

	t.Run("Foreign URLs resolve to nothing", func(t *testing.T) {
		assert.Empty(t, store.LocalPath("https://cdn.example.com/images/abc.png"))
	})

	t.Run("Path traversal is refused", func(t *testing.T) {
		assert.Empty(t, store.LocalPath("http://localhost:8000/static/images/../secrets.png"))
		assert.Empty(t, store.LocalPath("http://localhost:8000/static/images/a/b.png"))
	})
}
