package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slides-server/internal/auth"
	"slides-server/internal/config"
	"slides-server/internal/deck"
	"slides-server/internal/editing"
	"slides-server/internal/handler"
	"slides-server/internal/imagegen"
	"slides-server/internal/jobs"
	"slides-server/internal/models"
	"slides-server/internal/outline"
	"slides-server/internal/ws"
)

type testServer struct {
	router  *gin.Engine
	cfg     *config.Config
	manager *jobs.Manager
	hub     *ws.Hub
	tokens  *auth.TokenService
	api     *handler.Handler
}

// newTestServer wires the whole keyless stack behind an in-memory router.
// Keyless means the outline generator serves its offline outline and both
// image providers report unavailable.
func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		PublicBaseURL:              "http://localhost:8000",
		StaticDir:                  t.TempDir(),
		StaticURLPath:              "/static",
		StaticImagesSubdir:         "images",
		PlaceholderURLPath:         "/static/placeholder.png",
		OpenRouterBaseURL:          "http://127.0.0.1:1",
		OpenRouterDefaultModel:     "openai/gpt-4o-mini",
		OpenRouterAllowedModels:    []string{"openai/gpt-4o-mini"},
		OpenRouterTimeout:          time.Second,
		AIClientType:               "openai",
		AIMaxAttempts:              1,
		AIBaseRetryDelay:           time.Millisecond,
		DefaultImageProvider:       imagegen.ProviderDalle,
		ImageProviderFallbackOrder: []string{imagegen.ProviderDalle, imagegen.ProviderStability},
		ImageMaxConcurrency:        2,
		ImageRequestsPerSecond:     1000,
		ImageCacheTTL:              time.Minute,
		ImageCacheMaxEntries:       16,
		PPTXTempDir:                filepath.Join(t.TempDir(), "pptx"),
		PPTXImageHTTPTimeout:       time.Second,
		MaxActiveJobs:              4,
		JobRetention:               time.Hour,
		WSReplayBufferSize:         32,
		JWTSecret:                  "test-secret",
		AccessTokenTTL:             time.Minute,
		RefreshTokenTTL:            time.Hour,
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zap.NewNop()
	aiClient, err := outline.NewAIClient(cfg, logger)
	require.NoError(t, err)
	outlineSvc := outline.NewService(cfg, aiClient, logger)

	store, err := imagegen.NewStore(cfg, logger)
	require.NoError(t, err)
	registry := imagegen.NewRegistry(cfg, store, logger,
		imagegen.NewDalleProvider(cfg, logger),
		imagegen.NewStabilityProvider(cfg, logger))

	builder, err := deck.NewBuilder(cfg, registry, logger)
	require.NoError(t, err)
	manager := jobs.NewManager(cfg, builder, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	hub := ws.NewHub(cfg.WSReplayBufferSize, logger)
	hub.Start()
	t.Cleanup(hub.Stop)
	manager.SetNotifier(hub)

	tokens := auth.NewTokenService(cfg, logger)
	editor := editing.NewService(cfg, aiClient, registry, logger)

	h := handler.NewHandler(cfg, outlineSvc, editor, registry, manager, tokens, hub, logger)
	router := gin.New()
	h.RegisterRoutes(router, nil)

	return &testServer{router: router, cfg: cfg, manager: manager, hub: hub, tokens: tokens, api: h}
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func performRaw(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "Response should be a JSON object: %s", w.Body.String())
	return m
}

func validBuildBody(sessionID string) map[string]interface{} {
	return map[string]interface{}{
		"slides": []map[string]interface{}{
			{"title": "One", "bullets": []string{"A", "B"}},
			{"title": "Two", "bullets": []string{"C"}, "notes": "closing remarks"},
		},
		"sessionId": sessionID,
	}
}

func pollJobUntil(t *testing.T, ts *testServer, jobID, want string) map[string]interface{} {
	t.Helper()
	var job map[string]interface{}
	require.Eventually(t, func() bool {
		w := performJSON(t, ts.router, http.MethodGet, "/slides/job/"+jobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		job = decodeMap(t, w)
		return job["status"] == want
	}, 5*time.Second, 20*time.Millisecond, "Job should reach status %q", want)
	return job
}

func TestRootEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := performJSON(t, ts.router, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AI PowerPoint Generator API", decodeMap(t, w)["message"])
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := performJSON(t, ts.router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["uptime"])
}

func TestGenerateOutlineEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Keyless request returns the offline outline as a bare array", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/chat/generate",
			map[string]interface{}{"prompt": "Go in production"})

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		var slides []models.SlidePlan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slides),
			"The response body must be a plain slide array")
		require.Len(t, slides, models.DefaultSlideCount)
		assert.Equal(t, "Slide 1", slides[0].Title)
	})

	t.Run("Requested slide count is honored", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/chat/generate",
			map[string]interface{}{"prompt": "Go in production", "slideCount": 3})

		require.Equal(t, http.StatusOK, w.Code)
		var slides []models.SlidePlan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slides))
		assert.Len(t, slides, 3)
	})

	t.Run("Missing prompt is a 400", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/chat/generate", map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, decodeMap(t, w)["error"])
	})

	t.Run("Slide count out of range is a 422", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/chat/generate",
			map[string]interface{}{"prompt": "Go", "slideCount": 0})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Model outside the allow-list is a 422", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/chat/generate",
			map[string]interface{}{"prompt": "Go", "model": "evil/unknown"})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestGenerateOutlineStrictUpstream(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.StrictUpstream = true
	})

	w := performJSON(t, ts.router, http.MethodPost, "/chat/generate",
		map[string]interface{}{"prompt": "Go in production"})

	assert.Equal(t, http.StatusBadGateway, w.Code,
		"Strict mode must not mask the missing upstream")
}

func TestBuildJobLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	w := performJSON(t, ts.router, http.MethodPost, "/slides/build", validBuildBody("sess-e2e"))
	require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())

	accepted := decodeMap(t, w)
	jobID, _ := accepted["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, string(models.JobStatusPending), accepted["status"],
		"The build response always reports the initial state")

	job := pollJobUntil(t, ts, jobID, string(models.JobStatusCompleted))
	assert.Equal(t, float64(100), job["progress"])
	assert.Contains(t, job["resultUrl"], "/slides/download?jobId="+jobID)
	assert.Equal(t, "sess-e2e", job["sessionId"])

	dl := performJSON(t, ts.router, http.MethodGet, "/slides/download?jobId="+jobID, nil)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		dl.Header().Get("Content-Type"))
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "presentation-"+jobID+".pptx")
	assert.True(t, bytes.HasPrefix(dl.Body.Bytes(), []byte("PK")),
		"The download should be a zip-based package")
}

func TestBuildAcceptsLegacyShapes(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Bare slide array", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build",
			`[{"title":"T","bullets":["B"]}]`)

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		jobID, _ := decodeMap(t, w)["jobId"].(string)
		pollJobUntil(t, ts, jobID, string(models.JobStatusCompleted))
	})

	t.Run("Legacy body field", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build",
			`[{"title":"T","body":"a single line"}]`)

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		jobID, _ := decodeMap(t, w)["jobId"].(string)
		pollJobUntil(t, ts, jobID, string(models.JobStatusCompleted))
	})

	t.Run("Session from query parameter", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build?sessionId=from-query",
			`[{"title":"T","bullets":["B"]}]`)

		require.Equal(t, http.StatusOK, w.Code)
		jobID, _ := decodeMap(t, w)["jobId"].(string)
		job := pollJobUntil(t, ts, jobID, string(models.JobStatusCompleted))
		assert.Equal(t, "from-query", job["sessionId"])
	})
}

func TestBuildValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Empty array", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build", `[]`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Empty slides field", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build", `{"slides":[]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Invalid slide content", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build",
			`[{"title":"","bullets":["B"]}]`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decodeMap(t, w)["error"], "slide 0")
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		w := performRaw(t, ts.router, http.MethodPost, "/slides/build", `{not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobStatusErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Invalid job id", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodGet, "/slides/job/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown job id", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodGet,
			"/slides/job/6f1e2d3c-4b5a-6978-8a9b-0c1d2e3f4a5b", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDownloadErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Invalid job id", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodGet, "/slides/download?jobId=nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown job id", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodGet,
			"/slides/download?jobId=6f1e2d3c-4b5a-6978-8a9b-0c1d2e3f4a5b", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProvidersEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := performJSON(t, ts.router, http.MethodGet, "/slides/providers", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ProvidersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]bool{
		imagegen.ProviderDalle:     false,
		imagegen.ProviderStability: false,
	}, resp.Providers, "Keyless providers must all report unavailable")
	assert.Empty(t, resp.Available)
	assert.Equal(t, imagegen.ProviderDalle, resp.Default)
	assert.Contains(t, w.Body.String(), `"available":[]`,
		"The available list serializes as an empty array")
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("Login issues a bearer pair", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/auth/login",
			map[string]interface{}{"email": "user@example.com"})

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		body := decodeMap(t, w)
		assert.NotEmpty(t, body["access_token"])
		assert.NotEmpty(t, body["refresh_token"])
		assert.Equal(t, "bearer", body["token_type"])
	})

	t.Run("Invalid email is a 400", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/auth/login",
			map[string]interface{}{"email": "not-an-email"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Refresh rotates the pair", func(t *testing.T) {
		login := performJSON(t, ts.router, http.MethodPost, "/auth/login",
			map[string]interface{}{"email": "user@example.com"})
		require.Equal(t, http.StatusOK, login.Code)
		refreshToken, _ := decodeMap(t, login)["refresh_token"].(string)

		w := performJSON(t, ts.router, http.MethodPost, "/auth/refresh",
			map[string]interface{}{"refresh_token": refreshToken})

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		body := decodeMap(t, w)
		assert.NotEmpty(t, body["access_token"])

		claims, err := ts.tokens.VerifyAccess(body["access_token"].(string))
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", claims.Subject)
	})

	t.Run("Access token cannot be used to refresh", func(t *testing.T) {
		login := performJSON(t, ts.router, http.MethodPost, "/auth/login",
			map[string]interface{}{"email": "user@example.com"})
		accessToken, _ := decodeMap(t, login)["access_token"].(string)

		w := performJSON(t, ts.router, http.MethodPost, "/auth/refresh",
			map[string]interface{}{"refresh_token": accessToken})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestEditEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	slide := map[string]interface{}{"title": "Old", "bullets": []string{"A"}}

	t.Run("Single edit", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/slides/edit", map[string]interface{}{
			"slide":       slide,
			"target":      "title",
			"instruction": "Brand new title",
		})

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		var resp models.EditSlideResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Brand new title", resp.Slide.Title)
	})

	t.Run("Unknown target is a 422", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/slides/edit", map[string]interface{}{
			"slide":       slide,
			"target":      "layout",
			"instruction": "x",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Batch edit", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/slides/edit/batch", map[string]interface{}{
			"slides": []interface{}{slide, slide},
			"edits": []map[string]interface{}{
				{"slideIndex": 0, "target": "title", "instruction": "First"},
				{"slideIndex": 1, "target": "title", "instruction": "Second"},
			},
		})

		require.Equal(t, http.StatusOK, w.Code, "Body: %s", w.Body.String())
		var resp models.BatchEditResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Slides, 2)
		assert.Equal(t, "First", resp.Slides[0].Title)
		assert.Equal(t, "Second", resp.Slides[1].Title)
	})

	t.Run("Duplicate batch addresses are a 422", func(t *testing.T) {
		w := performJSON(t, ts.router, http.MethodPost, "/slides/edit/batch", map[string]interface{}{
			"slides": []interface{}{slide},
			"edits": []map[string]interface{}{
				{"slideIndex": 0, "target": "title", "instruction": "First"},
				{"slideIndex": 0, "target": "title", "instruction": "Second"},
			},
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
