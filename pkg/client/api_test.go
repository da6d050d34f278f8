package client_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slides-server/pkg/client"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

// captureHandler records the incoming request and replies with a fixed body.
func captureHandler(status int, response string, captured *capturedRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery
		captured.header = r.Header.Clone()
		captured.body = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, response)
	}
}

func TestAPILogin(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(captureHandler(http.StatusOK,
		`{"access_token":"access","refresh_token":"refresh","token_type":"bearer"}`, &captured))
	defer srv.Close()

	api := client.NewAPI(srv.URL + "/")
	pair, err := api.Login(context.Background(), "user@example.com")
	require.NoError(t, err, "Login should succeed against a healthy server")

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/auth/login", captured.path, "A trailing slash in the base URL must not double up")
	assert.Equal(t, "application/json", captured.header.Get("Content-Type"))
	assert.JSONEq(t, `{"email":"user@example.com"}`, string(captured.body))

	assert.Equal(t, "access", pair.AccessToken)
	assert.Equal(t, "refresh", pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
}

func TestAPIRefresh(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(captureHandler(http.StatusOK,
		`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer"}`, &captured))
	defer srv.Close()

	pair, err := client.NewAPI(srv.URL).Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "/auth/refresh", captured.path)
	assert.JSONEq(t, `{"refresh_token":"old-refresh"}`, string(captured.body))
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "new-refresh", pair.RefreshToken)
}

func TestAPIBearerToken(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(captureHandler(http.StatusOK,
		`{"providers":{},"available":[],"default":"dalle"}`, &captured))
	defer srv.Close()

	t.Run("Token is sent as a bearer header", func(t *testing.T) {
		api := client.NewAPI(srv.URL)
		api.SetToken("secret-token")
		_, err := api.Providers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer secret-token", captured.header.Get("Authorization"))
	})

	t.Run("No header without a token", func(t *testing.T) {
		_, err := client.NewAPI(srv.URL).Providers(context.Background())
		require.NoError(t, err)
		assert.Empty(t, captured.header.Get("Authorization"))
	})
}

func TestAPIGenerateOutline(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(captureHandler(http.StatusOK,
		`[{"title":"What is Go","bullets":["Fast","Compiled"],"notes":"Keep it short"}]`, &captured))
	defer srv.Close()

	count := 3
	slides, err := client.NewAPI(srv.URL).GenerateOutline(context.Background(), client.GenerateRequest{
		Prompt:     "golang for beginners",
		SlideCount: &count,
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/generate", captured.path)
	assert.JSONEq(t, `{"prompt":"golang for beginners","slideCount":3}`, string(captured.body),
		"Optional fields stay out of the request body")

	require.Len(t, slides, 1, "The server replies with a bare slide array")
	assert.Equal(t, "What is Go", slides[0].Title)
	assert.Equal(t, []string{"Fast", "Compiled"}, slides[0].Bullets)
	assert.Equal(t, "Keep it short", slides[0].Notes)
}

func TestAPIStartBuild(t *testing.T) {
	slides := []client.Slide{{Title: "One", Bullets: []string{"a"}}}

	t.Run("With a session", func(t *testing.T) {
		var captured capturedRequest
		srv := httptest.NewServer(captureHandler(http.StatusOK,
			`{"jobId":"job-9","status":"pending"}`, &captured))
		defer srv.Close()

		accepted, err := client.NewAPI(srv.URL).StartBuild(context.Background(), slides, "sess-1")
		require.NoError(t, err)

		assert.Equal(t, "/slides/build", captured.path)
		assert.JSONEq(t, `{"slides":[{"title":"One","bullets":["a"]}],"sessionId":"sess-1"}`,
			string(captured.body))
		assert.Equal(t, "job-9", accepted.JobID)
		assert.Equal(t, "pending", accepted.Status)
	})

	t.Run("Without a session", func(t *testing.T) {
		var captured capturedRequest
		srv := httptest.NewServer(captureHandler(http.StatusOK,
			`{"jobId":"job-9","status":"pending"}`, &captured))
		defer srv.Close()

		_, err := client.NewAPI(srv.URL).StartBuild(context.Background(), slides, "")
		require.NoError(t, err)
		assert.NotContains(t, string(captured.body), "sessionId",
			"An empty session must not be sent at all")
	})
}

func TestAPIJobStatus(t *testing.T) {
	var captured capturedRequest
	srv := httptest.NewServer(captureHandler(http.StatusOK,
		`{"jobId":"job-9","status":"failed","progress":40,"done":2,"total":5,"errorMessage":"image backend down"}`,
		&captured))
	defer srv.Close()

	job, err := client.NewAPI(srv.URL).JobStatus(context.Background(), "job-9")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, captured.method)
	assert.Equal(t, "/slides/job/job-9", captured.path)
	assert.Equal(t, "job-9", job.JobID)
	assert.Equal(t, "failed", job.Status)
	assert.Equal(t, 40, job.Progress)
	assert.Equal(t, 2, job.Done)
	assert.Equal(t, 5, job.Total)
	assert.Equal(t, "image backend down", job.ErrorMessage)
}

func TestAPIErrors(t *testing.T) {
	t.Run("JSON error envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"error":"slideCount must be between 1 and 20"}`)
		}))
		defer srv.Close()

		_, err := client.NewAPI(srv.URL).GenerateOutline(context.Background(),
			client.GenerateRequest{Prompt: "x"})

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr, "Non-2xx responses surface as APIError")
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, "slideCount must be between 1 and 20", apiErr.Message)
		assert.Contains(t, apiErr.Error(), "422")
	})

	t.Run("Plain text body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "upstream exploded\n")
		}))
		defer srv.Close()

		_, err := client.NewAPI(srv.URL).Providers(context.Background())

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "upstream exploded", apiErr.Message, "Plain bodies are trimmed into the message")
	})

	t.Run("Retry-After is preserved", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
		}))
		defer srv.Close()

		_, err := client.NewAPI(srv.URL).JobStatus(context.Background(), "job-1")

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "2", apiErr.RetryAfter)
	})
}

func TestAPIDownloadDeck(t *testing.T) {
	deck := []byte("PK\x03\x04 fake deck bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("jobId") != "job-9" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"job not found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.presentationml.presentation")
		w.Write(deck)
	}))
	defer srv.Close()

	t.Run("Streams the deck into the writer", func(t *testing.T) {
		var buf bytes.Buffer
		err := client.NewAPI(srv.URL).DownloadDeck(context.Background(), "job-9", &buf)
		require.NoError(t, err)
		assert.Equal(t, deck, buf.Bytes())
	})

	t.Run("Missing job surfaces the server error", func(t *testing.T) {
		var buf bytes.Buffer
		err := client.NewAPI(srv.URL).DownloadDeck(context.Background(), "unknown", &buf)

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "job not found", apiErr.Message)
		assert.Zero(t, buf.Len(), "Nothing is written on failure")
	})
}
