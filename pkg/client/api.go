package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is a thin REST client for the slides server.
type API struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewAPI builds a client for the given server base URL, for example
// "http://localhost:8000".
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 180 * time.Second},
	}
}

// SetToken attaches a bearer token to subsequent requests.
func (a *API) SetToken(token string) {
	a.token = token
}

// Login issues a token pair for an email identity.
func (a *API) Login(ctx context.Context, email string) (TokenPair, error) {
	var tokens TokenPair
	err := a.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email}, &tokens)
	return tokens, err
}

// Refresh exchanges a refresh token for a new pair.
func (a *API) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var tokens TokenPair
	err := a.doJSON(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, &tokens)
	return tokens, err
}

// GenerateOutline requests a slide outline for a prompt.
func (a *API) GenerateOutline(ctx context.Context, req GenerateRequest) ([]Slide, error) {
	var slides []Slide
	err := a.doJSON(ctx, http.MethodPost, "/chat/generate", req, &slides)
	return slides, err
}

// StartBuild queues a deck build and returns the job acknowledgement.
func (a *API) StartBuild(ctx context.Context, slides []Slide, sessionID string) (BuildAccepted, error) {
	body := map[string]interface{}{"slides": slides}
	if sessionID != "" {
		body["sessionId"] = sessionID
	}
	var accepted BuildAccepted
	err := a.doJSON(ctx, http.MethodPost, "/slides/build", body, &accepted)
	return accepted, err
}

// JobStatus polls one job.
func (a *API) JobStatus(ctx context.Context, jobID string) (Job, error) {
	var job Job
	err := a.doJSON(ctx, http.MethodGet, "/slides/job/"+url.PathEscape(jobID), nil, &job)
	return job, err
}

// Providers lists the server's image backends.
func (a *API) Providers(ctx context.Context) (ProviderList, error) {
	var list ProviderList
	err := a.doJSON(ctx, http.MethodGet, "/slides/providers", nil, &list)
	return list, err
}

// DownloadDeck streams the finished PPTX into dst.
func (a *API) DownloadDeck(ctx context.Context, jobID string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/slides/download?jobId="+url.QueryEscape(jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to stream deck: %w", err)
	}
	return nil
}

func (a *API) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (a *API) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		apiErr.Message = envelope.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
