// Package handler exposes the HTTP surface of the slides server.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slides-server/internal/auth"
	"slides-server/internal/config"
	"slides-server/internal/editing"
	"slides-server/internal/imagegen"
	"slides-server/internal/jobs"
	"slides-server/internal/outline"
	"slides-server/internal/ws"
)

type Handler struct {
	cfg      *config.Config
	outline  *outline.Service
	editor   *editing.Service
	registry *imagegen.Registry
	jobs     *jobs.Manager
	tokens   *auth.TokenService
	hub      *ws.Hub
	logger   *zap.Logger
}

func NewHandler(
	cfg *config.Config,
	outlineSvc *outline.Service,
	editor *editing.Service,
	registry *imagegen.Registry,
	jobManager *jobs.Manager,
	tokens *auth.TokenService,
	hub *ws.Hub,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		outline:  outlineSvc,
		editor:   editor,
		registry: registry,
		jobs:     jobManager,
		tokens:   tokens,
		hub:      hub,
		logger:   logger,
	}
}

const serverVersion = "0.1.0"

var startTime = time.Now()

// RegisterRoutes wires all endpoints. rateLimiter guards every public POST
// route and may be nil in tests.
func (h *Handler) RegisterRoutes(router *gin.Engine, rateLimiter gin.HandlerFunc) {
	limited := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		if rateLimiter == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{rateLimiter, fn}
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "AI PowerPoint Generator API"})
	})

	chatGroup := router.Group("/chat")
	{
		chatGroup.POST("/generate", limited(h.generateOutline)...)
	}

	slidesGroup := router.Group("/slides")
	{
		slidesGroup.POST("/build", limited(h.buildDeck)...)
		slidesGroup.GET("/job/:jobId", h.jobStatus)
		slidesGroup.GET("/download", h.downloadDeck)
		slidesGroup.GET("/providers", h.listProviders)
		slidesGroup.POST("/edit", limited(h.editSlide)...)
		slidesGroup.POST("/edit/batch", limited(h.batchEdit)...)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", limited(h.login)...)
		authGroup.POST("/refresh", limited(h.refreshTokens)...)
	}

	router.GET("/ws", h.hub.HandleConnection(h.tokens))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": serverVersion,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
}
