package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"slides-server/internal/auth"
	"slides-server/internal/config"
	"slides-server/internal/deck"
	"slides-server/internal/editing"
	"slides-server/internal/handler"
	"slides-server/internal/imagegen"
	"slides-server/internal/jobs"
	"slides-server/internal/logger"
	"slides-server/internal/middleware"
	"slides-server/internal/outline"
	"slides-server/internal/ws"
)

const cleanupInterval = 10 * time.Minute

func main() {
	// --- Configuration ---
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))
	zap.L().Info("Configuration loaded", zap.String("env", cfg.Env))

	// --- Dependency Injection ---
	aiClient, err := outline.NewAIClient(cfg, log.Named("AIClient"))
	if err != nil {
		zap.L().Fatal("Failed to create AI client", zap.Error(err))
	}
	outlineSvc := outline.NewService(cfg, aiClient, log.Named("OutlineService"))

	store, err := imagegen.NewStore(cfg, log.Named("ImageStore"))
	if err != nil {
		zap.L().Fatal("Failed to prepare image store", zap.Error(err))
	}
	registry := imagegen.NewRegistry(cfg, store, log.Named("ImageRegistry"),
		imagegen.NewDalleProvider(cfg, log.Named("DalleProvider")),
		imagegen.NewStabilityProvider(cfg, log.Named("StabilityProvider")),
	)

	builder, err := deck.NewBuilder(cfg, registry, log.Named("DeckBuilder"))
	if err != nil {
		zap.L().Fatal("Failed to prepare deck builder", zap.Error(err))
	}

	jobManager := jobs.NewManager(cfg, builder, log.Named("JobManager"))

	hub := ws.NewHub(cfg.WSReplayBufferSize, log.Named("Hub"))
	hub.Start()
	jobManager.SetNotifier(hub)

	tokens := auth.NewTokenService(cfg, log.Named("TokenService"))
	editor := editing.NewService(cfg, aiClient, registry, log.Named("EditService"))

	apiHandler := handler.NewHandler(cfg, outlineSvc, editor, registry, jobManager, tokens, hub, log.Named("HTTP"))

	// --- Rate Limiter Middleware Setup ---
	rateLimitStore := rateli.InMemoryStore(&rateli.InMemoryOptions{
		Rate:  cfg.RateLimitWindow,
		Limit: cfg.RateLimitMax,
	})
	rateLimitMiddleware := rateli.RateLimiter(rateLimitStore, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	allowedOrigins := cfg.GetAllowedOrigins()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
		zap.L().Info("CORSAllowedOrigins not set, allowing default", zap.String("origin", "http://localhost:3000"))
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Generated images and the placeholder asset
	router.Static(cfg.StaticURLPath, cfg.StaticDir)

	apiHandler.RegisterRoutes(router, rateLimitMiddleware)

	// Prometheus middleware goes in after route registration
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	// --- Background Maintenance ---
	jobManager.StartCleanup(cleanupInterval)
	hub.StartCleanup(cleanupInterval, cfg.JobRetention)

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	if err := jobManager.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Job manager shutdown incomplete", zap.Error(err))
	}
	hub.Stop()

	zap.L().Info("Server exiting")
}
