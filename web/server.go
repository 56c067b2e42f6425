package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contract-analyzer/config"
	"contract-analyzer/web/handlers"
	"contract-analyzer/web/middleware"
	"contract-analyzer/web/services"
)

type Server struct {
	router  *gin.Engine
	logger  *zap.Logger
	config  *config.Config
	limiter *middleware.ClientRateLimiter
}

// Deps are the constructed services the HTTP layer exposes.
type Deps struct {
	Uploads  *services.UploadService
	Analysis *services.AnalysisService
	Chat     *services.ChatService
	Jobs     *services.JobStore
	Chats    *services.ChatStore
}

func NewServer(deps Deps, logger *zap.Logger, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	limiter := middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
		UploadsPerMinute:  cfg.RateLimitUploadsPerMin,
		MessagesPerMinute: cfg.RateLimitMessagesPerMin,
		BurstSize:         cfg.RateLimitBurstSize,
		CleanupInterval:   10 * time.Minute,
	}, logger)

	server := &Server{
		router:  router,
		logger:  logger,
		config:  cfg,
		limiter: limiter,
	}

	server.setupRoutes(deps)
	return server
}

func (s *Server) setupRoutes(deps Deps) {
	analysisHandler := handlers.NewAnalysisHandler(s.config, deps.Uploads, deps.Analysis, deps.Jobs, s.logger)
	chatHandler := handlers.NewChatHandler(deps.Jobs, deps.Chats, deps.Analysis, deps.Chat, s.logger)

	api := s.router.Group("/api/v1")
	{
		api.GET("/health", analysisHandler.Health)

		api.POST("/upload",
			middleware.RateLimitMiddleware(s.limiter, "upload", s.logger),
			analysisHandler.Upload)
		api.GET("/status/:job_id", analysisHandler.Status)
		api.GET("/result/:job_id", analysisHandler.Result)
		api.GET("/result/:job_id/report", analysisHandler.Report)

		api.POST("/chat/start", chatHandler.Start)
		api.POST("/chat/message",
			middleware.RateLimitMiddleware(s.limiter, "message", s.logger),
			chatHandler.Message)
	}
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.limiter.Stop()
	s.logger.Info("Shutting down web server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
