package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"contract-analyzer/config"
	"contract-analyzer/llmclient"
	"contract-analyzer/pipeline"
	"contract-analyzer/web"
	"contract-analyzer/web/services"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	llm, err := llmclient.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	runner, err := pipeline.NewRunner(cfg, llm, logger)
	if err != nil {
		logger.Fatal("Failed to initialize analysis pipeline", zap.Error(err))
	}

	jobs := services.NewJobStore()
	chats := services.NewChatStore()
	cache, err := services.NewContextCache(cfg.ChatContextCacheSize)
	if err != nil {
		logger.Fatal("Failed to initialize chat context cache", zap.Error(err))
	}

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	analysisService := services.NewAnalysisService(ctx, cfg, runner, jobs, chats, cache, logger)
	chatService := services.NewChatService(llm, runner.Grounder(), chats, logger)
	uploadService := services.NewUploadService(cfg, logger)

	cleanupService := services.NewCleanupService(cfg, jobs, chats, cache, logger)
	go cleanupService.Start(ctx)

	webServer := web.NewServer(web.Deps{
		Uploads:  uploadService,
		Analysis: analysisService,
		Chat:     chatService,
		Jobs:     jobs,
		Chats:    chats,
	}, logger, cfg)

	addr := ":" + cfg.WebPort
	logger.Info("Starting contract analyzer web server",
		zap.String("address", addr),
		zap.String("llm_mode", cfg.LLMMode),
		zap.String("model", cfg.ModelName()))
	if err := webServer.Start(ctx, addr); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
