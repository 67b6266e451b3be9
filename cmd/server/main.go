package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jalalidin/knowledgevault/internal/api"
	"github.com/Jalalidin/knowledgevault/internal/config"
	"github.com/Jalalidin/knowledgevault/internal/core"
	"github.com/Jalalidin/knowledgevault/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerateTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	ingestService, err := core.NewIngestService(dbStore, llmService, cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ingest service", zap.Error(err))
	}
	chatService := core.NewChatService(dbStore, llmService, logger)

	apiHandler := api.NewAPIHandler(dbStore, ingestService, chatService, llmService, []byte(cfg.JWTSecret), cfg.IsDevelopment(), logger)
	router := api.NewRouter(apiHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // generation calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("agents_available", llmService.Available()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
