package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/askcorpus/internal/api"
	"github.com/liliang-cn/askcorpus/internal/config"
	"github.com/liliang-cn/askcorpus/internal/index"
	"github.com/liliang-cn/askcorpus/internal/provider/openai"
	"github.com/liliang-cn/askcorpus/internal/repository"
	"github.com/liliang-cn/askcorpus/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize session database
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	sessions := repository.NewSessionStore(db)

	// Load the persisted index if present; otherwise serve with an empty one
	// and every retrieval decision resolves to skip.
	handle := index.NewHandle(index.Empty())
	if _, err := os.Stat(cfg.Index.Path); err == nil {
		ix, err := index.Load(cfg.Index.Path)
		if err != nil {
			logger.Fatal("Failed to load index", zap.String("path", cfg.Index.Path), zap.Error(err))
		}
		handle.Swap(ix)
		logger.Info("Index loaded",
			zap.String("path", cfg.Index.Path),
			zap.Int("chunks", ix.Size()),
			zap.Int("dimension", ix.Dimension()),
			zap.String("model", ix.Model()),
		)
	} else {
		logger.Warn("No persisted index found, serving without retrieval",
			zap.String("path", cfg.Index.Path),
		)
	}

	// Initialize capability providers
	providerCfg := openai.Config{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		CompletionModel: cfg.LLM.CompletionModel,
		Timeout:         cfg.LLM.Timeout,
	}
	embedder := openai.NewEmbedder(providerCfg)
	generator := openai.NewGenerator(providerCfg)

	// Initialize the retrieval agent
	agent := service.NewAgentService(
		sessions,
		handle,
		embedder,
		generator,
		service.NewHeuristicPolicy(),
		cfg.Index.TopK,
		cfg.RetryPolicy(),
		logger,
	)

	// Setup router
	router := api.SetupRouter(agent, handle, logger, api.RouterConfig{
		APIKeys:           cfg.Auth.APIKeys,
		AllowOrigins:      []string{"*"},
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting askcorpus server",
			zap.String("address", cfg.Address()),
			zap.String("completion_model", cfg.LLM.CompletionModel),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
