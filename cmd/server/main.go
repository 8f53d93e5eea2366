package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/garnizi/payslip-analyzer-api/internal/analyzer"
	"github.com/garnizi/payslip-analyzer-api/internal/config"
	"github.com/garnizi/payslip-analyzer-api/internal/db"
	"github.com/garnizi/payslip-analyzer-api/internal/repository"
	"github.com/garnizi/payslip-analyzer-api/internal/router"
	"github.com/garnizi/payslip-analyzer-api/internal/services"
	"github.com/garnizi/payslip-analyzer-api/internal/storage"
	"github.com/garnizi/payslip-analyzer-api/internal/utils"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Snapshot repository
	var repo repository.SnapshotRepository
	switch cfg.SnapshotDriver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer client.Close()
		repo = repository.NewRedisRepository(client)
	default:
		database, err := db.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer database.Close()

		if err := db.RunMigrations(cfg.SQLitePath); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		repo = repository.NewSQLiteRepository(database)
	}

	// Image payload store
	var store storage.Storage
	if cfg.ImageStore == "s3" {
		store, err = storage.NewS3Storage(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", "error", err)
		}
	} else {
		store = storage.NewMemoryStorage()
	}

	// Model gateway and conversation service
	llm := analyzer.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	convService := services.NewConversationService(repo, store, llm, logger)
	convService.Restore(context.Background())

	// Setup HTTP router
	handler := router.NewRouter(convService, logger, cfg.MaxFileSize)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
