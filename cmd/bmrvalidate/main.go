/**
 * bmrvalidate Worker - Main Entry Point
 *
 * Go worker that validates pharmaceutical Batch Manufacturing Records
 * against the bundled SOP ruleset, formula checks, and cross-page
 * consistency passes.
 *
 * Architecture:
 * - Redis-backed job queue (raw-Redis BRPOP consumer; the Asynq consumer in
 *   internal/queue is not wired here)
 * - Synchronous, pure validation engine (extractor -> formula -> SOP rules,
 *   then cross-page identifier/pagination/date-bounds reconciliation)
 * - PostgreSQL persistence for run status and document validation summaries
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pharmalabs/bmrvalidate/internal/config"
	"github.com/pharmalabs/bmrvalidate/internal/engine"
	"github.com/pharmalabs/bmrvalidate/internal/logging"
	"github.com/pharmalabs/bmrvalidate/internal/queue"
	"github.com/pharmalabs/bmrvalidate/internal/storage"
)

func main() {
	logger := logging.NewLogger("bmrvalidate")

	if err := godotenv.Load(".env.bmrvalidate"); err != nil {
		logger.Warn("No .env.bmrvalidate file found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("bmrvalidate worker starting")
	logger.Info("Configuration loaded", "redis", cfg.RedisURL, "postgres", cfg.DatabaseURL, "workers", cfg.WorkerConcurrency)

	logger.Info("Connecting to storage (PostgreSQL + Redis cache)")
	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		os.Exit(1)
	}
	defer storageManager.Close()
	logger.Info("Storage manager initialized")

	logger.Info("Initializing validation engine")
	validationEngine := engine.NewWithConcurrency(cfg.WorkerConcurrency)
	logger.Info("Validation engine initialized",
		"sopRules", len(validationEngine.Rules().ListRules()), "pageConcurrency", cfg.WorkerConcurrency)

	logger.Info("Connecting to Redis queue")
	queueConsumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.JobQueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Engine:            validationEngine,
		Storage:           storageManager,
		ValidationTimeout: int64(cfg.ValidationTimeout),
	})
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}
	logger.Info("Queue consumer initialized", "concurrency", cfg.WorkerConcurrency)

	logger.Info("Starting queue consumer")
	if err := queueConsumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	logger.Info("Queue consumer started successfully")

	logger.Info("bmrvalidate worker is READY",
		"queue", cfg.JobQueueName, "workers", cfg.WorkerConcurrency, "validationTimeoutMs", cfg.ValidationTimeout)
	logger.Info("Waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)

	logger.Info("Stopping queue consumer")
	if err := queueConsumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	} else {
		logger.Info("Queue consumer stopped successfully")
	}

	logger.Info("Closing storage manager")
	if err := storageManager.Close(); err != nil {
		logger.Error("Error closing storage manager", "error", err)
	} else {
		logger.Info("Storage manager closed")
	}

	logger.Info("Shutdown complete")
}

// healthCheck verifies database connectivity for liveness probes.
func healthCheck(db *storage.PostgresClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
