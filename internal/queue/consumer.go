/**
 * Queue Consumer for the bmrvalidate worker
 *
 * Consumes validation job envelopes from a Redis-backed queue.
 * Uses Asynq for queue management (its own task wire format, with retry
 * and backoff scheduling).
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pharmalabs/bmrvalidate/internal/engine"
	"github.com/pharmalabs/bmrvalidate/internal/errors"
	"github.com/pharmalabs/bmrvalidate/internal/logging"
	"github.com/pharmalabs/bmrvalidate/internal/storage"
)

// TaskTypeValidateDocument is the Asynq task type for a document validation job.
const TaskTypeValidateDocument = "validate-document"

// JobEnvelope represents the structure of a validation job's payload.
type JobEnvelope struct {
	RunID      string             `json:"runId"`
	DocumentID string             `json:"documentId"`
	Pages      []engine.PageInput `json:"pages"`
}

// Consumer handles job consumption from the Redis-backed queue
type Consumer struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	engine  *engine.Engine
	storage *storage.StorageManager
	config  *ConsumerConfig
	logger  *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Engine            *engine.Engine
	Storage           *storage.StorageManager
	ValidationTimeout int64 // Validation timeout in milliseconds (default: 30000 = 30 seconds)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("Engine is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("Storage is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)
	logger := logging.NewLogger("queue.Consumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:  client,
		server:  server,
		mux:     mux,
		engine:  cfg.Engine,
		storage: cfg.Storage,
		config:  cfg,
		logger:  logger,
	}

	mux.HandleFunc(TaskTypeValidateDocument, consumer.handleValidateDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("Queue consumer error", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleValidateDocument processes a document validation job
func (c *Consumer) handleValidateDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job JobEnvelope
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return errors.NewEnvelopeDecodeFailedError("", err)
	}

	c.logger.Info("Validating document", "runId", job.RunID, "documentId", job.DocumentID, "pages", len(job.Pages))

	if err := c.storage.RecordRun(ctx, &storage.RunUpdate{
		RunID:      job.RunID,
		DocumentID: job.DocumentID,
		Status:     "processing",
		TotalPages: len(job.Pages),
	}); err != nil {
		c.logger.Warn("Failed to record processing status", "runId", job.RunID, "error", err)
	}

	timeout := time.Duration(30000) * time.Millisecond
	if c.config.ValidationTimeout > 0 {
		timeout = time.Duration(c.config.ValidationTimeout) * time.Millisecond
	}

	validateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := c.runValidation(validateCtx, job)
	duration := time.Since(startTime)

	if err != nil {
		if validateCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn("Validation timed out", "runId", job.RunID, "duration", duration, "timeout", timeout)
			timeoutErr := errors.NewValidationTimeoutError(job.RunID, timeout, err)

			if updateErr := c.storage.RecordRun(ctx, &storage.RunUpdate{
				RunID:        job.RunID,
				DocumentID:   job.DocumentID,
				Status:       "failed",
				ErrorCode:    string(timeoutErr.Code),
				ErrorMessage: timeoutErr.Message,
				Metadata:     timeoutErr.ToMap(),
			}); updateErr != nil {
				c.logger.Warn("Failed to record failed status", "runId", job.RunID, "error", updateErr)
			}

			return fmt.Errorf("validation timeout: %w", timeoutErr)
		}

		c.logger.Error("Validation failed", "runId", job.RunID, "duration", duration, "error", err)

		if updateErr := c.storage.RecordRun(ctx, &storage.RunUpdate{
			RunID:        job.RunID,
			DocumentID:   job.DocumentID,
			Status:       "failed",
			ErrorMessage: err.Error(),
		}); updateErr != nil {
			c.logger.Warn("Failed to record failed status", "runId", job.RunID, "error", updateErr)
		}

		return fmt.Errorf("document validation failed: %w", err)
	}

	c.logger.Info("Validation completed", "runId", job.RunID, "duration", duration,
		"alerts", summary.TotalAlerts, "pagesValidated", summary.PagesValidated)

	if err := c.storage.PersistSummary(ctx, job.RunID, summary); err != nil {
		c.logger.Warn("Failed to persist summary", "runId", job.RunID, "error", err)
	}

	if err := c.storage.RecordRun(ctx, &storage.RunUpdate{
		RunID:          job.RunID,
		DocumentID:     job.DocumentID,
		Status:         "completed",
		TotalPages:     summary.TotalPages,
		PagesValidated: summary.PagesValidated,
		TotalAlerts:    summary.TotalAlerts,
	}); err != nil {
		c.logger.Warn("Failed to record completed status", "runId", job.RunID, "error", err)
	}

	return nil
}

func (c *Consumer) runValidation(ctx context.Context, job JobEnvelope) (engine.DocumentValidationSummary, error) {
	done := make(chan engine.DocumentValidationSummary, 1)
	go func() {
		results := c.engine.ValidatePages(job.Pages)
		done <- c.engine.ValidateDocument(job.DocumentID, results)
	}()

	select {
	case summary := <-done:
		return summary, nil
	case <-ctx.Done():
		return engine.DocumentValidationSummary{}, ctx.Err()
	}
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"redisURL":    c.config.RedisURL,
	}
}
