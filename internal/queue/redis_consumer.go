/**
 * Direct Redis Queue Consumer for the bmrvalidate worker
 *
 * Uses simple Redis LIST operations (BRPOP) instead of Asynq, for
 * deployments that publish job envelopes directly rather than through
 * the Asynq wire format.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pharmalabs/bmrvalidate/internal/engine"
	"github.com/pharmalabs/bmrvalidate/internal/errors"
	"github.com/pharmalabs/bmrvalidate/internal/logging"
	"github.com/pharmalabs/bmrvalidate/internal/storage"
	"github.com/redis/go-redis/v9"
)

// RedisJob represents a job envelope as it sits on the Redis list.
type RedisJob struct {
	ID         string      `json:"id"`
	Payload    JobEnvelope `json:"payload"`
	CreatedAt  time.Time   `json:"createdAt"`
	Attempts   int         `json:"attempts"`
	MaxRetries int         `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client  *redis.Client
	engine  *engine.Engine
	storage *storage.StorageManager
	config  *RedisConsumerConfig
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Engine            *engine.Engine
	Storage           *storage.StorageManager
	ValidationTimeout int64 // Validation timeout in milliseconds (default: 30000 = 30 seconds)
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "bmr:validate"
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("Engine is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("Storage is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:  client,
		engine:  cfg.Engine,
		storage: cfg.Storage,
		config:  cfg,
		logger:  logging.NewLogger("queue.RedisConsumer"),
		ctx:     consumerCtx,
		cancel:  cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	c.logger.Info("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "workerId", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "workerId", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err.Error() != "no jobs available" {
					c.logger.Warn("Worker error", "workerId", id, "error", err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no jobs available")
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJob
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return errors.NewEnvelopeDecodeFailedError(jobID, err)
	}

	c.updateJobStatus(job.Payload.RunID, "processing", nil)
	c.logger.Info("Validating run", "runId", job.Payload.RunID, "documentId", job.Payload.DocumentID)

	summary, err := c.runJob(&job)
	if err != nil {
		c.logger.Warn("Run failed", "runId", job.Payload.RunID, "error", err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updatedData, _ := json.Marshal(job)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:data", c.config.QueueName), job.ID, updatedData)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			c.logger.Info("Run re-queued for retry", "runId", job.Payload.RunID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
		} else {
			c.updateJobStatus(job.Payload.RunID, "failed", map[string]interface{}{
				"error":    err.Error(),
				"attempts": job.Attempts,
			})
		}
	} else {
		c.updateJobStatus(job.Payload.RunID, "completed", summary)
		c.logger.Info("Run completed successfully", "runId", job.Payload.RunID)
	}

	return nil
}

// runJob performs the actual document validation
func (c *RedisConsumer) runJob(job *RedisJob) (*engine.DocumentValidationSummary, error) {
	startTime := time.Now()

	timeout := time.Duration(30000) * time.Millisecond
	if c.config.ValidationTimeout > 0 {
		timeout = time.Duration(c.config.ValidationTimeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan engine.DocumentValidationSummary, 1)
	go func() {
		results := c.engine.ValidatePages(job.Payload.Pages)
		done <- c.engine.ValidateDocument(job.Payload.DocumentID, results)
	}()

	select {
	case summary := <-done:
		c.logger.Info("Validation completed", "runId", job.Payload.RunID, "duration", time.Since(startTime))
		return &summary, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			timeoutErr := errors.NewValidationTimeoutError(job.Payload.RunID, timeout, ctx.Err())
			return nil, fmt.Errorf("validation timeout: %w", timeoutErr)
		}
		return nil, ctx.Err()
	}
}

// updateJobStatus updates the status of a job in both Redis AND PostgreSQL
func (c *RedisConsumer) updateJobStatus(runID string, status string, result interface{}) {
	if status == "processing" {
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
	} else if status == "completed" {
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:completed", c.config.QueueName), runID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:results", c.config.QueueName), runID, resultData)
		}
	} else if status == "failed" {
		c.client.SRem(c.ctx, fmt.Sprintf("%s:processing", c.config.QueueName), runID)
		c.client.SAdd(c.ctx, fmt.Sprintf("%s:failed", c.config.QueueName), runID)
		if result != nil {
			errorData, _ := json.Marshal(result)
			c.client.HSet(c.ctx, fmt.Sprintf("%s:errors", c.config.QueueName), runID, errorData)
		}
	}

	if status == "completed" {
		if summary, ok := result.(*engine.DocumentValidationSummary); ok {
			if err := c.storage.RecordRun(c.ctx, &storage.RunUpdate{
				RunID:          runID,
				Status:         status,
				TotalPages:     summary.TotalPages,
				PagesValidated: summary.PagesValidated,
				TotalAlerts:    summary.TotalAlerts,
			}); err != nil {
				c.logger.Error("Failed to update run status", "runId", runID, "error", err)
			} else if err := c.storage.PersistSummary(c.ctx, runID, summary); err != nil {
				c.logger.Error("Failed to persist summary", "runId", runID, "error", err)
			}
		}
	} else if status == "failed" {
		errorMsg := "unknown error"
		if resultMap, ok := result.(map[string]interface{}); ok {
			if errStr, ok := resultMap["error"].(string); ok {
				errorMsg = errStr
			}
		}
		if err := c.storage.RecordRun(c.ctx, &storage.RunUpdate{
			RunID:        runID,
			Status:       status,
			ErrorMessage: errorMsg,
		}); err != nil {
			c.logger.Warn("Failed to update run status for failed run", "runId", runID, "error", err)
		}
	} else if status == "processing" {
		if err := c.storage.RecordRun(c.ctx, &storage.RunUpdate{RunID: runID, Status: status}); err != nil {
			c.logger.Warn("Failed to update run status to processing", "runId", runID, "error", err)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("run:%s", status),
		"runId":     runID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, fmt.Sprintf("%s:processing", c.config.QueueName)).Result()
	completed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:completed", c.config.QueueName)).Result()
	failed, _ := c.client.SCard(ctx, fmt.Sprintf("%s:failed", c.config.QueueName)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
