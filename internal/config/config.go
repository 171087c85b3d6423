/**
 * Configuration for the bmrvalidate worker
 *
 * Loads configuration from environment variables matching .env.bmrvalidate
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (job queue broker)
	RedisURL string

	// PostgreSQL configuration (validation summary sink)
	DatabaseURL string

	// Worker configuration
	WorkerConcurrency int
	ValidationTimeout int // milliseconds

	// Queue names
	JobQueueName    string
	ResultQueueName string

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://bmr-redis:6379"),
		DatabaseURL:       getEnvOrThrow("DATABASE_URL"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 10),
		ValidationTimeout: getEnvAsIntOrDefault("VALIDATION_TIMEOUT", 30000), // 30 seconds
		JobQueueName:      getEnvOrDefault("JOB_QUEUE_NAME", "bmr:validate"),
		ResultQueueName:   getEnvOrDefault("RESULT_QUEUE_NAME", "bmr:results"),
		NodeEnv:           getEnvOrDefault("NODE_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.ValidationTimeout < 1000 || c.ValidationTimeout > 600000 {
		return fmt.Errorf("VALIDATION_TIMEOUT must be between 1000ms and 600000ms, got %d", c.ValidationTimeout)
	}

	if c.JobQueueName == "" {
		return fmt.Errorf("JOB_QUEUE_NAME is required")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics when it is unset
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
