/**
 * Storage Manager for the bmrvalidate worker
 *
 * Coordinates storage operations across PostgreSQL (durable run/summary
 * records) and Redis (a short-lived cache of recent summaries for fast
 * status polling). PostgreSQL is always the source of truth; the cache is
 * best-effort and never blocks a write.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryCacheTTL = 10 * time.Minute

// StorageManager coordinates PostgreSQL and Redis operations
type StorageManager struct {
	postgres *PostgresClient
	cache    *redis.Client
}

// NewStorageManager creates a new storage manager
func NewStorageManager(postgresURL string, redisURL string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		postgres.Close()
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	cache := redis.NewClient(opt)

	return &StorageManager{
		postgres: postgres,
		cache:    cache,
	}, nil
}

// RecordRun upserts a validation run's status in PostgreSQL.
func (sm *StorageManager) RecordRun(ctx context.Context, update *RunUpdate) error {
	return sm.postgres.UpdateRunStatus(ctx, update)
}

// PersistSummary writes a document validation summary to PostgreSQL and
// best-effort refreshes the Redis cache entry used for fast status polling.
func (sm *StorageManager) PersistSummary(ctx context.Context, runID string, summary interface{}) error {
	if err := sm.postgres.StoreSummary(ctx, runID, summary); err != nil {
		return err
	}

	if encoded, err := json.Marshal(summary); err == nil {
		sm.cache.Set(ctx, cacheKey(runID), encoded, summaryCacheTTL)
	}

	return nil
}

// GetSummary retrieves a document validation summary, preferring the Redis
// cache and falling back to PostgreSQL on a miss.
func (sm *StorageManager) GetSummary(ctx context.Context, runID string) (map[string]interface{}, error) {
	if cached, err := sm.cache.Get(ctx, cacheKey(runID)).Result(); err == nil {
		var summary map[string]interface{}
		if jsonErr := json.Unmarshal([]byte(cached), &summary); jsonErr == nil {
			return summary, nil
		}
	}

	summary, err := sm.postgres.GetSummary(ctx, runID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(summary); err == nil {
		sm.cache.Set(ctx, cacheKey(runID), encoded, summaryCacheTTL)
	}

	return summary, nil
}

// GetRunByID retrieves run metadata by ID
func (sm *StorageManager) GetRunByID(ctx context.Context, runID string) (map[string]interface{}, error) {
	return sm.postgres.GetRunByID(ctx, runID)
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pgStats := sm.postgres.GetStats()

	cacheInfo := "unavailable"
	if err := sm.cache.Ping(ctx).Err(); err == nil {
		cacheInfo = "connected"
	}

	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
		"cache": cacheInfo,
	}, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, cacheErr error

	if sm.postgres != nil {
		pgErr = sm.postgres.Close()
	}
	if sm.cache != nil {
		cacheErr = sm.cache.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}
	if cacheErr != nil {
		return fmt.Errorf("failed to close Redis cache: %w", cacheErr)
	}

	return nil
}

func cacheKey(runID string) string {
	return fmt.Sprintf("bmrvalidate:summary:%s", runID)
}
