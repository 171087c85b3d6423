/**
 * PostgreSQL client for the bmrvalidate worker
 *
 * Handles persistence of validation runs and their document summaries.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// RunUpdate represents a validation run status update
type RunUpdate struct {
	RunID          string
	DocumentID     string
	Status         string
	TotalPages     int
	PagesValidated int
	TotalAlerts    int
	ErrorCode      string
	ErrorMessage   string
	Metadata       map[string]interface{}
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateRunStatus upserts a validation run's status in the database
func (p *PostgresClient) UpdateRunStatus(ctx context.Context, update *RunUpdate) error {
	if update.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO bmrvalidate.validation_runs (
			id, document_id, status, total_pages, pages_validated, total_alerts,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE($2, 'unknown'), $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), COALESCE($9::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_pages = GREATEST(EXCLUDED.total_pages, bmrvalidate.validation_runs.total_pages),
			pages_validated = GREATEST(EXCLUDED.pages_validated, bmrvalidate.validation_runs.pages_validated),
			total_alerts = EXCLUDED.total_alerts,
			error_code = COALESCE(NULLIF(EXCLUDED.error_code, ''), bmrvalidate.validation_runs.error_code),
			error_message = COALESCE(NULLIF(EXCLUDED.error_message, ''), bmrvalidate.validation_runs.error_message),
			metadata = COALESCE(EXCLUDED.metadata, bmrvalidate.validation_runs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.RunID,
		update.DocumentID,
		update.Status,
		update.TotalPages,
		update.PagesValidated,
		update.TotalAlerts,
		update.ErrorCode,
		update.ErrorMessage,
		metadataJSON,
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("run not found: %s", update.RunID)
	}
	if err != nil {
		return fmt.Errorf("failed to update run status (run=%s, status=%s): %w", update.RunID, update.Status, err)
	}

	return nil
}

// StoreSummary persists a document validation summary as JSONB, keyed by run ID.
func (p *PostgresClient) StoreSummary(ctx context.Context, runID string, summary interface{}) error {
	if runID == "" {
		return fmt.Errorf("run ID is required")
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal validation summary: %w", err)
	}

	query := `
		INSERT INTO bmrvalidate.validation_summaries (run_id, summary, created_at)
		VALUES ($1::uuid, $2::jsonb, NOW())
		ON CONFLICT (run_id) DO UPDATE SET summary = EXCLUDED.summary
	`

	if _, err := p.db.ExecContext(ctx, query, runID, summaryJSON); err != nil {
		return fmt.Errorf("failed to store validation summary: %w", err)
	}

	return nil
}

// GetSummary retrieves a stored document validation summary by run ID.
func (p *PostgresClient) GetSummary(ctx context.Context, runID string) (map[string]interface{}, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	query := `SELECT summary FROM bmrvalidate.validation_summaries WHERE run_id = $1::uuid`

	var summaryJSON []byte
	err := p.db.QueryRowContext(ctx, query, runID).Scan(&summaryJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("validation summary not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation summary: %w", err)
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(summaryJSON, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal validation summary: %w", err)
	}

	return summary, nil
}

// GetRunByID retrieves a validation run by ID
func (p *PostgresClient) GetRunByID(ctx context.Context, runID string) (map[string]interface{}, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	query := `
		SELECT
			id, document_id, status, total_pages, pages_validated, total_alerts,
			error_code, error_message, metadata, created_at, updated_at
		FROM bmrvalidate.validation_runs
		WHERE id = $1::uuid
	`

	var (
		id, documentID, status             string
		totalPages, pagesValidated         int
		totalAlerts                        int
		errorCode, errorMessage            sql.NullString
		metadataJSON                       []byte
		createdAt, updatedAt               time.Time
	)

	err := p.db.QueryRowContext(ctx, query, runID).Scan(
		&id, &documentID, &status, &totalPages, &pagesValidated, &totalAlerts,
		&errorCode, &errorMessage, &metadataJSON, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	result := map[string]interface{}{
		"id":             id,
		"documentId":     documentID,
		"status":         status,
		"totalPages":     totalPages,
		"pagesValidated": pagesValidated,
		"totalAlerts":    totalAlerts,
		"createdAt":      createdAt,
		"updatedAt":      updatedAt,
		"metadata":       metadata,
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
