// Package db provides PostgreSQL bookkeeping for update runs.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Run represents an update run record
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Workdir     string     `json:"workdir"`
	StartKey    int        `json:"start_key"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateRun creates a new update run record and returns its ID
func (db *DB) CreateRun(ctx context.Context, workdir string, startKey int) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO update_runs (workdir, start_key, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		workdir, startKey,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks an update run as completed
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE update_runs SET status = $1, completed_at = NOW() WHERE id = $2`,
		status, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// RecordOutcome stores the outcome of a single story cycle
func (db *DB) RecordOutcome(ctx context.Context, runID uuid.UUID, key int, outcome, detail string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO story_outcomes (run_id, story_key, outcome, detail)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, story_key) DO UPDATE SET outcome = $3, detail = $4, created_at = NOW()`,
		runID, key, outcome, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for story %d: %w", key, err)
	}
	return nil
}

// GetRun retrieves an update run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, workdir, start_key, status, created_at, completed_at
		 FROM update_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Workdir, &run.StartKey, &run.Status, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves recent update runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, workdir, start_key, status, created_at, completed_at
		 FROM update_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Workdir, &run.StartKey, &run.Status, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
