/**
 * PostgreSQL Client for the Furigana Overlay Worker
 *
 * Handles cycle history persistence and the optional dictionary table.
 * All tables live in the furigana schema.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Schema creates the tables used by the worker. It is idempotent.
const Schema = `
CREATE SCHEMA IF NOT EXISTS furigana;

CREATE TABLE IF NOT EXISTS furigana.capture_cycles (
	session_id       TEXT        NOT NULL,
	cycle_id         BIGINT      NOT NULL,
	outcome          TEXT        NOT NULL,
	engine           TEXT,
	region_x         INTEGER     NOT NULL,
	region_y         INTEGER     NOT NULL,
	region_width     INTEGER     NOT NULL,
	region_height    INTEGER     NOT NULL,
	annotation_count INTEGER     NOT NULL DEFAULT 0,
	span_count       INTEGER     NOT NULL DEFAULT 0,
	dropped_spans    INTEGER     NOT NULL DEFAULT 0,
	mean_confidence  NUMERIC(5,4),
	duration_ms      BIGINT      NOT NULL DEFAULT 0,
	error_code       TEXT,
	error_message    TEXT,
	annotations      JSONB,
	started_at       TIMESTAMPTZ NOT NULL,
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (session_id, cycle_id)
);

CREATE TABLE IF NOT EXISTS furigana.dictionary_entries (
	id         BIGSERIAL PRIMARY KEY,
	expression TEXT   NOT NULL,
	reading    TEXT   NOT NULL DEFAULT '',
	senses     TEXT[] NOT NULL DEFAULT '{}',
	priority   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS dictionary_entries_expression_idx
	ON furigana.dictionary_entries (expression text_pattern_ops);
CREATE INDEX IF NOT EXISTS dictionary_entries_reading_idx
	ON furigana.dictionary_entries (reading text_pattern_ops);
`

// PostgresClient wraps the connection pool
type PostgresClient struct {
	db *sql.DB
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it to
// [0.0, 1.0] so it fits the NUMERIC(5,4) column.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema applies Schema.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	return p.db.Close()
}
