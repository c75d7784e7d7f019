package storage

import (
	"context"
	"fmt"
	"time"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS aggregates (
		id BIGSERIAL PRIMARY KEY,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		granularity TEXT NOT NULL,
		backup_type TEXT NOT NULL,
		average_duration DOUBLE PRECISION NOT NULL,
		max_duration DOUBLE PRECISION NOT NULL,
		min_duration DOUBLE PRECISION NOT NULL,
		total_duration DOUBLE PRECISION NOT NULL,
		total_count INTEGER NOT NULL,
		success_count INTEGER NOT NULL,
		failure_count INTEGER NOT NULL,
		partial_count INTEGER NOT NULL,
		anomaly_flag BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (period_start, granularity, backup_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aggregates_lookup
		ON aggregates (backup_type, granularity, period_start)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id BIGSERIAL PRIMARY KEY,
		anomaly_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		current_value DOUBLE PRECISION NOT NULL,
		expected_value DOUBLE PRECISION NOT NULL,
		threshold_value DOUBLE PRECISION NOT NULL,
		deviation_percentage DOUBLE PRECISION NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		backup_type TEXT NOT NULL,
		granularity TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_created
		ON anomalies (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id BIGSERIAL PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		records_loaded INTEGER NOT NULL,
		aggregates_saved INTEGER NOT NULL,
		anomalies_found INTEGER NOT NULL,
		duration_millis BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema when missing. Safe to run on every startup.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, stmt := range schema {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
