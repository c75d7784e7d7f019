// Package storage persists aggregation results and detected anomalies in
// PostgreSQL. The analytics core never calls into this package; callers feed
// its query results back into the detector and comparator.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/analyzer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

type PostgresClient struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresClient(connectionURL string, logger *zap.Logger) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute
	config.ConnConfig.ConnectTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool, logger: logger}, nil
}

func (c *PostgresClient) Close() {
	c.pool.Close()
}

func (c *PostgresClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}

// SaveAggregates upserts aggregation buckets keyed by period and backup type,
// so re-running a pipeline over the same input stays idempotent.
func (c *PostgresClient) SaveAggregates(ctx context.Context, metrics []processing.AggregatedMetrics) error {
	if len(metrics) == 0 {
		return nil
	}

	query := `
		INSERT INTO aggregates (
			period_start, period_end, granularity, backup_type,
			average_duration, max_duration, min_duration, total_duration,
			total_count, success_count, failure_count, partial_count, anomaly_flag
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (period_start, granularity, backup_type) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			average_duration = EXCLUDED.average_duration,
			max_duration = EXCLUDED.max_duration,
			min_duration = EXCLUDED.min_duration,
			total_duration = EXCLUDED.total_duration,
			total_count = EXCLUDED.total_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			partial_count = EXCLUDED.partial_count,
			anomaly_flag = EXCLUDED.anomaly_flag
	`

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(query,
			m.PeriodStart, m.PeriodEnd, string(m.Granularity), m.BackupType,
			m.AverageDuration, m.MaxDuration, m.MinDuration, m.TotalDuration,
			m.TotalCount, m.SuccessCount, m.FailureCount, m.PartialCount, m.AnomalyFlag,
		)
	}

	results := c.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range metrics {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save aggregate: %w", err)
		}
	}

	c.logger.Debug("Aggregates saved", zap.Int("count", len(metrics)))
	return nil
}

// GetAggregateHistory returns up to limit persisted aggregates for one
// backup type and granularity, ordered oldest-first as the detector and
// comparator require.
func (c *PostgresClient) GetAggregateHistory(
	ctx context.Context,
	backupType string,
	granularity processing.Granularity,
	limit int,
) ([]processing.AggregatedMetrics, error) {
	query := `
		SELECT period_start, period_end, granularity, backup_type,
		       average_duration, max_duration, min_duration, total_duration,
		       total_count, success_count, failure_count, partial_count, anomaly_flag
		FROM (
			SELECT * FROM aggregates
			WHERE backup_type = $1 AND granularity = $2
			ORDER BY period_start DESC
			LIMIT $3
		) recent
		ORDER BY period_start ASC
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := c.pool.Query(ctx, query, backupType, string(granularity), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var history []processing.AggregatedMetrics
	for rows.Next() {
		var m processing.AggregatedMetrics
		var granularityStr string
		if err := rows.Scan(
			&m.PeriodStart, &m.PeriodEnd, &granularityStr, &m.BackupType,
			&m.AverageDuration, &m.MaxDuration, &m.MinDuration, &m.TotalDuration,
			&m.TotalCount, &m.SuccessCount, &m.FailureCount, &m.PartialCount, &m.AnomalyFlag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		m.Granularity = processing.Granularity(granularityStr)
		history = append(history, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregates: %w", err)
	}
	return history, nil
}

// SaveAnomalies appends detected anomalies.
func (c *PostgresClient) SaveAnomalies(ctx context.Context, anomalies []analyzer.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	query := `
		INSERT INTO anomalies (
			anomaly_type, severity, metric_name,
			current_value, expected_value, threshold_value, deviation_percentage,
			period_start, period_end, backup_type, granularity, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, a := range anomalies {
		metadata, err := json.Marshal(a.Metadata)
		if err != nil {
			metadata = []byte("{}")
		}
		batch.Queue(query,
			string(a.Type), string(a.Severity), a.MetricName,
			a.CurrentValue, a.ExpectedValue, a.ThresholdValue, a.DeviationPercentage,
			a.PeriodStart, a.PeriodEnd, a.BackupType, string(a.Granularity), metadata,
		)
	}

	results := c.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range anomalies {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save anomaly: %w", err)
		}
	}

	c.logger.Debug("Anomalies saved", zap.Int("count", len(anomalies)))
	return nil
}

// GetRecentAnomalies returns the newest anomalies, newest first.
func (c *PostgresClient) GetRecentAnomalies(ctx context.Context, limit int) ([]AnomalyRow, error) {
	query := `
		SELECT id, anomaly_type, severity, metric_name,
		       current_value, expected_value, threshold_value, deviation_percentage,
		       period_start, period_end, backup_type, granularity, metadata, created_at
		FROM anomalies
		ORDER BY created_at DESC
		LIMIT $1
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []AnomalyRow
	for rows.Next() {
		var a AnomalyRow
		if err := rows.Scan(
			&a.ID, &a.AnomalyType, &a.Severity, &a.MetricName,
			&a.CurrentValue, &a.ExpectedValue, &a.ThresholdValue, &a.DeviationPercentage,
			&a.PeriodStart, &a.PeriodEnd, &a.BackupType, &a.Granularity, &a.Metadata, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly row: %w", err)
		}
		anomalies = append(anomalies, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return anomalies, nil
}

// SavePipelineRun records one pipeline execution.
func (c *PostgresClient) SavePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (started_at, records_loaded, aggregates_saved, anomalies_found, duration_millis)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.pool.QueryRow(ctx, query,
		run.StartedAt, run.RecordsLoaded, run.AggregatesSaved, run.AnomaliesFound, run.DurationMillis,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pipeline run: %w", err)
	}
	return nil
}

// GetRecentPipelineRuns returns the newest pipeline runs, newest first.
func (c *PostgresClient) GetRecentPipelineRuns(ctx context.Context, limit int) ([]PipelineRun, error) {
	query := `
		SELECT id, started_at, records_loaded, aggregates_saved, anomalies_found, duration_millis, created_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := c.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.RecordsLoaded, &r.AggregatesSaved,
			&r.AnomaliesFound, &r.DurationMillis, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}
	return runs, nil
}
