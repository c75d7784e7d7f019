package storage

import (
	"encoding/json"
	"time"
)

// AnomalyRow is a persisted anomaly.
type AnomalyRow struct {
	ID                  int64           `json:"id"`
	AnomalyType         string          `json:"anomaly_type"`
	Severity            string          `json:"severity"`
	MetricName          string          `json:"metric_name"`
	CurrentValue        float64         `json:"current_value"`
	ExpectedValue       float64         `json:"expected_value"`
	ThresholdValue      float64         `json:"threshold_value"`
	DeviationPercentage float64         `json:"deviation_percentage"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	BackupType          string          `json:"backup_type"`
	Granularity         string          `json:"granularity"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// PipelineRun records one processing pass over an input batch.
type PipelineRun struct {
	ID              int64     `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	RecordsLoaded   int       `json:"records_loaded"`
	AggregatesSaved int       `json:"aggregates_saved"`
	AnomaliesFound  int       `json:"anomalies_found"`
	DurationMillis  int64     `json:"duration_millis"`
	CreatedAt       time.Time `json:"created_at"`
}
