// Package analyzer flags statistically unusual aggregation periods by
// evaluating each period against a trailing window of same-kind history.
package analyzer

import (
	"time"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

// AnomalyType identifies which rule family flagged the period.
type AnomalyType string

const (
	AnomalyDurationHigh    AnomalyType = "duration_high"
	AnomalyDurationLow     AnomalyType = "duration_low"
	AnomalyCountHigh       AnomalyType = "count_high"
	AnomalyCountLow        AnomalyType = "count_low"
	AnomalyFailureRateHigh AnomalyType = "failure_rate_high"
	AnomalySuccessRateLow  AnomalyType = "success_rate_low"
)

// Severity is an ordered anomaly grade.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Anomaly describes one triggered check.
//
// Sign convention: high-variant anomalies carry a positive
// DeviationPercentage; low variants (duration_low, count_low,
// success_rate_low) carry the negated magnitude.
type Anomaly struct {
	Type                AnomalyType `json:"type"`
	Severity            Severity    `json:"severity"`
	MetricName          string      `json:"metric_name"`
	CurrentValue        float64     `json:"current_value"`
	ExpectedValue       float64     `json:"expected_value"`
	ThresholdValue      float64     `json:"threshold_value"`
	DeviationPercentage float64     `json:"deviation_percentage"`

	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	BackupType  string                 `json:"backup_type"`
	Granularity processing.Granularity `json:"granularity"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsCritical reports whether the anomaly is graded critical.
func (a Anomaly) IsCritical() bool {
	return a.Severity == SeverityCritical
}

// DetectionResult is the outcome of evaluating one aggregate against its
// history. Insufficient history is reported as data (HasAnomaly false,
// SamplesUsed below the minimum), never as an error.
type DetectionResult struct {
	HasAnomaly        bool                         `json:"has_anomaly"`
	Anomalies         []Anomaly                    `json:"anomalies,omitempty"`
	Metrics           processing.AggregatedMetrics `json:"metrics"`
	HistoricalAverage *float64                     `json:"historical_average,omitempty"`
	SamplesUsed       int                          `json:"samples_used"`
}

// CriticalAnomalies filters the result down to critical entries.
func (r DetectionResult) CriticalAnomalies() []Anomaly {
	var critical []Anomaly
	for _, a := range r.Anomalies {
		if a.IsCritical() {
			critical = append(critical, a)
		}
	}
	return critical
}
