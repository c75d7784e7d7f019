// Package processing contains the aggregation engine and the period
// comparator: it turns normalized backup records into per-period summary
// statistics and tracks how those summaries change between periods.
package processing

import "time"

// UnclassifiedType is the backup type assigned to records with no
// classification key.
const UnclassifiedType = "unknown"

// Granularity is the aggregation period size.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// AggregatedMetrics holds the summary statistics of one (period, backup type)
// bucket. Period boundaries are UTC dates at midnight.
type AggregatedMetrics struct {
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
	Granularity Granularity `json:"granularity"`
	BackupType  string      `json:"backup_type"`

	AverageDuration float64 `json:"average_duration"`
	MaxDuration     float64 `json:"max_duration"`
	MinDuration     float64 `json:"min_duration"`
	TotalDuration   float64 `json:"total_duration"`

	TotalCount   int `json:"total_count"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	PartialCount int `json:"partial_count"`

	AnomalyFlag bool           `json:"anomaly_flag"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SuccessRate returns the success percentage, 0 when the bucket is empty.
func (m AggregatedMetrics) SuccessRate() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalCount) * 100
}

// FailureRate returns the failure percentage, 0 when the bucket is empty.
func (m AggregatedMetrics) FailureRate() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(m.TotalCount) * 100
}

// DailyMetrics is a day-granularity aggregate with its calendar date.
type DailyMetrics struct {
	AggregatedMetrics
	Date time.Time `json:"date"`
}

// WeeklyMetrics is a week-granularity aggregate. Weeks are Monday-anchored
// ISO weeks.
type WeeklyMetrics struct {
	AggregatedMetrics
	WeekStart  time.Time `json:"week_start"`
	WeekEnd    time.Time `json:"week_end"`
	WeekNumber int       `json:"week_number"`
}

// MonthlyMetrics is a month-granularity aggregate.
type MonthlyMetrics struct {
	AggregatedMetrics
	Year  int `json:"year"`
	Month int `json:"month"`
}
