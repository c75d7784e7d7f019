package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

func agg(day int, backupType string, avgDuration float64, total, success, failure int) processing.AggregatedMetrics {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
	return processing.AggregatedMetrics{
		PeriodStart:     date,
		PeriodEnd:       date,
		Granularity:     processing.GranularityDay,
		BackupType:      backupType,
		AverageDuration: avgDuration,
		MaxDuration:     avgDuration,
		MinDuration:     avgDuration,
		TotalDuration:   avgDuration * float64(total),
		TotalCount:      total,
		SuccessCount:    success,
		FailureCount:    failure,
	}
}

func steadyHistory(days int, backupType string, avgDuration float64) []processing.AggregatedMetrics {
	history := make([]processing.AggregatedMetrics, 0, days)
	for i := 0; i < days; i++ {
		history = append(history, agg(i, backupType, avgDuration, 10, 10, 0))
	}
	return history
}

func mustDetector(t *testing.T, config Config) *Detector {
	t.Helper()
	detector, err := NewDetector(config, nil)
	require.NoError(t, err)
	return detector
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero multiplier", func(c *Config) { c.ThresholdMultiplier = 0 }, "threshold_multiplier"},
		{"negative multiplier", func(c *Config) { c.ThresholdMultiplier = -1 }, "threshold_multiplier"},
		{"zero min samples", func(c *Config) { c.MinSamples = 0 }, "min_samples"},
		{"zero lookback", func(c *Config) { c.LookbackPeriods = 0 }, "lookback_periods"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			_, err := NewDetector(config, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := NewDetector(DefaultConfig(), nil)
	assert.NoError(t, err)
}

func TestDetectAbstainsBelowMinSamples(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(4, "database", 1800)

	// 5000s would be a blatant outlier, but 4 samples is below the minimum
	result := detector.Detect(agg(4, "database", 5000, 10, 10, 0), history)

	assert.False(t, result.HasAnomaly)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, 4, result.SamplesUsed)
	assert.Nil(t, result.HistoricalAverage)
}

func TestDetectDurationHigh(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	current := agg(7, "database", 5000, 10, 10, 0)
	current.MaxDuration = 2000 // keep the max_duration check quiet
	result := detector.Detect(current, history)

	assert.True(t, result.HasAnomaly)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, 7, result.SamplesUsed)
	require.NotNil(t, result.HistoricalAverage)
	assert.Equal(t, 1800.0, *result.HistoricalAverage)

	anomaly := result.Anomalies[0]
	assert.Equal(t, AnomalyDurationHigh, anomaly.Type)
	assert.Equal(t, "average_duration", anomaly.MetricName)
	assert.Equal(t, 5000.0, anomaly.CurrentValue)
	assert.Equal(t, 1800.0, anomaly.ExpectedValue)
	assert.Equal(t, 3600.0, anomaly.ThresholdValue)
	assert.InDelta(t, 177.78, anomaly.DeviationPercentage, 0.01)
	// flat history has no variance, so the percentage bands grade it
	assert.Equal(t, SeverityHigh, anomaly.Severity)
}

func TestDetectDurationLowCarriesNegativeDeviation(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	result := detector.Detect(agg(7, "database", 500, 10, 10, 0), history)

	assert.True(t, result.HasAnomaly)
	require.Len(t, result.Anomalies, 1)

	anomaly := result.Anomalies[0]
	assert.Equal(t, AnomalyDurationLow, anomaly.Type)
	assert.Equal(t, 900.0, anomaly.ThresholdValue)
	assert.InDelta(t, -72.22, anomaly.DeviationPercentage, 0.01)
	assert.Equal(t, SeverityMedium, anomaly.Severity)
}

func TestDetectMaxDurationSpike(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	// average stays normal, only the slowest run exploded
	current := agg(7, "database", 1800, 10, 10, 0)
	current.MaxDuration = 9000
	result := detector.Detect(current, history)

	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, AnomalyDurationHigh, result.Anomalies[0].Type)
	assert.Equal(t, "max_duration", result.Anomalies[0].MetricName)
	assert.InDelta(t, 400.0, result.Anomalies[0].DeviationPercentage, 0.01)
	assert.Equal(t, SeverityCritical, result.Anomalies[0].Severity)
}

func TestDetectZScoreGrading(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())

	// history with real variance: mean 1000, sample stdev ~79
	averages := []float64{1000, 1100, 900, 1050, 950}
	history := make([]processing.AggregatedMetrics, 0, len(averages))
	for i, avg := range averages {
		history = append(history, agg(i, "database", avg, 10, 10, 0))
	}

	current := agg(5, "database", 2100, 10, 10, 0)
	current.MaxDuration = 1000
	result := detector.Detect(current, history)

	require.Len(t, result.Anomalies, 1)
	// deviation 110% against a ~7.9% coefficient of variation: far past z=3
	assert.Equal(t, SeverityCritical, result.Anomalies[0].Severity)
}

func TestDetectCountAnomalies(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	t.Run("count high", func(t *testing.T) {
		result := detector.Detect(agg(7, "database", 1800, 25, 25, 0), history)
		require.Len(t, result.Anomalies, 1)
		anomaly := result.Anomalies[0]
		assert.Equal(t, AnomalyCountHigh, anomaly.Type)
		assert.Equal(t, 25.0, anomaly.CurrentValue)
		assert.Equal(t, 20.0, anomaly.ThresholdValue)
		assert.InDelta(t, 150.0, anomaly.DeviationPercentage, 0.01)
	})

	t.Run("count low", func(t *testing.T) {
		result := detector.Detect(agg(7, "database", 1800, 3, 3, 0), history)
		require.Len(t, result.Anomalies, 1)
		anomaly := result.Anomalies[0]
		assert.Equal(t, AnomalyCountLow, anomaly.Type)
		assert.Equal(t, 5.0, anomaly.ThresholdValue)
		assert.InDelta(t, -70.0, anomaly.DeviationPercentage, 0.01)
	})
}

func TestDetectCountWithSilentHistory(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())

	history := make([]processing.AggregatedMetrics, 7)
	for i := range history {
		history[i] = agg(i, "database", 0, 0, 0, 0)
	}

	result := detector.Detect(agg(7, "database", 0, 5, 5, 0), history)
	require.Len(t, result.Anomalies, 1)

	anomaly := result.Anomalies[0]
	assert.Equal(t, AnomalyCountHigh, anomaly.Type)
	assert.Equal(t, SeverityMedium, anomaly.Severity)
	assert.Equal(t, 100.0, anomaly.DeviationPercentage)
	assert.Equal(t, 0.0, anomaly.ExpectedValue)
}

func TestDetectFailureAfterSpotlessHistory(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	result := detector.Detect(agg(7, "database", 1800, 10, 8, 2), history)

	require.Len(t, result.Anomalies, 1)
	anomaly := result.Anomalies[0]
	assert.Equal(t, AnomalyFailureRateHigh, anomaly.Type)
	assert.Equal(t, SeverityHigh, anomaly.Severity)
	assert.Equal(t, 100.0, anomaly.DeviationPercentage)
	assert.Equal(t, 20.0, anomaly.CurrentValue)
}

func TestDetectSuccessRateCollapse(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())

	// history always has one failure so failure-rate history is nonzero
	history := make([]processing.AggregatedMetrics, 7)
	for i := range history {
		history[i] = agg(i, "database", 1800, 10, 9, 1)
	}

	result := detector.Detect(agg(7, "database", 1800, 10, 3, 7), history)

	types := make(map[AnomalyType]bool)
	for _, a := range result.Anomalies {
		types[a.Type] = true
	}
	assert.True(t, types[AnomalySuccessRateLow])
	assert.True(t, types[AnomalyFailureRateHigh])

	for _, a := range result.Anomalies {
		if a.Type == AnomalySuccessRateLow {
			assert.Negative(t, a.DeviationPercentage)
		}
	}
}

func TestDetectNormalPeriodIsQuiet(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())
	history := steadyHistory(7, "database", 1800)

	result := detector.Detect(agg(7, "database", 1850, 11, 11, 0), history)
	assert.False(t, result.HasAnomaly)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, 7, result.SamplesUsed)
}

func TestDetectFiltersHistoryByKey(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())

	// enough total history, but only 3 entries share the series key
	mixed := append(steadyHistory(4, "filesystem", 7200), steadyHistory(3, "database", 1800)...)
	result := detector.Detect(agg(7, "database", 5000, 10, 10, 0), mixed)

	assert.False(t, result.HasAnomaly)
	assert.Equal(t, 3, result.SamplesUsed)
}

func TestDetectTrimsToLookbackWindow(t *testing.T) {
	detector := mustDetector(t, Config{
		Enabled:             true,
		ThresholdMultiplier: 2.0,
		MinSamples:          2,
		LookbackPeriods:     3,
	})

	// three ancient slow periods followed by three recent fast ones; only
	// the recent window may inform the verdict
	var history []processing.AggregatedMetrics
	for i := 0; i < 3; i++ {
		history = append(history, agg(i, "database", 10000, 10, 10, 0))
	}
	for i := 3; i < 6; i++ {
		history = append(history, agg(i, "database", 1000, 10, 10, 0))
	}

	current := agg(6, "database", 2500, 10, 10, 0)
	current.MaxDuration = 1000
	result := detector.Detect(current, history)

	assert.Equal(t, 3, result.SamplesUsed)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, AnomalyDurationHigh, result.Anomalies[0].Type)
	assert.InDelta(t, 150.0, result.Anomalies[0].DeviationPercentage, 0.01)
}

func TestDetectDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	detector := mustDetector(t, config)

	result := detector.Detect(agg(7, "database", 99999, 10, 10, 0), steadyHistory(7, "database", 1800))
	assert.False(t, result.HasAnomaly)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, 0, result.SamplesUsed)
}

func TestDetectBatch(t *testing.T) {
	detector := mustDetector(t, DefaultConfig())

	series := steadyHistory(7, "database", 1800)
	spike := agg(7, "database", 5000, 10, 10, 0)
	spike.MaxDuration = 2000
	series = append(series, spike)

	results := detector.DetectBatch(series)
	require.Len(t, results, 8)

	// entries with a prefix below min_samples abstain
	for i := 0; i < 5; i++ {
		assert.False(t, results[i].HasAnomaly, i)
		assert.Equal(t, i, results[i].SamplesUsed)
	}
	assert.False(t, results[5].HasAnomaly)
	assert.False(t, results[6].HasAnomaly)
	assert.True(t, results[7].HasAnomaly)
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
}

func TestCriticalAnomalies(t *testing.T) {
	result := DetectionResult{
		HasAnomaly: true,
		Anomalies: []Anomaly{
			{Type: AnomalyDurationHigh, Severity: SeverityCritical},
			{Type: AnomalyCountLow, Severity: SeverityLow},
		},
	}
	critical := result.CriticalAnomalies()
	require.Len(t, critical, 1)
	assert.Equal(t, AnomalyDurationHigh, critical[0].Type)
}

func TestGradeSeverityBands(t *testing.T) {
	tests := []struct {
		deviation float64
		want      Severity
	}{
		{250, SeverityCritical},
		{200, SeverityCritical},
		{150, SeverityHigh},
		{100, SeverityHigh},
		{75, SeverityMedium},
		{50, SeverityMedium},
		{30, SeverityLow},
		{-150, SeverityHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeSeverity(tt.deviation, 0, 1000), "deviation %v", tt.deviation)
	}
}

func TestGradeSeverityZScore(t *testing.T) {
	// coefficient of variation 10%: z = deviation / 10
	assert.Equal(t, SeverityCritical, gradeSeverity(35, 100, 1000))
	assert.Equal(t, SeverityHigh, gradeSeverity(25, 100, 1000))
	assert.Equal(t, SeverityMedium, gradeSeverity(15, 100, 1000))
	// below z=1 the percentage bands take over
	assert.Equal(t, SeverityLow, gradeSeverity(5, 100, 1000))
}
