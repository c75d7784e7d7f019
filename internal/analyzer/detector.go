package analyzer

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

// Config controls the detector. Invalid values are rejected once at
// construction; detection itself never fails.
type Config struct {
	Enabled             bool
	ThresholdMultiplier float64
	MinSamples          int
	LookbackPeriods     int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ThresholdMultiplier: 2.0,
		MinSamples:          5,
		LookbackPeriods:     7,
	}
}

func (c Config) validate() error {
	if c.ThresholdMultiplier <= 0 {
		return fmt.Errorf("threshold_multiplier must be positive, got %g", c.ThresholdMultiplier)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", c.MinSamples)
	}
	if c.LookbackPeriods < 1 {
		return fmt.Errorf("lookback_periods must be at least 1, got %d", c.LookbackPeriods)
	}
	return nil
}

// Detector evaluates aggregates against a trailing historical window using
// three independent rule families (duration, count, rate).
type Detector struct {
	config Config
	logger *zap.Logger
}

func NewDetector(config Config, logger *zap.Logger) (*Detector, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid anomaly detection config: %w", err)
	}
	return &Detector{config: config, logger: logger}, nil
}

// Detect evaluates current against historical candidates. Candidates must be
// ordered oldest-first; only entries sharing current's backup type and
// granularity are considered, trimmed to the most recent lookback periods.
// Below MinSamples the detector abstains.
func (d *Detector) Detect(current processing.AggregatedMetrics, historical []processing.AggregatedMetrics) DetectionResult {
	if !d.config.Enabled {
		return DetectionResult{Metrics: current}
	}

	window := d.filterHistory(current, historical)
	if len(window) > d.config.LookbackPeriods {
		window = window[len(window)-d.config.LookbackPeriods:]
	}

	if len(window) < d.config.MinSamples {
		return DetectionResult{Metrics: current, SamplesUsed: len(window)}
	}

	var anomalies []Anomaly
	anomalies = append(anomalies, d.detectDurationAnomalies(current, window)...)
	anomalies = append(anomalies, d.detectCountAnomalies(current, window)...)
	anomalies = append(anomalies, d.detectRateAnomalies(current, window)...)

	historicalAvg := Mean(collect(window, func(m processing.AggregatedMetrics) float64 {
		return m.AverageDuration
	}))

	if len(anomalies) > 0 && d.logger != nil {
		d.logger.Debug("Anomalies detected",
			zap.String("backup_type", current.BackupType),
			zap.String("granularity", string(current.Granularity)),
			zap.Int("count", len(anomalies)),
		)
	}

	return DetectionResult{
		HasAnomaly:        len(anomalies) > 0,
		Anomalies:         anomalies,
		Metrics:           current,
		HistoricalAverage: &historicalAvg,
		SamplesUsed:       len(window),
	}
}

// DetectBatch evaluates each entry of a chronologically ordered list against
// the prefix before it. The first entry always abstains.
func (d *Detector) DetectBatch(metrics []processing.AggregatedMetrics) []DetectionResult {
	results := make([]DetectionResult, 0, len(metrics))
	for i, current := range metrics {
		results = append(results, d.Detect(current, metrics[:i]))
	}
	return results
}

func (d *Detector) filterHistory(
	current processing.AggregatedMetrics,
	historical []processing.AggregatedMetrics,
) []processing.AggregatedMetrics {
	filtered := make([]processing.AggregatedMetrics, 0, len(historical))
	for _, m := range historical {
		if m.BackupType == current.BackupType && m.Granularity == current.Granularity {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func (d *Detector) detectDurationAnomalies(
	current processing.AggregatedMetrics,
	window []processing.AggregatedMetrics,
) []Anomaly {
	var anomalies []Anomaly

	averages := collect(window, func(m processing.AggregatedMetrics) float64 { return m.AverageDuration })
	mean := Mean(averages)
	stdev := StdDev(averages)

	thresholdHigh := mean * d.config.ThresholdMultiplier
	thresholdLow := mean / d.config.ThresholdMultiplier

	if current.AverageDuration > thresholdHigh && mean > 0 {
		deviation := (current.AverageDuration - mean) / mean * 100
		anomalies = append(anomalies, d.newAnomaly(
			current, AnomalyDurationHigh, "average_duration",
			current.AverageDuration, mean, thresholdHigh,
			deviation, gradeSeverity(deviation, stdev, mean),
		))
	} else if current.AverageDuration < thresholdLow && mean > 0 {
		deviation := (mean - current.AverageDuration) / mean * 100
		anomalies = append(anomalies, d.newAnomaly(
			current, AnomalyDurationLow, "average_duration",
			current.AverageDuration, mean, thresholdLow,
			-deviation, gradeSeverity(deviation, stdev, mean),
		))
	}

	maxes := collect(window, func(m processing.AggregatedMetrics) float64 { return m.MaxDuration })
	maxMean := Mean(maxes)
	maxThreshold := maxMean * d.config.ThresholdMultiplier

	if current.MaxDuration > maxThreshold && maxMean > 0 {
		deviation := (current.MaxDuration - maxMean) / maxMean * 100
		anomalies = append(anomalies, d.newAnomaly(
			current, AnomalyDurationHigh, "max_duration",
			current.MaxDuration, maxMean, maxThreshold,
			deviation, gradeSeverity(deviation, 0, maxMean),
		))
	}

	return anomalies
}

func (d *Detector) detectCountAnomalies(
	current processing.AggregatedMetrics,
	window []processing.AggregatedMetrics,
) []Anomaly {
	counts := collect(window, func(m processing.AggregatedMetrics) float64 { return float64(m.TotalCount) })
	mean := Mean(counts)
	currentCount := float64(current.TotalCount)

	if mean == 0 {
		// No history of activity at all: any run is unexpected.
		if currentCount > 0 {
			return []Anomaly{d.newAnomaly(
				current, AnomalyCountHigh, "total_count",
				currentCount, 0, 0, 100, SeverityMedium,
			)}
		}
		return nil
	}

	thresholdHigh := mean * d.config.ThresholdMultiplier
	thresholdLow := mean / d.config.ThresholdMultiplier

	if currentCount > thresholdHigh {
		deviation := (currentCount - mean) / mean * 100
		return []Anomaly{d.newAnomaly(
			current, AnomalyCountHigh, "total_count",
			currentCount, mean, thresholdHigh,
			deviation, gradeSeverity(deviation, 0, mean),
		)}
	}
	if currentCount < thresholdLow {
		deviation := (mean - currentCount) / mean * 100
		return []Anomaly{d.newAnomaly(
			current, AnomalyCountLow, "total_count",
			currentCount, mean, thresholdLow,
			-deviation, gradeSeverity(deviation, 0, mean),
		)}
	}
	return nil
}

func (d *Detector) detectRateAnomalies(
	current processing.AggregatedMetrics,
	window []processing.AggregatedMetrics,
) []Anomaly {
	var anomalies []Anomaly

	failureRates := collect(window, func(m processing.AggregatedMetrics) float64 { return m.FailureRate() })
	failureMean := Mean(failureRates)
	currentFailureRate := current.FailureRate()

	if failureMean == 0 {
		// A spotless failure history makes any failure worth flagging.
		if currentFailureRate > 0 {
			anomalies = append(anomalies, d.newAnomaly(
				current, AnomalyFailureRateHigh, "failure_rate",
				currentFailureRate, 0, 0, 100, SeverityHigh,
			))
		}
	} else if currentFailureRate > failureMean*d.config.ThresholdMultiplier {
		deviation := (currentFailureRate - failureMean) / failureMean * 100
		anomalies = append(anomalies, d.newAnomaly(
			current, AnomalyFailureRateHigh, "failure_rate",
			currentFailureRate, failureMean, failureMean*d.config.ThresholdMultiplier,
			deviation, gradeSeverity(deviation, 0, failureMean),
		))
	}

	successRates := collect(window, func(m processing.AggregatedMetrics) float64 { return m.SuccessRate() })
	successMean := Mean(successRates)
	currentSuccessRate := current.SuccessRate()

	if successMean > 0 {
		threshold := successMean / d.config.ThresholdMultiplier
		if currentSuccessRate < threshold {
			deviation := (successMean - currentSuccessRate) / successMean * 100
			anomalies = append(anomalies, d.newAnomaly(
				current, AnomalySuccessRateLow, "success_rate",
				currentSuccessRate, successMean, threshold,
				-deviation, gradeSeverity(deviation, 0, successMean),
			))
		}
	}

	return anomalies
}

func (d *Detector) newAnomaly(
	current processing.AggregatedMetrics,
	anomalyType AnomalyType,
	metricName string,
	currentValue, expectedValue, thresholdValue, deviation float64,
	severity Severity,
) Anomaly {
	return Anomaly{
		Type:                anomalyType,
		Severity:            severity,
		MetricName:          metricName,
		CurrentValue:        currentValue,
		ExpectedValue:       expectedValue,
		ThresholdValue:      thresholdValue,
		DeviationPercentage: deviation,
		PeriodStart:         current.PeriodStart,
		PeriodEnd:           current.PeriodEnd,
		BackupType:          current.BackupType,
		Granularity:         current.Granularity,
	}
}

// gradeSeverity grades by z-score when variance is available, falling back
// to fixed percentage bands when the z-score stays below 1 or no variance
// exists. The two scales stay separate on purpose.
func gradeSeverity(deviationPercentage, stdev, mean float64) Severity {
	absDeviation := math.Abs(deviationPercentage)

	if stdev > 0 && mean > 0 {
		z := absDeviation / (stdev / mean * 100)
		switch {
		case z >= 3:
			return SeverityCritical
		case z >= 2:
			return SeverityHigh
		case z >= 1:
			return SeverityMedium
		}
	}

	switch {
	case absDeviation >= 200:
		return SeverityCritical
	case absDeviation >= 100:
		return SeverityHigh
	case absDeviation >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func collect(window []processing.AggregatedMetrics, f func(processing.AggregatedMetrics) float64) []float64 {
	values := make([]float64, len(window))
	for i, m := range window {
		values[i] = f(m)
	}
	return values
}
