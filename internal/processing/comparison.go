package processing

import (
	"math"
	"time"
)

// deltaTolerance is the floating point tolerance below which an absolute
// delta counts as unchanged.
const deltaTolerance = 1e-4

// MetricDelta is the change in a single metric between two periods.
type MetricDelta struct {
	MetricName      string  `json:"metric_name"`
	CurrentValue    float64 `json:"current_value"`
	PreviousValue   float64 `json:"previous_value"`
	AbsoluteDelta   float64 `json:"absolute_delta"`
	PercentageDelta float64 `json:"percentage_delta"`
}

func (d MetricDelta) IsIncrease() bool {
	return d.AbsoluteDelta > 0
}

func (d MetricDelta) IsDecrease() bool {
	return d.AbsoluteDelta < 0
}

func (d MetricDelta) IsUnchanged() bool {
	return math.Abs(d.AbsoluteDelta) < deltaTolerance
}

// PeriodComparison is the metric-level diff between one aggregate and the
// aggregate of the preceding period.
type PeriodComparison struct {
	Granularity Granularity `json:"granularity"`
	BackupType  string      `json:"backup_type"`

	CurrentPeriodStart  time.Time `json:"current_period_start"`
	CurrentPeriodEnd    time.Time `json:"current_period_end"`
	PreviousPeriodStart time.Time `json:"previous_period_start"`
	PreviousPeriodEnd   time.Time `json:"previous_period_end"`

	CurrentMetrics  AggregatedMetrics  `json:"current_metrics"`
	PreviousMetrics *AggregatedMetrics `json:"previous_metrics,omitempty"`

	DurationDeltas map[string]MetricDelta `json:"duration_deltas"`
	CountDeltas    map[string]MetricDelta `json:"count_deltas"`
	RateDeltas     map[string]MetricDelta `json:"rate_deltas"`

	HasPreviousData bool `json:"has_previous_data"`
}

// AllDeltas merges the three delta maps.
func (c PeriodComparison) AllDeltas() map[string]MetricDelta {
	all := make(map[string]MetricDelta, len(c.DurationDeltas)+len(c.CountDeltas)+len(c.RateDeltas))
	for name, d := range c.DurationDeltas {
		all[name] = d
	}
	for name, d := range c.CountDeltas {
		all[name] = d
	}
	for name, d := range c.RateDeltas {
		all[name] = d
	}
	return all
}

// Comparator computes period-over-period metric deltas.
type Comparator struct{}

func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare diffs current against previous. A nil previous is replaced with a
// synthetic zero-valued aggregate whose boundaries are the preceding calendar
// period of current, and HasPreviousData is reported false.
func (c *Comparator) Compare(current AggregatedMetrics, previous *AggregatedMetrics) PeriodComparison {
	hasPrevious := previous != nil

	var prev AggregatedMetrics
	if hasPrevious {
		prev = *previous
	} else {
		prevStart, prevEnd := previousPeriodBounds(current.Granularity, current.PeriodStart)
		prev = AggregatedMetrics{
			PeriodStart: prevStart,
			PeriodEnd:   prevEnd,
			Granularity: current.Granularity,
			BackupType:  current.BackupType,
		}
	}

	comparison := PeriodComparison{
		Granularity:         current.Granularity,
		BackupType:          current.BackupType,
		CurrentPeriodStart:  current.PeriodStart,
		CurrentPeriodEnd:    current.PeriodEnd,
		PreviousPeriodStart: prev.PeriodStart,
		PreviousPeriodEnd:   prev.PeriodEnd,
		CurrentMetrics:      current,
		HasPreviousData:     hasPrevious,
		DurationDeltas: map[string]MetricDelta{
			"average_duration": calculateDelta("average_duration", current.AverageDuration, prev.AverageDuration),
			"max_duration":     calculateDelta("max_duration", current.MaxDuration, prev.MaxDuration),
			"min_duration":     calculateDelta("min_duration", current.MinDuration, prev.MinDuration),
			"total_duration":   calculateDelta("total_duration", current.TotalDuration, prev.TotalDuration),
		},
		CountDeltas: map[string]MetricDelta{
			"total_count":   calculateDelta("total_count", float64(current.TotalCount), float64(prev.TotalCount)),
			"success_count": calculateDelta("success_count", float64(current.SuccessCount), float64(prev.SuccessCount)),
			"failure_count": calculateDelta("failure_count", float64(current.FailureCount), float64(prev.FailureCount)),
			"partial_count": calculateDelta("partial_count", float64(current.PartialCount), float64(prev.PartialCount)),
		},
		RateDeltas: map[string]MetricDelta{
			"success_rate": calculateDelta("success_rate", current.SuccessRate(), prev.SuccessRate()),
			"failure_rate": calculateDelta("failure_rate", current.FailureRate(), prev.FailureRate()),
		},
	}
	if hasPrevious {
		comparison.PreviousMetrics = &prev
	}
	return comparison
}

// CompareSequence pairwise-compares consecutive entries of a chronologically
// ordered (oldest-first) list. Consecutive entries with different backup
// types produce no comparison. A single-element list is compared against the
// zero baseline.
func (c *Comparator) CompareSequence(metrics []AggregatedMetrics) []PeriodComparison {
	if len(metrics) == 0 {
		return nil
	}
	if len(metrics) == 1 {
		return []PeriodComparison{c.Compare(metrics[0], nil)}
	}

	comparisons := make([]PeriodComparison, 0, len(metrics)-1)
	for i := 1; i < len(metrics); i++ {
		current, previous := metrics[i], metrics[i-1]
		if current.BackupType != previous.BackupType {
			continue
		}
		comparisons = append(comparisons, c.Compare(current, &previous))
	}
	return comparisons
}

// calculateDelta follows the zero-baseline convention: when previous is 0 a
// nonzero current reports a flat +/-100% rather than a divide-by-zero blowup.
func calculateDelta(name string, current, previous float64) MetricDelta {
	absolute := current - previous

	var percentage float64
	switch {
	case previous == 0 && current == 0:
		percentage = 0
	case previous == 0 && current > 0:
		percentage = 100
	case previous == 0:
		percentage = -100
	default:
		percentage = absolute / previous * 100
	}

	return MetricDelta{
		MetricName:      name,
		CurrentValue:    current,
		PreviousValue:   previous,
		AbsoluteDelta:   absolute,
		PercentageDelta: percentage,
	}
}

// previousPeriodBounds computes the boundaries of the calendar period
// immediately preceding a period that starts at start.
func previousPeriodBounds(granularity Granularity, start time.Time) (time.Time, time.Time) {
	switch granularity {
	case GranularityWeek:
		prevStart := start.AddDate(0, 0, -7)
		return prevStart, prevStart.AddDate(0, 0, 6)
	case GranularityMonth:
		year, month := start.UTC().Year(), int(start.UTC().Month())
		if month == 1 {
			year, month = year-1, 12
		} else {
			month--
		}
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), MonthEndOf(year, month)
	default:
		prev := dateOf(start).AddDate(0, 0, -1)
		return prev, prev
	}
}
