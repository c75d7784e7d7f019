package processing

import (
	"sort"
	"time"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
)

// Engine groups backup records into period buckets and computes summary
// statistics per bucket. All methods are pure: output depends only on the
// input records, and shuffling the input yields the same sorted result.
type Engine struct {
	granularities map[Granularity]bool
}

// NewEngine builds an aggregation engine computing the given granularities.
// An empty list enables all three.
func NewEngine(granularities []Granularity) *Engine {
	enabled := make(map[Granularity]bool)
	if len(granularities) == 0 {
		granularities = []Granularity{GranularityDay, GranularityWeek, GranularityMonth}
	}
	for _, g := range granularities {
		enabled[g] = true
	}
	return &Engine{granularities: enabled}
}

// AggregateSet bundles the aggregates of every enabled granularity.
type AggregateSet struct {
	Daily   []DailyMetrics   `json:"daily,omitempty"`
	Weekly  []WeeklyMetrics  `json:"weekly,omitempty"`
	Monthly []MonthlyMetrics `json:"monthly,omitempty"`
}

// Flatten lowers every granularity variant into plain aggregates, keeping
// the per-granularity sorted order: daily first, then weekly, then monthly.
func (s AggregateSet) Flatten() []AggregatedMetrics {
	flat := make([]AggregatedMetrics, 0, len(s.Daily)+len(s.Weekly)+len(s.Monthly))
	for _, m := range s.Daily {
		flat = append(flat, m.AggregatedMetrics)
	}
	for _, m := range s.Weekly {
		flat = append(flat, m.AggregatedMetrics)
	}
	for _, m := range s.Monthly {
		flat = append(flat, m.AggregatedMetrics)
	}
	return flat
}

// AggregateAll computes every enabled granularity over the same input batch.
func (e *Engine) AggregateAll(records []loader.BackupRecord) AggregateSet {
	var set AggregateSet
	if e.granularities[GranularityDay] {
		set.Daily = e.AggregateDaily(records, nil)
	}
	if e.granularities[GranularityWeek] {
		set.Weekly = e.AggregateWeekly(records, nil)
	}
	if e.granularities[GranularityMonth] {
		set.Monthly = e.AggregateMonthly(records, 0, 0)
	}
	return set
}

// AggregateDaily buckets records by (calendar date of start, backup type).
// When targetDate is non-nil only that date is aggregated.
func (e *Engine) AggregateDaily(records []loader.BackupRecord, targetDate *time.Time) []DailyMetrics {
	type key struct {
		date       time.Time
		backupType string
	}
	buckets := make(map[key][]loader.BackupRecord)

	for _, record := range records {
		date := dateOf(record.StartTime)
		if targetDate != nil && !date.Equal(dateOf(*targetDate)) {
			continue
		}
		k := key{date: date, backupType: backupTypeOf(record)}
		buckets[k] = append(buckets[k], record)
	}

	metrics := make([]DailyMetrics, 0, len(buckets))
	for k, bucket := range buckets {
		base := computeBucket(bucket, k.date, k.date, GranularityDay, k.backupType)
		metrics = append(metrics, DailyMetrics{AggregatedMetrics: base, Date: k.date})
	}

	sort.Slice(metrics, func(i, j int) bool {
		if !metrics[i].Date.Equal(metrics[j].Date) {
			return metrics[i].Date.Before(metrics[j].Date)
		}
		return metrics[i].BackupType < metrics[j].BackupType
	})
	return metrics
}

// AggregateWeekly buckets records by (Monday of the ISO week of start, backup
// type). When weekStart is non-nil only that week is aggregated.
func (e *Engine) AggregateWeekly(records []loader.BackupRecord, weekStart *time.Time) []WeeklyMetrics {
	type key struct {
		weekStart  time.Time
		backupType string
	}
	buckets := make(map[key][]loader.BackupRecord)

	for _, record := range records {
		start := WeekStartOf(record.StartTime)
		if weekStart != nil && !start.Equal(WeekStartOf(*weekStart)) {
			continue
		}
		k := key{weekStart: start, backupType: backupTypeOf(record)}
		buckets[k] = append(buckets[k], record)
	}

	metrics := make([]WeeklyMetrics, 0, len(buckets))
	for k, bucket := range buckets {
		weekEnd := k.weekStart.AddDate(0, 0, 6)
		_, weekNumber := k.weekStart.ISOWeek()
		base := computeBucket(bucket, k.weekStart, weekEnd, GranularityWeek, k.backupType)
		metrics = append(metrics, WeeklyMetrics{
			AggregatedMetrics: base,
			WeekStart:         k.weekStart,
			WeekEnd:           weekEnd,
			WeekNumber:        weekNumber,
		})
	}

	sort.Slice(metrics, func(i, j int) bool {
		if !metrics[i].WeekStart.Equal(metrics[j].WeekStart) {
			return metrics[i].WeekStart.Before(metrics[j].WeekStart)
		}
		return metrics[i].BackupType < metrics[j].BackupType
	})
	return metrics
}

// AggregateMonthly buckets records by (year, month of start, backup type).
// Zero year/month values disable the respective filter.
func (e *Engine) AggregateMonthly(records []loader.BackupRecord, year, month int) []MonthlyMetrics {
	type key struct {
		year, month int
		backupType  string
	}
	buckets := make(map[key][]loader.BackupRecord)

	for _, record := range records {
		y, m := record.StartTime.UTC().Year(), int(record.StartTime.UTC().Month())
		if year != 0 && y != year {
			continue
		}
		if month != 0 && m != month {
			continue
		}
		k := key{year: y, month: m, backupType: backupTypeOf(record)}
		buckets[k] = append(buckets[k], record)
	}

	metrics := make([]MonthlyMetrics, 0, len(buckets))
	for k, bucket := range buckets {
		monthStart := time.Date(k.year, time.Month(k.month), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := MonthEndOf(k.year, k.month)
		base := computeBucket(bucket, monthStart, monthEnd, GranularityMonth, k.backupType)
		metrics = append(metrics, MonthlyMetrics{
			AggregatedMetrics: base,
			Year:              k.year,
			Month:             k.month,
		})
	}

	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Year != metrics[j].Year {
			return metrics[i].Year < metrics[j].Year
		}
		if metrics[i].Month != metrics[j].Month {
			return metrics[i].Month < metrics[j].Month
		}
		return metrics[i].BackupType < metrics[j].BackupType
	})
	return metrics
}

func computeBucket(
	records []loader.BackupRecord,
	periodStart, periodEnd time.Time,
	granularity Granularity,
	backupType string,
) AggregatedMetrics {
	metrics := AggregatedMetrics{
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Granularity: granularity,
		BackupType:  backupType,
		TotalCount:  len(records),
	}
	if len(records) == 0 {
		return metrics
	}

	metrics.MaxDuration = records[0].Duration()
	metrics.MinDuration = records[0].Duration()

	for _, record := range records {
		d := record.Duration()
		metrics.TotalDuration += d
		if d > metrics.MaxDuration {
			metrics.MaxDuration = d
		}
		if d < metrics.MinDuration {
			metrics.MinDuration = d
		}

		switch record.Status {
		case loader.StatusSuccess:
			metrics.SuccessCount++
		case loader.StatusFailure:
			metrics.FailureCount++
		case loader.StatusPartial:
			metrics.PartialCount++
		}
	}
	metrics.AverageDuration = metrics.TotalDuration / float64(len(records))

	return metrics
}

func backupTypeOf(record loader.BackupRecord) string {
	if record.BackupType == "" {
		return UnclassifiedType
	}
	return record.BackupType
}

// dateOf truncates a timestamp to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStartOf returns the Monday of the ISO week containing t.
func WeekStartOf(t time.Time) time.Time {
	d := dateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// MonthEndOf returns the last calendar day of the given month, leap-year aware.
func MonthEndOf(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
}
