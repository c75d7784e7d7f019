package processing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
)

func mustRecord(t *testing.T, id string, start time.Time, seconds float64, status loader.BackupStatus, backupType string) loader.BackupRecord {
	t.Helper()
	end := start.Add(time.Duration(seconds * float64(time.Second)))
	rec, err := loader.NewBackupRecord(id, start, end, status, backupType, "", nil)
	require.NoError(t, err)
	return rec
}

func TestAggregateDaily(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	records := []loader.BackupRecord{
		mustRecord(t, "a", day.Add(2*time.Hour), 1800, loader.StatusSuccess, "database"),
		mustRecord(t, "b", day.Add(8*time.Hour), 2400, loader.StatusFailure, "database"),
		mustRecord(t, "c", day.Add(14*time.Hour), 600, loader.StatusPartial, "database"),
		mustRecord(t, "d", day.Add(3*time.Hour), 7200, loader.StatusSuccess, "filesystem"),
	}

	metrics := NewEngine(nil).AggregateDaily(records, nil)
	require.Len(t, metrics, 2)

	db := metrics[0]
	assert.Equal(t, "database", db.BackupType)
	assert.Equal(t, GranularityDay, db.Granularity)
	assert.Equal(t, day, db.Date)
	assert.Equal(t, day, db.PeriodStart)
	assert.Equal(t, day, db.PeriodEnd)
	assert.Equal(t, 3, db.TotalCount)
	assert.Equal(t, 1, db.SuccessCount)
	assert.Equal(t, 1, db.FailureCount)
	assert.Equal(t, 1, db.PartialCount)
	assert.Equal(t, 4800.0, db.TotalDuration)
	assert.Equal(t, 1600.0, db.AverageDuration)
	assert.Equal(t, 2400.0, db.MaxDuration)
	assert.Equal(t, 600.0, db.MinDuration)
	assert.InDelta(t, 33.333, db.SuccessRate(), 0.01)
	assert.InDelta(t, 33.333, db.FailureRate(), 0.01)

	fs := metrics[1]
	assert.Equal(t, "filesystem", fs.BackupType)
	assert.Equal(t, 1, fs.TotalCount)
	assert.Equal(t, 7200.0, fs.MinDuration)
	assert.Equal(t, 7200.0, fs.MaxDuration)
	assert.Equal(t, 7200.0, fs.AverageDuration)
}

func TestAggregateDailyTargetDate(t *testing.T) {
	d1 := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC)
	records := []loader.BackupRecord{
		mustRecord(t, "a", d1, 100, loader.StatusSuccess, "database"),
		mustRecord(t, "b", d2, 100, loader.StatusSuccess, "database"),
	}

	target := time.Date(2024, 3, 11, 23, 0, 0, 0, time.UTC)
	metrics := NewEngine(nil).AggregateDaily(records, &target)
	require.Len(t, metrics, 1)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), metrics[0].Date)
}

func TestAggregateDailyUnclassifiedFallback(t *testing.T) {
	start := time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)
	records := []loader.BackupRecord{mustRecord(t, "a", start, 100, loader.StatusSuccess, "")}

	metrics := NewEngine(nil).AggregateDaily(records, nil)
	require.Len(t, metrics, 1)
	assert.Equal(t, UnclassifiedType, metrics[0].BackupType)
}

func TestAggregateDailyEmptyInput(t *testing.T) {
	assert.Empty(t, NewEngine(nil).AggregateDaily(nil, nil))
}

func TestAggregateWeekly(t *testing.T) {
	// 2024-01-01 is a Monday; records spread over the first week land in one bucket
	var records []loader.BackupRecord
	for day := 1; day <= 7; day++ {
		start := time.Date(2024, 1, day, 3, 0, 0, 0, time.UTC)
		records = append(records, mustRecord(t, "w", start, 1000, loader.StatusSuccess, "database"))
	}

	metrics := NewEngine(nil).AggregateWeekly(records, nil)
	require.Len(t, metrics, 1)

	week := metrics[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), week.WeekStart)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), week.WeekEnd)
	assert.Equal(t, 1, week.WeekNumber)
	assert.Equal(t, 7, week.TotalCount)
	assert.Equal(t, GranularityWeek, week.Granularity)
}

func TestWeekStartOf(t *testing.T) {
	tests := []struct {
		input time.Time
		want  time.Time
	}{
		// Sunday belongs to the week that started the previous Monday
		{time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		// Monday is its own week start
		{time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		// midweek
		{time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WeekStartOf(tt.input))
	}
}

func TestAggregateMonthly(t *testing.T) {
	records := []loader.BackupRecord{
		mustRecord(t, "a", time.Date(2024, 2, 5, 1, 0, 0, 0, time.UTC), 100, loader.StatusSuccess, "database"),
		mustRecord(t, "b", time.Date(2024, 2, 29, 1, 0, 0, 0, time.UTC), 300, loader.StatusFailure, "database"),
		mustRecord(t, "c", time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), 100, loader.StatusSuccess, "database"),
	}

	metrics := NewEngine(nil).AggregateMonthly(records, 0, 0)
	require.Len(t, metrics, 2)

	feb := metrics[0]
	assert.Equal(t, 2024, feb.Year)
	assert.Equal(t, 2, feb.Month)
	assert.Equal(t, 2, feb.TotalCount)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), feb.PeriodStart)
	// leap year February
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), feb.PeriodEnd)

	filtered := NewEngine(nil).AggregateMonthly(records, 2024, 3)
	require.Len(t, filtered, 1)
	assert.Equal(t, 3, filtered[0].Month)
}

func TestMonthEndOf(t *testing.T) {
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), MonthEndOf(2024, 2))
	assert.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), MonthEndOf(2023, 2))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), MonthEndOf(2024, 12))
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), MonthEndOf(2024, 4))
}

func TestAggregationOrderIndependence(t *testing.T) {
	var records []loader.BackupRecord
	for day := 1; day <= 20; day++ {
		start := time.Date(2024, 5, day, 2, 0, 0, 0, time.UTC)
		status := loader.StatusSuccess
		if day%5 == 0 {
			status = loader.StatusFailure
		}
		backupType := "database"
		if day%3 == 0 {
			backupType = "filesystem"
		}
		records = append(records, mustRecord(t, "r", start, float64(100*day), status, backupType))
	}

	engine := NewEngine(nil)
	expected := engine.AggregateAll(records)

	shuffled := make([]loader.BackupRecord, len(records))
	copy(shuffled, records)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	assert.Equal(t, expected, engine.AggregateAll(shuffled))
}

func TestAggregateAllRespectsGranularities(t *testing.T) {
	start := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	records := []loader.BackupRecord{mustRecord(t, "a", start, 100, loader.StatusSuccess, "database")}

	set := NewEngine([]Granularity{GranularityDay}).AggregateAll(records)
	assert.Len(t, set.Daily, 1)
	assert.Empty(t, set.Weekly)
	assert.Empty(t, set.Monthly)

	full := NewEngine(nil).AggregateAll(records)
	assert.Len(t, full.Daily, 1)
	assert.Len(t, full.Weekly, 1)
	assert.Len(t, full.Monthly, 1)
	assert.Len(t, full.Flatten(), 3)
}

func TestDeterministicOrdering(t *testing.T) {
	day := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	records := []loader.BackupRecord{
		mustRecord(t, "a", day.AddDate(0, 0, 1), 100, loader.StatusSuccess, "filesystem"),
		mustRecord(t, "b", day, 100, loader.StatusSuccess, "filesystem"),
		mustRecord(t, "c", day, 100, loader.StatusSuccess, "database"),
	}

	metrics := NewEngine(nil).AggregateDaily(records, nil)
	require.Len(t, metrics, 3)
	assert.Equal(t, "database", metrics[0].BackupType)
	assert.Equal(t, "filesystem", metrics[1].BackupType)
	assert.True(t, metrics[2].Date.After(metrics[1].Date))
}
