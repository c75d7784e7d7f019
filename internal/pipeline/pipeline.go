// Package pipeline orchestrates one analytics pass: classify records,
// aggregate them per granularity, compare consecutive periods, and run
// anomaly detection. Persistence and reporting are optional collaborators.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/analyzer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/classifier"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/observer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/storage"
)

// Result is the full output of one pipeline run.
type Result struct {
	Aggregates  processing.AggregateSet       `json:"aggregates"`
	Comparisons []processing.PeriodComparison `json:"comparisons"`
	Detections  []analyzer.DetectionResult    `json:"detections"`

	RecordsProcessed int       `json:"records_processed"`
	AnomaliesFound   int       `json:"anomalies_found"`
	StartedAt        time.Time `json:"started_at"`
	DurationMillis   int64     `json:"duration_millis"`
}

// Pipeline wires the analytics core to its collaborators.
type Pipeline struct {
	classifier *classifier.Classifier
	engine     *processing.Engine
	comparator *processing.Comparator
	detector   *analyzer.Detector
	store      *storage.PostgresClient
	metrics    *observer.PipelineMetrics
	logger     *zap.Logger
}

// New builds a pipeline. store and metrics may be nil; the classifier is
// required so every record carries a backup type before aggregation.
func New(
	cls *classifier.Classifier,
	engine *processing.Engine,
	comparator *processing.Comparator,
	detector *analyzer.Detector,
	store *storage.PostgresClient,
	metrics *observer.PipelineMetrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		classifier: cls,
		engine:     engine,
		comparator: comparator,
		detector:   detector,
		store:      store,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes one batch of normalized records.
func (p *Pipeline) Run(ctx context.Context, records []loader.BackupRecord) (*Result, error) {
	started := time.Now()

	classified := p.classifier.ClassifyBatch(records)
	aggregates := p.engine.AggregateAll(classified)

	flat := aggregates.Flatten()
	comparisons := p.compareByType(flat)
	detections := p.detectWithHistory(ctx, flat)

	anomalyCount := 0
	for _, d := range detections {
		anomalyCount += len(d.Anomalies)
	}

	result := &Result{
		Aggregates:       aggregates,
		Comparisons:      comparisons,
		Detections:       detections,
		RecordsProcessed: len(records),
		AnomaliesFound:   anomalyCount,
		StartedAt:        started.UTC(),
		DurationMillis:   time.Since(started).Milliseconds(),
	}

	if p.metrics != nil {
		p.metrics.RecordsLoaded.Add(float64(len(records)))
		p.metrics.AggregatesComputed.WithLabelValues("day").Add(float64(len(aggregates.Daily)))
		p.metrics.AggregatesComputed.WithLabelValues("week").Add(float64(len(aggregates.Weekly)))
		p.metrics.AggregatesComputed.WithLabelValues("month").Add(float64(len(aggregates.Monthly)))
		for _, d := range detections {
			for _, a := range d.Anomalies {
				p.metrics.AnomaliesDetected.WithLabelValues(string(a.Severity)).Inc()
			}
		}
		p.metrics.ObserveRun(started)
	}

	if p.store != nil {
		if err := p.persist(ctx, result, flat); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Pipeline run complete",
		zap.Int("records", len(records)),
		zap.Int("daily_buckets", len(aggregates.Daily)),
		zap.Int("weekly_buckets", len(aggregates.Weekly)),
		zap.Int("monthly_buckets", len(aggregates.Monthly)),
		zap.Int("anomalies", anomalyCount),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// compareByType runs CompareSequence per (granularity, backup type) series.
func (p *Pipeline) compareByType(flat []processing.AggregatedMetrics) []processing.PeriodComparison {
	type seriesKey struct {
		granularity processing.Granularity
		backupType  string
	}

	series := make(map[seriesKey][]processing.AggregatedMetrics)
	var order []seriesKey
	for _, m := range flat {
		k := seriesKey{granularity: m.Granularity, backupType: m.BackupType}
		if _, seen := series[k]; !seen {
			order = append(order, k)
		}
		series[k] = append(series[k], m)
	}

	var comparisons []processing.PeriodComparison
	for _, k := range order {
		comparisons = append(comparisons, p.comparator.CompareSequence(series[k])...)
	}
	return comparisons
}

// detectWithHistory evaluates each aggregate. When storage is available the
// persisted history of the same series is prepended to the in-batch prefix.
func (p *Pipeline) detectWithHistory(ctx context.Context, flat []processing.AggregatedMetrics) []analyzer.DetectionResult {
	if p.store == nil {
		return p.detector.DetectBatch(flat)
	}

	results := make([]analyzer.DetectionResult, 0, len(flat))
	for i, current := range flat {
		history, err := p.store.GetAggregateHistory(ctx, current.BackupType, current.Granularity, 64)
		if err != nil {
			p.logger.Warn("History lookup failed, falling back to batch prefix",
				zap.String("backup_type", current.BackupType),
				zap.Error(err),
			)
			history = nil
		}
		history = append(history, prefixOfSeries(flat[:i], current)...)
		results = append(results, p.detector.Detect(current, history))
	}
	return results
}

// prefixOfSeries keeps only earlier in-batch aggregates of the same series.
func prefixOfSeries(prefix []processing.AggregatedMetrics, current processing.AggregatedMetrics) []processing.AggregatedMetrics {
	var same []processing.AggregatedMetrics
	for _, m := range prefix {
		if m.BackupType == current.BackupType && m.Granularity == current.Granularity {
			same = append(same, m)
		}
	}
	return same
}

func (p *Pipeline) persist(ctx context.Context, result *Result, flat []processing.AggregatedMetrics) error {
	flagged := markAnomalous(flat, result.Detections)
	if err := p.store.SaveAggregates(ctx, flagged); err != nil {
		return fmt.Errorf("failed to persist aggregates: %w", err)
	}

	var anomalies []analyzer.Anomaly
	for _, d := range result.Detections {
		anomalies = append(anomalies, d.Anomalies...)
	}
	if err := p.store.SaveAnomalies(ctx, anomalies); err != nil {
		return fmt.Errorf("failed to persist anomalies: %w", err)
	}

	run := &storage.PipelineRun{
		StartedAt:       result.StartedAt,
		RecordsLoaded:   result.RecordsProcessed,
		AggregatesSaved: len(flagged),
		AnomaliesFound:  result.AnomaliesFound,
		DurationMillis:  result.DurationMillis,
	}
	if err := p.store.SavePipelineRun(ctx, run); err != nil {
		return fmt.Errorf("failed to persist pipeline run: %w", err)
	}
	return nil
}

// markAnomalous sets the anomaly flag on aggregates whose period was flagged.
func markAnomalous(flat []processing.AggregatedMetrics, detections []analyzer.DetectionResult) []processing.AggregatedMetrics {
	flagged := make([]processing.AggregatedMetrics, len(flat))
	copy(flagged, flat)
	for i := range flagged {
		if i < len(detections) && detections[i].HasAnomaly {
			flagged[i].AnomalyFlag = true
		}
	}
	return flagged
}
