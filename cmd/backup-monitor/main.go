package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/analyzer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/classifier"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/core"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/observer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/pipeline"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/reporting"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/storage"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/pkg/logger"
)

func main() {
	defaultConfig := os.Getenv("BMON_CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/backup-monitor.yaml"
	}

	configPath := flag.String("config", defaultConfig, "path to the YAML configuration file")
	inputPath := flag.String("input", "", "process one JSON file of backup records, write reports, and exit")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Config load failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(config.App.LogLevel); err != nil {
		fmt.Printf("Logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var db *storage.PostgresClient
	if config.Database.Enabled {
		db, err = storage.NewPostgresClient(config.GetDatabaseURL(), logger.Log)
		if err != nil {
			logger.Fatal("Database connection failed", zap.Error(err))
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Migrate(ctx); err != nil {
			cancel()
			logger.Fatal("Database migration failed", zap.Error(err))
		}
		cancel()
	}

	cls, err := buildClassifier(config)
	if err != nil {
		logger.Fatal("Classifier init failed", zap.Error(err))
	}

	detector, err := analyzer.NewDetector(analyzer.Config{
		Enabled:             config.AnomalyDetection.Enabled,
		ThresholdMultiplier: config.AnomalyDetection.ThresholdMultiplier,
		MinSamples:          config.AnomalyDetection.MinSamples,
		LookbackPeriods:     config.AnomalyDetection.LookbackPeriods,
	}, logger.Log)
	if err != nil {
		logger.Fatal("Detector init failed", zap.Error(err))
	}

	granularities := make([]processing.Granularity, 0, len(config.Processing.Granularities))
	for _, g := range config.Processing.Granularities {
		granularities = append(granularities, processing.Granularity(g))
	}

	metrics := observer.NewPipelineMetrics(prometheus.DefaultRegisterer)
	pipe := pipeline.New(
		cls,
		processing.NewEngine(granularities),
		processing.NewComparator(),
		detector,
		db,
		metrics,
		logger.Log,
	)
	reports := reporting.NewGenerator(config.Reporting.OutputDirectory, config.Reporting.Formats, logger.Log)

	if *inputPath != "" {
		if err := runOnce(pipe, reports, *inputPath); err != nil {
			logger.Fatal("One-shot run failed", zap.Error(err))
		}
		return
	}

	if config.App.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), ginLogger())

	router.GET("/health", healthHandler(db, config))
	router.GET("/ready", readyHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", statusHandler(config))
		v1.POST("/pipeline/run", runPipelineHandler(pipe, reports, metrics))
		v1.GET("/aggregates", getAggregatesHandler(db))
		v1.GET("/anomalies", getAnomaliesHandler(db))
		v1.GET("/runs", getRunsHandler(db))
	}

	srv := &http.Server{
		Addr:           config.Server.Addr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("HTTP server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	srv.Shutdown(shutdownCtx)
}

func buildClassifier(config *core.Config) (*classifier.Classifier, error) {
	if config.Classifier.RulesFile == "" {
		return classifier.New(nil, config.Classifier.DefaultBackupType, logger.Log)
	}
	return classifier.NewFromFile(config.Classifier.RulesFile, config.Classifier.DefaultBackupType, logger.Log)
}

// runOnce processes one input file, writes reports, and prints their paths.
func runOnce(pipe *pipeline.Pipeline, reports *reporting.Generator, inputPath string) error {
	records, err := loader.NewJSONLoader(logger.Log).LoadFile(inputPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := pipe.Run(ctx, records)
	if err != nil {
		return err
	}

	paths, err := reports.Generate("backup_summary", result.Aggregates.Flatten(), result.Comparisons, result.Detections)
	if err != nil {
		return err
	}

	for format, path := range paths {
		fmt.Printf("%s report: %s\n", format, path)
	}
	fmt.Printf("Processed %d records, %d anomalies\n", result.RecordsProcessed, result.AnomaliesFound)
	return nil
}

func healthHandler(db *storage.PostgresClient, config *core.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := db.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   config.App.Version,
		})
	}
}

func readyHandler(db *storage.PostgresClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := db.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not_ready",
					"reason": "database unavailable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

func statusHandler(config *core.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":           config.App.Name,
			"version":           config.App.Version,
			"granularities":     config.Processing.Granularities,
			"anomaly_detection": config.AnomalyDetection.Enabled,
			"storage_enabled":   config.Database.Enabled,
			"timestamp":         time.Now().Format(time.RFC3339),
		})
	}
}

func runPipelineHandler(pipe *pipeline.Pipeline, reports *reporting.Generator, metrics *observer.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		records, err := loader.NewJSONLoader(logger.Log).LoadBytes(body)
		if err != nil {
			metrics.RecordsRejected.Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
		defer cancel()

		result, err := pipe.Run(ctx, records)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		response := gin.H{
			"records_processed": result.RecordsProcessed,
			"anomalies_found":   result.AnomaliesFound,
			"duration_millis":   result.DurationMillis,
			"aggregates":        result.Aggregates,
			"comparisons":       result.Comparisons,
			"detections":        result.Detections,
		}

		if c.Query("report") == "true" {
			paths, err := reports.Generate("pipeline_run", result.Aggregates.Flatten(), result.Comparisons, result.Detections)
			if err != nil {
				logger.Error("Report generation failed", zap.Error(err))
			} else {
				response["reports"] = paths
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

func getAggregatesHandler(db *storage.PostgresClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is disabled"})
			return
		}

		backupType := c.DefaultQuery("backup_type", processing.UnclassifiedType)
		granularity := processing.Granularity(c.DefaultQuery("granularity", "day"))
		limit := parseLimit(c.DefaultQuery("limit", "30"))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		history, err := db.GetAggregateHistory(ctx, backupType, granularity, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"backup_type": backupType,
			"granularity": granularity,
			"aggregates":  history,
			"count":       len(history),
		})
	}
}

func getAnomaliesHandler(db *storage.PostgresClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is disabled"})
			return
		}

		limit := parseLimit(c.DefaultQuery("limit", "50"))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		anomalies, err := db.GetRecentAnomalies(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"anomalies": anomalies,
			"count":     len(anomalies),
		})
	}
}

func getRunsHandler(db *storage.PostgresClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage is disabled"})
			return
		}

		limit := parseLimit(c.DefaultQuery("limit", "20"))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		runs, err := db.GetRecentPipelineRuns(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"runs":  runs,
			"count": len(runs),
		})
	}
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
