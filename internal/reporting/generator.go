// Package reporting renders aggregation, comparison, and anomaly results as
// JSON, CSV, and HTML files. It only consumes the plain value types the
// analytics core produces.
package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/analyzer"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

// Report is the serializable payload shared by all output formats.
type Report struct {
	ReportType  string                         `json:"report_type"`
	GeneratedAt time.Time                      `json:"generated_at"`
	Metrics     []processing.AggregatedMetrics `json:"metrics,omitempty"`
	Comparisons []processing.PeriodComparison  `json:"comparisons,omitempty"`
	Anomalies   []analyzer.DetectionResult     `json:"anomalies,omitempty"`
	Summary     Summary                        `json:"summary"`
}

// Summary is the roll-up block at the top of every report.
type Summary struct {
	TotalPeriods   int     `json:"total_periods"`
	TotalBackups   int     `json:"total_backups"`
	TotalSuccesses int     `json:"total_successes"`
	TotalFailures  int     `json:"total_failures"`
	OverallRate    float64 `json:"overall_success_rate"`
	AnomalyPeriods int     `json:"anomaly_periods"`
}

// Generator writes reports into a configured output directory.
type Generator struct {
	outputDir string
	formats   []string
	logger    *zap.Logger
}

func NewGenerator(outputDir string, formats []string, logger *zap.Logger) *Generator {
	if len(formats) == 0 {
		formats = []string{"json", "csv", "html"}
	}
	return &Generator{outputDir: outputDir, formats: formats, logger: logger}
}

// Generate builds a report from pipeline output and writes every configured
// format. The returned map goes from format to written file path.
func (g *Generator) Generate(
	reportType string,
	metrics []processing.AggregatedMetrics,
	comparisons []processing.PeriodComparison,
	anomalies []analyzer.DetectionResult,
) (map[string]string, error) {
	report := Report{
		ReportType:  reportType,
		GeneratedAt: time.Now().UTC(),
		Metrics:     metrics,
		Comparisons: comparisons,
		Anomalies:   anomalies,
		Summary:     summarize(metrics, anomalies),
	}

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := report.GeneratedAt.Format("20060102_150405")
	written := make(map[string]string, len(g.formats))

	for _, format := range g.formats {
		path := filepath.Join(g.outputDir, fmt.Sprintf("%s_report_%s.%s", reportType, stamp, format))

		var err error
		switch format {
		case "json":
			err = g.writeJSON(path, report)
		case "csv":
			err = g.writeCSV(path, report)
		case "html":
			err = g.writeHTML(path, report)
		default:
			err = fmt.Errorf("unsupported report format: %q", format)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write %s report: %w", format, err)
		}
		written[format] = path
	}

	if g.logger != nil {
		g.logger.Info("Report generated",
			zap.String("type", reportType),
			zap.Int("formats", len(written)),
		)
	}
	return written, nil
}

func summarize(metrics []processing.AggregatedMetrics, anomalies []analyzer.DetectionResult) Summary {
	s := Summary{TotalPeriods: len(metrics)}
	for _, m := range metrics {
		s.TotalBackups += m.TotalCount
		s.TotalSuccesses += m.SuccessCount
		s.TotalFailures += m.FailureCount
	}
	if s.TotalBackups > 0 {
		s.OverallRate = float64(s.TotalSuccesses) / float64(s.TotalBackups) * 100
	}
	for _, r := range anomalies {
		if r.HasAnomaly {
			s.AnomalyPeriods++
		}
	}
	return s
}

func (g *Generator) writeJSON(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (g *Generator) writeCSV(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"period_start", "period_end", "granularity", "backup_type",
		"average_duration", "max_duration", "min_duration", "total_duration",
		"total_count", "success_count", "failure_count", "partial_count",
		"success_rate", "failure_rate", "anomaly_flag",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, m := range report.Metrics {
		row := []string{
			m.PeriodStart.Format("2006-01-02"),
			m.PeriodEnd.Format("2006-01-02"),
			string(m.Granularity),
			m.BackupType,
			formatFloat(m.AverageDuration),
			formatFloat(m.MaxDuration),
			formatFloat(m.MinDuration),
			formatFloat(m.TotalDuration),
			strconv.Itoa(m.TotalCount),
			strconv.Itoa(m.SuccessCount),
			strconv.Itoa(m.FailureCount),
			strconv.Itoa(m.PartialCount),
			formatFloat(m.SuccessRate()),
			formatFloat(m.FailureRate()),
			strconv.FormatBool(m.AnomalyFlag),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Backup {{.ReportType}} report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: right; }
th { background: #f0f0f0; }
td.label { text-align: left; }
.anomaly { color: #b00020; font-weight: bold; }
</style>
</head>
<body>
<h1>Backup {{.ReportType}} report</h1>
<p>Generated at {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>

<h2>Summary</h2>
<table>
<tr><td class="label">Periods</td><td>{{.Summary.TotalPeriods}}</td></tr>
<tr><td class="label">Backups</td><td>{{.Summary.TotalBackups}}</td></tr>
<tr><td class="label">Successes</td><td>{{.Summary.TotalSuccesses}}</td></tr>
<tr><td class="label">Failures</td><td>{{.Summary.TotalFailures}}</td></tr>
<tr><td class="label">Success rate</td><td>{{printf "%.1f%%" .Summary.OverallRate}}</td></tr>
<tr><td class="label">Periods with anomalies</td><td>{{.Summary.AnomalyPeriods}}</td></tr>
</table>

{{if .Metrics}}
<h2>Metrics</h2>
<table>
<tr>
<th>Period</th><th>Type</th><th>Count</th><th>Success</th><th>Failure</th>
<th>Partial</th><th>Avg duration (s)</th><th>Max (s)</th><th>Min (s)</th>
</tr>
{{range .Metrics}}
<tr{{if .AnomalyFlag}} class="anomaly"{{end}}>
<td class="label">{{.PeriodStart.Format "2006-01-02"}} – {{.PeriodEnd.Format "2006-01-02"}}</td>
<td class="label">{{.BackupType}}</td>
<td>{{.TotalCount}}</td><td>{{.SuccessCount}}</td><td>{{.FailureCount}}</td>
<td>{{.PartialCount}}</td>
<td>{{printf "%.1f" .AverageDuration}}</td>
<td>{{printf "%.1f" .MaxDuration}}</td>
<td>{{printf "%.1f" .MinDuration}}</td>
</tr>
{{end}}
</table>
{{end}}

{{if .Anomalies}}
<h2>Anomalies</h2>
<table>
<tr><th>Period</th><th>Type</th><th>Metric</th><th>Severity</th><th>Current</th><th>Expected</th><th>Deviation</th></tr>
{{range .Anomalies}}{{range .Anomalies}}
<tr class="anomaly">
<td class="label">{{.PeriodStart.Format "2006-01-02"}}</td>
<td class="label">{{.Type}}</td>
<td class="label">{{.MetricName}}</td>
<td class="label">{{.Severity}}</td>
<td>{{printf "%.1f" .CurrentValue}}</td>
<td>{{printf "%.1f" .ExpectedValue}}</td>
<td>{{printf "%.1f%%" .DeviationPercentage}}</td>
</tr>
{{end}}{{end}}
</table>
{{end}}

</body>
</html>
`))

func (g *Generator) writeHTML(path string, report Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return htmlTemplate.Execute(f, report)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
