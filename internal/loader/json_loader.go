package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Accepted timestamp layouts, tried in order. Naive timestamps are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

// flexID accepts both string and numeric backup identifiers on the wire.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backup_id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

// rawRecord is the wire shape of one backup record in a JSON payload.
type rawRecord struct {
	BackupID     flexID         `json:"backup_id"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	Status       string         `json:"status"`
	BackupType   *string        `json:"backup_type"`
	SourceSystem *string        `json:"source_system"`
	Metadata     map[string]any `json:"metadata"`
}

// JSONLoader loads and normalizes backup records from JSON documents.
type JSONLoader struct {
	logger *zap.Logger
}

func NewJSONLoader(logger *zap.Logger) *JSONLoader {
	return &JSONLoader{logger: logger}
}

// LoadFile reads a JSON file containing an array of backup records.
func (l *JSONLoader) LoadFile(path string) ([]BackupRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	records, err := l.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return records, nil
}

// LoadBytes parses a JSON array of backup records. Normalization failures are
// collected per record and reported together so a single bad entry names itself.
func (l *JSONLoader) LoadBytes(data []byte) ([]BackupRecord, error) {
	var raw []rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	records := make([]BackupRecord, 0, len(raw))
	var errs []string

	for idx, rr := range raw {
		record, err := l.normalize(rr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("record %d (backup_id: %s): %v", idx, string(rr.BackupID), err))
			continue
		}
		records = append(records, record)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to normalize %d record(s):\n%s", len(errs), strings.Join(errs, "\n"))
	}

	if l.logger != nil {
		l.logger.Debug("Records loaded", zap.Int("count", len(records)))
	}
	return records, nil
}

func (l *JSONLoader) normalize(rr rawRecord) (BackupRecord, error) {
	start, err := parseTimestamp(rr.StartTime)
	if err != nil {
		return BackupRecord{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := parseTimestamp(rr.EndTime)
	if err != nil {
		return BackupRecord{}, fmt.Errorf("end_time: %w", err)
	}

	status, err := ParseStatus(strings.ToLower(rr.Status))
	if err != nil {
		return BackupRecord{}, err
	}

	var backupType, sourceSystem string
	if rr.BackupType != nil {
		backupType = *rr.BackupType
	}
	if rr.SourceSystem != nil {
		sourceSystem = *rr.SourceSystem
	}

	return NewBackupRecord(string(rr.BackupID), start, end, status, backupType, sourceSystem, rr.Metadata)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}
