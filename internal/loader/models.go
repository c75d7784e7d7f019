// Package loader ingests raw backup job records and normalizes them into
// immutable BackupRecord values for the processing pipeline.
package loader

import (
	"fmt"
	"time"
)

// BackupStatus is the execution outcome of a backup job.
type BackupStatus string

const (
	StatusSuccess BackupStatus = "success"
	StatusFailure BackupStatus = "failure"
	StatusPartial BackupStatus = "partial"
)

// ParseStatus converts a raw status string into a BackupStatus.
func ParseStatus(s string) (BackupStatus, error) {
	switch BackupStatus(s) {
	case StatusSuccess, StatusFailure, StatusPartial:
		return BackupStatus(s), nil
	}
	return "", fmt.Errorf("invalid status value: %q", s)
}

// BackupRecord is a normalized, immutable backup job record.
// Construct via NewBackupRecord so the end >= start invariant holds.
type BackupRecord struct {
	BackupID     string         `json:"backup_id"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Status       BackupStatus   `json:"status"`
	BackupType   string         `json:"backup_type,omitempty"`
	SourceSystem string         `json:"source_system,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewBackupRecord builds a validated record. A zero-length run (end == start)
// is allowed; end before start is not.
func NewBackupRecord(
	backupID string,
	start, end time.Time,
	status BackupStatus,
	backupType, sourceSystem string,
	metadata map[string]any,
) (BackupRecord, error) {
	if backupID == "" {
		return BackupRecord{}, fmt.Errorf("backup_id cannot be empty")
	}
	if end.Before(start) {
		return BackupRecord{}, fmt.Errorf("backup %s: end_time must not be before start_time", backupID)
	}
	switch status {
	case StatusSuccess, StatusFailure, StatusPartial:
	default:
		return BackupRecord{}, fmt.Errorf("backup %s: invalid status %q", backupID, status)
	}

	return BackupRecord{
		BackupID:     backupID,
		StartTime:    start,
		EndTime:      end,
		Status:       status,
		BackupType:   backupType,
		SourceSystem: sourceSystem,
		Metadata:     metadata,
	}, nil
}

// Duration returns the backup run time in seconds.
func (r BackupRecord) Duration() float64 {
	return r.EndTime.Sub(r.StartTime).Seconds()
}

// WithBackupType returns a copy of the record with the backup type set.
func (r BackupRecord) WithBackupType(backupType string) BackupRecord {
	r.BackupType = backupType
	return r
}
