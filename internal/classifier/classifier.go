package classifier

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/processing"
)

// Classifier assigns a backup type to every record. Records that already
// carry a type are left alone; everything unmatched falls back to the
// default type.
type Classifier struct {
	evaluator   *Evaluator
	defaultType string
	logger      *zap.Logger
}

// New builds a classifier from an already-parsed rule set.
func New(rules []Rule, defaultType string, logger *zap.Logger) (*Classifier, error) {
	if defaultType == "" {
		defaultType = processing.UnclassifiedType
	}
	evaluator, err := NewEvaluator(rules)
	if err != nil {
		return nil, err
	}
	return &Classifier{evaluator: evaluator, defaultType: defaultType, logger: logger}, nil
}

// NewFromFile loads classification rules from a YAML file.
func NewFromFile(rulesPath, defaultType string, logger *zap.Logger) (*Classifier, error) {
	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var ruleSet RuleSet
	if err := yaml.Unmarshal(data, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", rulesPath, err)
	}

	return New(ruleSet.Rules, defaultType, logger)
}

// Classify returns the record with its backup type resolved.
func (c *Classifier) Classify(record loader.BackupRecord) loader.BackupRecord {
	if record.BackupType != "" && record.BackupType != c.defaultType {
		return record
	}

	backupType := c.evaluator.Classify(record)
	if backupType == "" {
		backupType = c.defaultType
	}
	return record.WithBackupType(backupType)
}

// ClassifyBatch classifies every record in order.
func (c *Classifier) ClassifyBatch(records []loader.BackupRecord) []loader.BackupRecord {
	classified := make([]loader.BackupRecord, len(records))
	matched := 0
	for i, record := range records {
		classified[i] = c.Classify(record)
		if classified[i].BackupType != c.defaultType {
			matched++
		}
	}
	if c.logger != nil {
		c.logger.Debug("Batch classified",
			zap.Int("total", len(records)),
			zap.Int("matched", matched),
		)
	}
	return classified
}
