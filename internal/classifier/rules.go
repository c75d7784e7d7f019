// Package classifier assigns backup types to records using ordered,
// YAML-defined matching rules.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonmax1987/Backup-Monitoring-Analytics-System/internal/loader"
)

// Operator is a comparison operator usable in a rule condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpRegex       Operator = "regex"
)

// Condition is a single field check. All conditions of a rule must match.
type Condition struct {
	Field         string   `yaml:"field"`
	Operator      Operator `yaml:"operator"`
	Value         any      `yaml:"value"`
	CaseSensitive *bool    `yaml:"case_sensitive"`
}

func (c Condition) caseSensitive() bool {
	return c.CaseSensitive == nil || *c.CaseSensitive
}

// Rule maps a set of conditions to a backup type. Rules are evaluated in
// order; the first full match wins.
type Rule struct {
	Name       string      `yaml:"name"`
	Conditions []Condition `yaml:"conditions"`
	BackupType string      `yaml:"backup_type"`
}

// RuleSet is the top-level document shape of a rules file.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Evaluator matches backup records against an ordered rule list.
type Evaluator struct {
	rules []Rule
}

func NewEvaluator(rules []Rule) (*Evaluator, error) {
	for _, rule := range rules {
		for _, cond := range rule.Conditions {
			switch cond.Operator {
			case OpEquals, OpNotEquals, OpContains, OpNotContains,
				OpStartsWith, OpEndsWith, OpIn, OpRegex:
			default:
				return nil, fmt.Errorf("rule %q: unknown operator %q", rule.Name, cond.Operator)
			}
			if cond.Operator == OpRegex {
				if _, err := regexp.Compile(fmt.Sprint(cond.Value)); err != nil {
					return nil, fmt.Errorf("rule %q: invalid regex: %w", rule.Name, err)
				}
			}
		}
	}
	return &Evaluator{rules: rules}, nil
}

// Classify returns the backup type of the first matching rule, or "" when no
// rule matches.
func (e *Evaluator) Classify(record loader.BackupRecord) string {
	fields := recordFields(record)
	for _, rule := range e.rules {
		if matchesAll(rule.Conditions, fields) {
			return rule.BackupType
		}
	}
	return ""
}

func matchesAll(conditions []Condition, fields map[string]any) bool {
	for _, cond := range conditions {
		if !evaluate(cond, fields) {
			return false
		}
	}
	return len(conditions) > 0
}

func evaluate(cond Condition, fields map[string]any) bool {
	value := lookupField(fields, cond.Field)
	if value == nil {
		return false
	}

	switch cond.Operator {
	case OpEquals:
		return equalValues(value, cond.Value)
	case OpNotEquals:
		return !equalValues(value, cond.Value)
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		got := fmt.Sprint(value)
		want := fmt.Sprint(cond.Value)
		if !cond.caseSensitive() {
			got = strings.ToLower(got)
			want = strings.ToLower(want)
		}
		switch cond.Operator {
		case OpContains:
			return strings.Contains(got, want)
		case OpNotContains:
			return !strings.Contains(got, want)
		case OpStartsWith:
			return strings.HasPrefix(got, want)
		default:
			return strings.HasSuffix(got, want)
		}
	case OpIn:
		choices, ok := cond.Value.([]any)
		if !ok {
			return false
		}
		for _, choice := range choices {
			if equalValues(value, choice) {
				return true
			}
		}
		return false
	case OpRegex:
		pattern := fmt.Sprint(cond.Value)
		if !cond.caseSensitive() {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(value))
	}
	return false
}

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// recordFields flattens a record into the field namespace rules address.
// Metadata keys are reachable as "metadata.<key>".
func recordFields(record loader.BackupRecord) map[string]any {
	fields := map[string]any{
		"backup_id":     record.BackupID,
		"status":        string(record.Status),
		"backup_type":   record.BackupType,
		"source_system": record.SourceSystem,
		"metadata":      record.Metadata,
	}
	return fields
}

// lookupField resolves a dot-notation path like "metadata.target".
func lookupField(fields map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = fields
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil
		}
	}
	if s, ok := current.(string); ok && s == "" {
		return nil
	}
	return current
}
