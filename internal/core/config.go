// Package core provides configuration management for the backup monitoring system.
package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Valid aggregation granularities for processing.granularities.
var validGranularities = map[string]bool{"day": true, "week": true, "month": true}

// Config holds all system configuration with validation.
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Enabled        bool   `yaml:"enabled"`
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		DBName         string `yaml:"dbname"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`

	Classifier struct {
		RulesFile         string `yaml:"rules_file"`
		DefaultBackupType string `yaml:"default_backup_type"`
	} `yaml:"classifier"`

	Processing struct {
		Granularities []string `yaml:"granularities"`
	} `yaml:"processing"`

	AnomalyDetection struct {
		Enabled             bool    `yaml:"enabled"`
		ThresholdMultiplier float64 `yaml:"threshold_multiplier"`
		MinSamples          int     `yaml:"min_samples"`
		LookbackPeriods     int     `yaml:"lookback_periods"`
	} `yaml:"anomaly_detection"`

	Reporting struct {
		OutputDirectory string   `yaml:"output_directory"`
		Formats         []string `yaml:"formats"`
	} `yaml:"reporting"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// DefaultConfig returns a configuration with every knob at its documented default.
func DefaultConfig() *Config {
	var c Config
	c.App.Name = "backup-monitor"
	c.App.Version = "dev"
	c.App.LogLevel = "info"
	c.Processing.Granularities = []string{"day", "week", "month"}
	c.AnomalyDetection.Enabled = true
	c.AnomalyDetection.ThresholdMultiplier = 2.0
	c.AnomalyDetection.MinSamples = 5
	c.AnomalyDetection.LookbackPeriods = 7
	c.Reporting.OutputDirectory = "reports/output"
	c.Reporting.Formats = []string{"json", "csv", "html"}
	c.Server.Addr = ":8081"
	return &c
}

// LoadConfig reads and validates configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ApplyEnvOverrides()
	return config, nil
}

// Validate checks if configuration values are valid.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name cannot be empty")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		return fmt.Errorf("app.log_level must be one of: debug, info, warn, error")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host cannot be empty")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("database.port must be between 1 and 65535")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user cannot be empty")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database.dbname cannot be empty")
		}
		if c.Database.MaxConnections <= 0 {
			return fmt.Errorf("database.max_connections must be positive")
		}
	}

	if len(c.Processing.Granularities) == 0 {
		return fmt.Errorf("processing.granularities cannot be empty")
	}
	for _, g := range c.Processing.Granularities {
		if !validGranularities[g] {
			return fmt.Errorf("processing.granularities: unknown granularity %q", g)
		}
	}

	if c.AnomalyDetection.ThresholdMultiplier <= 0 {
		return fmt.Errorf("anomaly_detection.threshold_multiplier must be positive")
	}
	if c.AnomalyDetection.MinSamples < 1 {
		return fmt.Errorf("anomaly_detection.min_samples must be at least 1")
	}
	if c.AnomalyDetection.LookbackPeriods < 1 {
		return fmt.Errorf("anomaly_detection.lookback_periods must be at least 1")
	}

	for _, f := range c.Reporting.Formats {
		switch f {
		case "json", "csv", "html":
		default:
			return fmt.Errorf("reporting.formats: unsupported format %q", f)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("BMON_DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if user := os.Getenv("BMON_DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("BMON_DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("BMON_DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}
	if logLevel := os.Getenv("BMON_LOG_LEVEL"); logLevel != "" {
		c.App.LogLevel = logLevel
	}
}

// GetDatabaseURL returns the PostgreSQL connection string.
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable&pool_max_conns=%d",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.MaxConnections,
	)
}
