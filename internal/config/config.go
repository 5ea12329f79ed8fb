// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads chord's runtime configuration: logging, report
// sinks, action defaults, tracing and the metrics endpoint.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// CHORD_* environment variables. The result is validated before use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	chorderrors "github.com/tombee/chord/pkg/errors"
)

// Report sink kinds.
const (
	ReportCSV      = "csv"
	ReportSQLite   = "sqlite"
	ReportPostgres = "postgres"
)

// Config represents the complete chord configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Job     JobConfig     `yaml:"job"`
	Report  ReportConfig  `yaml:"report"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Action holds per-kind action defaults, e.g. action.http.rate_limit.
	Action map[string]map[string]interface{} `yaml:"action,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`

	// Format: json, text or auto (text on a terminal)
	Format string `yaml:"format" validate:"oneof=json text auto"`

	AddSource bool `yaml:"add_source"`
}

// JobConfig configures how a job directory is run.
type JobConfig struct {
	// Parallel bounds the number of tasks run at once; 0 runs all together.
	Parallel int `yaml:"parallel" validate:"gte=0"`

	// FlowFile and CaseFile are looked up inside each task directory.
	FlowFile string `yaml:"flow_file" validate:"required"`
	CaseFile string `yaml:"case_file" validate:"required"`
}

// ReportConfig selects and configures report sinks.
type ReportConfig struct {
	// Kind lists the enabled sinks; every batch goes to each of them.
	Kind []string `yaml:"kind" validate:"dive,oneof=csv sqlite postgres"`

	CSV      CSVReportConfig      `yaml:"csv"`
	SQLite   SQLiteReportConfig   `yaml:"sqlite"`
	Postgres PostgresReportConfig `yaml:"postgres"`
}

// CSVReportConfig configures the CSV sink.
type CSVReportConfig struct {
	// Dir receives one result file per task
	Dir string `yaml:"dir"`
}

// SQLiteReportConfig configures the SQLite sink.
type SQLiteReportConfig struct {
	Path string `yaml:"path"`
}

// PostgresReportConfig configures the PostgreSQL sink.
type PostgresReportConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" validate:"omitempty,sqlident"`

	// ConnectTimeout bounds the initial connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name" validate:"required"`

	// Exporter: none, console, otlp_http
	Exporter string `yaml:"exporter" validate:"oneof=none console otlp_http"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`

	// SampleRatio is the fraction of tasks traced.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Job: JobConfig{
			FlowFile: "flow.yml",
			CaseFile: "case.csv",
		},
		Report: ReportConfig{
			Kind: []string{ReportCSV},
			CSV:  CSVReportConfig{Dir: "output"},
			SQLite: SQLiteReportConfig{
				Path: "chord.db",
			},
			Postgres: PostgresReportConfig{
				Table:          "chord_case",
				ConnectTimeout: 10 * time.Second,
			},
		},
		Tracing: TracingConfig{
			ServiceName: "chord",
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

// Load resolves the configuration. An empty configPath uses the default
// config file when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p, err := ConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				configPath = p
			}
		}
	}
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &chorderrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &chorderrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Job.FlowFile == "" {
		c.Job.FlowFile = d.Job.FlowFile
	}
	if c.Job.CaseFile == "" {
		c.Job.CaseFile = d.Job.CaseFile
	}
	if c.Report.CSV.Dir == "" {
		c.Report.CSV.Dir = d.Report.CSV.Dir
	}
	if c.Report.SQLite.Path == "" {
		c.Report.SQLite.Path = d.Report.SQLite.Path
	}
	if c.Report.Postgres.Table == "" {
		c.Report.Postgres.Table = d.Report.Postgres.Table
	}
	if c.Report.Postgres.ConnectTimeout == 0 {
		c.Report.Postgres.ConnectTimeout = d.Report.Postgres.ConnectTimeout
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies CHORD_* overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("CHORD_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("CHORD_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("CHORD_DEBUG"); val == "1" || val == "true" {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	}

	if val := os.Getenv("CHORD_JOB_PARALLEL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Job.Parallel = n
		}
	}

	if val := os.Getenv("CHORD_REPORT_KIND"); val != "" {
		var kinds []string
		for _, k := range strings.Split(val, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, strings.ToLower(k))
			}
		}
		c.Report.Kind = kinds
	}
	if val := os.Getenv("CHORD_REPORT_DIR"); val != "" {
		c.Report.CSV.Dir = val
	}
	if val := os.Getenv("CHORD_SQLITE_PATH"); val != "" {
		c.Report.SQLite.Path = val
	}
	if val := os.Getenv("CHORD_POSTGRES_DSN"); val != "" {
		c.Report.Postgres.DSN = val
	}

	if val := os.Getenv("CHORD_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CHORD_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val := os.Getenv("CHORD_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
}

var (
	sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks field rules and cross-field requirements.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, describe(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	for _, k := range c.Report.Kind {
		if k == ReportPostgres && c.Report.Postgres.DSN == "" {
			errs = append(errs, "report.postgres.dsn is required when the postgres sink is enabled")
		}
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp_http" && c.Tracing.Endpoint == "" {
		errs = append(errs, "tracing.endpoint is required for the otlp_http exporter")
	}

	if len(errs) > 0 {
		return &chorderrors.ValidationError{
			Field:      "config",
			Message:    strings.Join(errs, "; "),
			Suggestion: "check the config file and CHORD_* environment variables",
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s validation (got %v)", field, fe.Tag(), fe.Value())
	}
}

// ActionDefaults returns the configured defaults of an action kind.
func (c *Config) ActionDefaults(kind string) map[string]interface{} {
	if c.Action == nil {
		return nil
	}
	return c.Action[kind]
}
