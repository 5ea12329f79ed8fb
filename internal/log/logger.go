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

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/tombee/chord/pkg/ident"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
	// FormatAuto picks text for terminals and JSON otherwise.
	FormatAuto Format = "auto"
)

// LevelTrace is more verbose than Debug (rendered configs, action payloads).
const LevelTrace = slog.Level(-8)

// Standard field keys for structured logging.
const (
	TaskIDKey   = "task_id"
	StageIDKey  = "stage_id"
	CaseIDKey   = "case_id"
	StepIDKey   = "step_id"
	ActionKey   = "action"
	StateKey    = "state"
	DurationKey = "duration_ms"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: info
	Level string

	// Format sets the output format (json, text, auto).
	// Default: auto
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatAuto,
		Output: os.Stderr,
	}
}

// FromEnv creates a Config from environment variables:
//   - CHORD_DEBUG: true/1 enables debug level and source logging (takes precedence)
//   - CHORD_LOG_LEVEL: trace, debug, info, warn, error
//   - CHORD_LOG_FORMAT: json, text, auto
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("CHORD_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	} else if level := os.Getenv("CHORD_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}

	if format := os.Getenv("CHORD_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch resolveFormat(cfg.Format, out) {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

func resolveFormat(format Format, out io.Writer) Format {
	if format != FormatAuto && format != "" {
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatJSON
}

// ParseLevel converts a string level to slog.Level. Unknown levels are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTask returns a logger tagged with the task identity.
func WithTask(logger *slog.Logger, id ident.Task) *slog.Logger {
	return logger.With(slog.String(TaskIDKey, id.String()))
}

// WithStage returns a logger tagged with a stage id.
func WithStage(logger *slog.Logger, stageID string) *slog.Logger {
	return logger.With(slog.String(StageIDKey, stageID))
}

// WithCase returns a logger tagged with a case identity.
func WithCase(logger *slog.Logger, id ident.Case) *slog.Logger {
	return logger.With(slog.String(CaseIDKey, id.String()))
}

// WithStep returns a logger tagged with a step identity and its action kind.
func WithStep(logger *slog.Logger, id ident.Step, kind string) *slog.Logger {
	return logger.With(
		slog.String(StepIDKey, id.Name),
		slog.String(ActionKey, kind),
	)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a duration attribute in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(DurationKey, ms)
}

// Trace logs a message at trace level.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	ctx := context.Background()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	logger.LogAttrs(ctx, LevelTrace, msg, attrs...)
}

// SanitizeSecret completely redacts a secret value.
func SanitizeSecret(string) string {
	return "[REDACTED]"
}
