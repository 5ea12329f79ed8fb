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

package errors

import (
	"fmt"
	"time"
)

// Error codes carried by the engine's errors. They are stable and appear in
// reports, so they must not be renumbered.
const (
	CodeTimeout       = "001"
	CodeCrash         = "002"
	CodeCancelled     = "003"
	CodeNoCase        = "011"
	CodePreStep       = "012"
	CodePreFail       = "020"
	CodePreErr        = "021"
	CodeConfig        = "100"
	CodeRender        = "110"
	CodeDataSource    = "120"
	CodeReport        = "130"
	CodeNotFound      = "140"
	CodeValidation    = "150"
	CodeActionUnknown = "199"
)

// ValidationError represents a single malformed field in a flow or config document.
type ValidationError struct {
	// Field identifies which field failed validation (e.g. "stage[0].concurrency")
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a missing task directory, flow file or step.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "task", "flow", "step")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError represents an invalid flow or configuration value.
// A ConfigError raised while building a task aborts it before any case runs.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "step.login.action")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error: %s", e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// RenderError is returned when a template fails to parse or references an
// undefined variable.
type RenderError struct {
	// Template is the (possibly truncated) template text
	Template string

	// Cause is the underlying template or expression error
	Cause error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return fmt.Sprintf("render %q: %v", e.Template, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a step that exceeded its configured budget.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "step login")
	Operation string

	// Duration is the budget that was exceeded
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s operation timed out after %v", CodeTimeout, e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CrashError represents an action that panicked. The panic value and the
// goroutine stack are kept for the report.
type CrashError struct {
	Operation string
	Value     any
	Stack     []byte
}

// Error implements the error interface.
func (e *CrashError) Error() string {
	return fmt.Sprintf("%s %s crashed: %v", CodeCrash, e.Operation, e.Value)
}

// ActionError is a domain error surfaced by an action. Code and Message are
// opaque to the engine and are recorded as-is.
type ActionError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ActionError) Unwrap() error {
	return e.Cause
}

// DataSourceError represents a failing case loader.
type DataSourceError struct {
	// Code is one of the Code* constants
	Code string

	// Reason explains what went wrong
	Reason string

	// Cause is the underlying I/O error
	Cause error
}

// Error implements the error interface.
func (e *DataSourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DataSourceError) Unwrap() error {
	return e.Cause
}

// ReportError represents a failing report sink.
type ReportError struct {
	// Sink names the reporter (e.g., "csv", "sqlite")
	Sink string

	// Op is the lifecycle call that failed (start, report, end)
	Op string

	// Cause is the underlying I/O error
	Cause error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	return fmt.Sprintf("%s report %s %s: %v", CodeReport, e.Sink, e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// TaskError aborts a task. It wraps the error that made the task
// unrecoverable together with a stable code.
type TaskError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TaskError) Unwrap() error {
	return e.Cause
}
