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

// UserVisibleError defines errors that should be displayed to end users
// with user-friendly messages and actionable suggestions.
type UserVisibleError interface {
	error

	// IsUserVisible returns true if this error should be shown to users.
	IsUserVisible() bool

	// UserMessage returns a user-friendly error message.
	UserMessage() string

	// UserSuggestion returns actionable guidance for resolving the error.
	// Returns empty string if no suggestion is available.
	UserSuggestion() string
}

// Coder is implemented by errors that carry a stable report code.
type Coder interface {
	error
	ErrorCode() string
}

// IsUserVisible implements UserVisibleError.
func (e *ValidationError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ValidationError) UserMessage() string { return e.Error() }

// UserSuggestion implements UserVisibleError.
func (e *ValidationError) UserSuggestion() string { return e.Suggestion }

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Error() }

// UserSuggestion implements UserVisibleError.
func (e *ConfigError) UserSuggestion() string {
	var v *ValidationError
	if As(e.Cause, &v) {
		return v.Suggestion
	}
	return ""
}

// ErrorCode implements Coder.
func (e *ValidationError) ErrorCode() string { return CodeValidation }

// ErrorCode implements Coder.
func (e *NotFoundError) ErrorCode() string { return CodeNotFound }

// ErrorCode implements Coder.
func (e *ConfigError) ErrorCode() string { return CodeConfig }

// ErrorCode implements Coder.
func (e *RenderError) ErrorCode() string { return CodeRender }

// ErrorCode implements Coder.
func (e *TimeoutError) ErrorCode() string { return CodeTimeout }

// ErrorCode implements Coder.
func (e *CrashError) ErrorCode() string { return CodeCrash }

// ErrorCode implements Coder.
func (e *ActionError) ErrorCode() string { return e.Code }

// ErrorCode implements Coder.
func (e *DataSourceError) ErrorCode() string { return e.Code }

// ErrorCode implements Coder.
func (e *ReportError) ErrorCode() string { return CodeReport }

// ErrorCode implements Coder.
func (e *TaskError) ErrorCode() string { return e.Code }
