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
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := loader.Reset(ctx); err != nil {
//	    return errors.Wrap(err, "resetting loader")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target type,
// and if one is found, sets target to that error value and returns true.
//
// Usage:
//
//	var configErr *ConfigError
//	if errors.As(err, &configErr) {
//	    log.Printf("Config error at key: %s", configErr.Key)
//	}
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Code returns the report code of the first Coder in err's tree, or an empty
// string when there is none.
func Code(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// IsFatal reports whether err must abort the whole task rather than being
// recorded against a single case.
func IsFatal(err error) bool {
	var (
		cfg  *ConfigError
		ds   *DataSourceError
		rep  *ReportError
		task *TaskError
		nf   *NotFoundError
	)
	return errors.As(err, &cfg) || errors.As(err, &ds) || errors.As(err, &rep) ||
		errors.As(err, &task) || errors.As(err, &nf)
}
