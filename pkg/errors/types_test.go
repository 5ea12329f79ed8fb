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

package errors_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	chorderrors "github.com/tombee/chord/pkg/errors"
)

func TestError_Messages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "validation with field",
			err:     &chorderrors.ValidationError{Field: "stage[0].id", Message: "required"},
			wantMsg: "validation failed on stage[0].id: required",
		},
		{
			name:    "validation without field",
			err:     &chorderrors.ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
		{
			name:    "config with key",
			err:     &chorderrors.ConfigError{Key: "step.a.action", Reason: "unknown action kind nope"},
			wantMsg: "config error at step.a.action: unknown action kind nope",
		},
		{
			name:    "timeout",
			err:     &chorderrors.TimeoutError{Operation: "step a", Duration: time.Second},
			wantMsg: "001 step a operation timed out after 1s",
		},
		{
			name:    "crash",
			err:     &chorderrors.CrashError{Operation: "step a", Value: "boom"},
			wantMsg: "002 step a crashed: boom",
		},
		{
			name:    "no case",
			err:     &chorderrors.DataSourceError{Code: chorderrors.CodeNoCase, Reason: "no case provided"},
			wantMsg: "011 no case provided",
		},
		{
			name:    "action",
			err:     &chorderrors.ActionError{Code: "http", Message: "status 500"},
			wantMsg: "http status 500",
		},
		{
			name:    "not found",
			err:     &chorderrors.NotFoundError{Resource: "flow", ID: "task1/flow.yml"},
			wantMsg: "flow not found: task1/flow.yml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestCode(t *testing.T) {
	wrapped := fmt.Errorf("case 3: %w", &chorderrors.TimeoutError{Operation: "step", Duration: time.Second})
	assert.Equal(t, chorderrors.CodeTimeout, chorderrors.Code(wrapped))
	assert.Equal(t, "http", chorderrors.Code(&chorderrors.ActionError{Code: "http"}))
	assert.Equal(t, "", chorderrors.Code(errors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, chorderrors.IsFatal(&chorderrors.ConfigError{Reason: "x"}))
	assert.True(t, chorderrors.IsFatal(chorderrors.Wrap(&chorderrors.ReportError{Sink: "csv", Op: "report"}, "stage s1")))
	assert.True(t, chorderrors.IsFatal(&chorderrors.DataSourceError{Code: chorderrors.CodeNoCase}))
	assert.False(t, chorderrors.IsFatal(&chorderrors.TimeoutError{}))
	assert.False(t, chorderrors.IsFatal(&chorderrors.RenderError{Template: "{{x}}"}))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &chorderrors.ReportError{Sink: "csv", Op: "report", Cause: cause}
	assert.ErrorIs(t, err, cause)

	var target *chorderrors.ReportError
	assert.True(t, chorderrors.As(chorderrors.Wrapf(err, "task %s", "t1"), &target))
	assert.Equal(t, "csv", target.Sink)
}

func TestConfigError_Suggestion(t *testing.T) {
	err := &chorderrors.ConfigError{
		Key:    "stage",
		Reason: "invalid flow",
		Cause:  &chorderrors.ValidationError{Field: "stage", Message: "empty", Suggestion: "declare at least one stage"},
	}
	assert.Equal(t, "declare at least one stage", err.UserSuggestion())
	assert.True(t, err.IsUserVisible())
}
