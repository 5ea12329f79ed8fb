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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

const okFlow = `
stage:
  - id: s1
    step: [say]
step:
  say:
    action: echo
    config: "{{case.x}}"
`

func writeJob(t *testing.T, tasks map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, doc := range tasks {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "flow.yml"), []byte(doc), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "case.csv"), []byte("x\n1\n2\n"), 0644))
	}
	return root
}

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	doc := "log:\n  level: error\n  format: json\nreport:\n  kind: []\n"
	require.NoError(t, os.WriteFile(p, []byte(doc), 0644))
	return p
}

func execute(t *testing.T, opts Options, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := NewRootCommand(opts)
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(Options{})

	assert.Equal(t, "chord", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{"config", "log-level", "json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "schedule", "validate", "version"})
}

func TestVersion(t *testing.T) {
	out, err := execute(t, Options{Version: "1.2.3", Commit: "abc123"}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chord version 1.2.3")
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "unknown")
}

func TestVersion_ActionsJSON(t *testing.T) {
	opts := Options{
		Version: "1.0.0",
		Register: func(reg *action.Registry) error {
			reg.MustRegister("custom", action.FactoryFunc(func(context.Context, action.CreateArg) (action.Action, error) {
				return action.Func(func(context.Context, action.RunArg) (interface{}, error) { return nil, nil }), nil
			}))
			return nil
		},
	}
	out, err := execute(t, opts, "version", "--actions", "--json")
	require.NoError(t, err)

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.0.0", info.Version)
	assert.Contains(t, info.Actions, "custom")
	assert.Contains(t, info.Actions, "http")
}

func TestRun(t *testing.T) {
	dir := writeJob(t, map[string]string{"smoke": okFlow})
	out, err := execute(t, Options{}, "run", dir, "-c", writeConfig(t), "-e", "e1")
	require.NoError(t, err)
	assert.Contains(t, out, "exec e1")
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, "ok")
}

func TestRun_FailedTaskExitCode(t *testing.T) {
	failFlow := okFlow + "    assert: 'res == \"never\"'\n"
	dir := writeJob(t, map[string]string{"smoke": okFlow, "broken": failFlow})

	out, err := execute(t, Options{}, "run", dir, "-c", writeConfig(t), "--json")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitFailed, exitErr.Code)
	assert.Contains(t, exitErr.Message, "1 of 2 tasks")

	var summary jobSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.False(t, summary.OK)
	require.Len(t, summary.Tasks, 2)
	assert.Equal(t, "broken", summary.Tasks[0].Task)
	assert.Equal(t, "fail", summary.Tasks[0].State)
}

func TestRun_NothingToRun(t *testing.T) {
	_, err := execute(t, Options{}, "run", t.TempDir(), "-c", writeConfig(t))
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitInvalidFlow, exitErr.Code)
}

func TestValidate(t *testing.T) {
	unknown := `
stage:
  - id: s1
    step: [a]
step:
  a:
    action: teleport
`
	dir := writeJob(t, map[string]string{"good": okFlow, "bad": unknown})

	out, err := execute(t, Options{}, "validate", dir, "-c", writeConfig(t))
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitInvalidFlow, exitErr.Code)
	assert.Contains(t, out, "ok    good")
	assert.Contains(t, out, "FAIL  bad")
	assert.Contains(t, out, `unknown action kind "teleport"`)

	out, err = execute(t, Options{}, "validate", dir, "-c", writeConfig(t), "-t", "good", "--json")
	require.NoError(t, err)
	var checks []taskCheck
	require.NoError(t, json.Unmarshal([]byte(out), &checks))
	require.Len(t, checks, 1)
	assert.Equal(t, []string{"x"}, checks[0].Columns)
}

func TestSchedule_InvalidCron(t *testing.T) {
	dir := writeJob(t, map[string]string{"smoke": okFlow})
	_, err := execute(t, Options{}, "schedule", dir, "--cron", "not a cron", "-c", writeConfig(t))
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitInvalidFlow, exitErr.Code)

	_, err = execute(t, Options{}, "schedule", dir)
	assert.ErrorContains(t, err, `required flag(s) "cron" not set`)
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: ExitFailed, Message: "job failed", Cause: errors.New("boom")}
	assert.Equal(t, "job failed: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}
