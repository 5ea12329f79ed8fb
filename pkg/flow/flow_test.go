package flow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chord/pkg/errors"
)

const sampleFlow = `
version: "1"
def:
  host: example.com
pre:
  step: [token]
stage:
  - id: smoke
    concurrency: 2
    round: 3
    duration: 30
    break_on: stage_fail
    case_filter: "{{case.x}} > 1"
    step: [login, check]
  - id: load
    round: 0
    step: [check]
step:
  token:
    action: echo
    config: abc
  login:
    action: http
    config:
      url: "https://{{def.host}}/login"
    timeout: 1500ms
  check:
    action: echo
    config: "{{step.login.value}}"
    assert: "res != nil"
    dyn: last
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleFlow))
	require.NoError(t, err)

	assert.Equal(t, "1", f.Version)
	assert.Equal(t, "example.com", f.Def["host"])
	assert.Equal(t, []string{"token"}, f.PreSteps())
	assert.Equal(t, []string{"smoke", "load"}, f.StageIDs())
	assert.Equal(t, []string{"login", "check"}, f.StageStepIDs())

	smoke, ok := f.Stage("smoke")
	require.True(t, ok)
	assert.Equal(t, 2, smoke.Concurrency)
	assert.Equal(t, 3, smoke.RoundLimit())
	assert.Equal(t, 30*time.Second, smoke.Duration.Std())
	assert.True(t, smoke.BreaksOnFail())
	assert.Equal(t, "{{case.x}} > 1", smoke.CaseFilter)

	load, ok := f.Stage("load")
	require.True(t, ok)
	assert.Equal(t, DefaultConcurrency, load.Concurrency)
	assert.Equal(t, 0, load.RoundLimit())
	assert.Equal(t, DefaultStageDuration, load.Duration.Std())
	assert.False(t, load.BreaksOnFail())

	login, ok := f.Step("login")
	require.True(t, ok)
	assert.Equal(t, "login", login.ID)
	assert.Equal(t, "http", login.Action)
	assert.Equal(t, 1500*time.Millisecond, login.Timeout.Std())
	assert.Equal(t, map[string]interface{}{"url": "https://{{def.host}}/login"}, login.Config)

	check, _ := f.Step("check")
	assert.Equal(t, DefaultStepTimeout, check.Timeout.Std())
	assert.Equal(t, "last", check.Dyn)
	assert.Equal(t, "res != nil", check.Assert)

	_, ok = f.Stage("missing")
	assert.False(t, ok)
}

func TestParse_Defaults(t *testing.T) {
	f, err := Parse([]byte(`
stage:
  - id: s1
    step: [a]
step:
  a:
    action: echo
`))
	require.NoError(t, err)
	s, _ := f.Stage("s1")
	assert.Equal(t, DefaultRound, s.RoundLimit())
	assert.Nil(t, f.PreSteps())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "not yaml",
			doc:     "stage: [",
			wantMsg: "failed to parse flow document",
		},
		{
			name: "missing stage",
			doc: `
step:
  a: {action: echo}
`,
			wantMsg: "does not match schema",
		},
		{
			name: "unknown field",
			doc: `
stage:
  - {id: s1, step: [a], parallel: 3}
step:
  a: {action: echo}
`,
			wantMsg: "does not match schema",
		},
		{
			name: "step without action",
			doc: `
stage:
  - {id: s1, step: [a]}
step:
  a: {config: x}
`,
			wantMsg: "does not match schema",
		},
		{
			name: "undefined step",
			doc: `
stage:
  - {id: s1, step: [a, b]}
step:
  a: {action: echo}
`,
			wantMsg: "undefined step: b",
		},
		{
			name: "undefined pre step",
			doc: `
pre: {step: [p]}
stage:
  - {id: s1, step: [a]}
step:
  a: {action: echo}
`,
			wantMsg: "undefined step: p",
		},
		{
			name: "duplicate stage",
			doc: `
stage:
  - {id: s1, step: [a]}
  - {id: s1, step: [a]}
step:
  a: {action: echo}
`,
			wantMsg: "duplicate stage ID: s1",
		},
		{
			name: "bad break_on",
			doc: `
stage:
  - {id: s1, step: [a], break_on: always}
step:
  a: {action: echo}
`,
			wantMsg: "does not match schema",
		},
		{
			name: "bad duration",
			doc: `
stage:
  - {id: s1, step: [a], duration: soon}
step:
  a: {action: echo}
`,
			wantMsg: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var cfgErr *errors.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "want ConfigError, got %T", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFlow), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Stages, 2)

	_, err = Load(filepath.Join(dir, "nope.yml"))
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{in: "5", want: 5 * time.Second},
		{in: "0.5", want: 500 * time.Millisecond},
		{in: "2m", want: 2 * time.Minute},
		{in: "", want: 0},
		{in: "-1", err: true},
		{in: "later", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Std())
		})
	}
}
