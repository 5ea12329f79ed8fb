// Package shell provides the shell action: run a command per case.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/render"
)

// Kind is the registered action kind.
const Kind = "shell"

// ActionError codes.
const (
	CodeCommand = "080"
	CodeStart   = "081"
)

// Config holds defaults shared by every shell step.
type Config struct {
	// WorkingDir is the working directory for shell commands
	WorkingDir string

	// AllowedCommands restricts which programs can be run (empty = allow all)
	AllowedCommands []string
}

// ConfigFrom reads the action.shell section of the config file.
func ConfigFrom(defaults map[string]interface{}) Config {
	raw := action.Config(defaults)
	cfg := Config{WorkingDir: raw.String("dir", "")}
	if list, ok := raw["allowed_commands"].([]interface{}); ok {
		for _, c := range list {
			cfg.AllowedCommands = append(cfg.AllowedCommands, render.ToString(c))
		}
	}
	return cfg
}

// Factory builds shell actions.
type Factory struct {
	config Config
}

// NewFactory creates a shell factory.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// Create implements action.Factory.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	if _, ok := cfg["command"]; !ok {
		return nil, &errors.ConfigError{Key: "config.command", Reason: "required"}
	}
	return action.Func(f.run), nil
}

// run executes config "command": a string runs via sh -c, a list runs
// directly. A non-zero exit is a result, so an assert on exit_code decides
// the case. The result is {stdout, stderr, exit_code, duration_ms}.
func (f *Factory) run(ctx context.Context, arg action.RunArg) (interface{}, error) {
	rendered, err := arg.RenderValue(arg.Config())
	if err != nil {
		return nil, err
	}
	inputs, err := action.ConfigOf(rendered)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	switch v := inputs["command"].(type) {
	case string:
		if err := f.allowed("sh"); err != nil {
			return nil, err
		}
		cmd = exec.CommandContext(ctx, "sh", "-c", v)
	case []interface{}:
		if len(v) == 0 {
			return nil, &errors.ActionError{Code: CodeCommand, Message: "command array is empty"}
		}
		args := make([]string, len(v))
		for i, a := range v {
			args[i] = render.ToString(a)
		}
		if err := f.allowed(args[0]); err != nil {
			return nil, err
		}
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	default:
		return nil, &errors.ActionError{Code: CodeCommand, Message: fmt.Sprintf("command must be string or array, got %T", v)}
	}

	cmd.Dir = inputs.String("dir", f.config.WorkingDir)

	// Custom variables extend the process environment
	if env := inputs.Map("env"); len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, render.ToString(v)))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err = cmd.Run()
	duration := time.Since(startTime)

	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok || ctx.Err() != nil {
			return nil, &errors.ActionError{Code: CodeStart, Message: "command failed to run", Cause: err}
		}
		exitCode = exitErr.ExitCode()
	}

	return map[string]interface{}{
		"stdout":      strings.TrimSpace(stdout.String()),
		"stderr":      strings.TrimSpace(stderr.String()),
		"exit_code":   int64(exitCode),
		"duration_ms": duration.Milliseconds(),
	}, nil
}

func (f *Factory) allowed(program string) error {
	if len(f.config.AllowedCommands) == 0 {
		return nil
	}
	for _, c := range f.config.AllowedCommands {
		if c == program {
			return nil
		}
	}
	return &errors.ActionError{Code: CodeCommand, Message: fmt.Sprintf("command %q is not allowed", program)}
}
