// Package transform provides the jq action: a jq query run over a rendered
// input value, with the case namespaces bound as jq variables.
package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/tombee/chord/internal/jq"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

// Kind is the registered action kind.
const Kind = "jq"

// CodeQuery is the ActionError code of a failed query.
const CodeQuery = "040"

// Config holds defaults shared by every jq step.
type Config struct {
	// Timeout bounds one query evaluation (default: 1s)
	Timeout time.Duration

	// MaxInputSize is the maximum input size in bytes (default: 10MB)
	MaxInputSize int64
}

// ConfigFrom reads defaults from the action section of the config file.
func ConfigFrom(defaults map[string]interface{}) (Config, error) {
	cfg := action.Config(defaults)
	timeout, err := cfg.Duration("timeout", jq.DefaultTimeout)
	if err != nil {
		return Config{}, err
	}
	size, err := cfg.Int("max_input_size", jq.DefaultMaxInputSize)
	if err != nil {
		return Config{}, err
	}
	return Config{Timeout: timeout, MaxInputSize: int64(size)}, nil
}

// Factory builds jq actions.
type Factory struct {
	executor *jq.Executor
}

// NewFactory creates a jq factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{executor: jq.NewExecutor(cfg.Timeout, cfg.MaxInputSize)}
}

// Create checks the query once so a malformed expression fails the stage
// before any case runs.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	query, err := cfg.RequireString("query")
	if err != nil {
		return nil, err
	}
	if arg.IsTaskShared(query) {
		query, err = arg.RenderString(query)
		if err != nil {
			return nil, err
		}
		if err := f.executor.Validate(query); err != nil {
			return nil, &errors.ConfigError{Key: "config.query", Reason: err.Error()}
		}
		return &runner{executor: f.executor, query: query}, nil
	}
	return &runner{executor: f.executor}, nil
}

type runner struct {
	executor *jq.Executor

	// query is set when it does not depend on the case
	query string
}

// Run evaluates the query over config "input". Without an input the query
// runs over null and reads the case through $def, $pre, $case, $step and
// $dyn.
func (r *runner) Run(ctx context.Context, arg action.RunArg) (interface{}, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}

	query := r.query
	if query == "" {
		query, err = arg.RenderString(cfg.String("query", ""))
		if err != nil {
			return nil, err
		}
	}

	input, err := arg.RenderValue(cfg["input"])
	if err != nil {
		return nil, err
	}

	vars := make(map[string]interface{})
	data := arg.Context().Data()
	for _, ns := range []string{"def", "pre", "case", "step", "dyn"} {
		if v, ok := data[ns]; ok {
			vars[ns] = v
		} else {
			vars[ns] = nil
		}
	}

	out, err := r.executor.ExecuteWith(ctx, query, input, vars)
	if err != nil {
		return nil, &errors.ActionError{Code: CodeQuery, Message: fmt.Sprintf("jq %q failed", query), Cause: err}
	}
	return out, nil
}
