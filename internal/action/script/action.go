// Package script provides the script action: an expr-lang expression run
// over the case namespaces, returning whatever value it computes.
package script

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

// Kind is the registered action kind.
const Kind = "script"

// CodeEval is the ActionError code of a failed evaluation.
const CodeEval = "090"

// Namespaces bound as top-level names. Missing ones are nil.
var namespaces = []string{"def", "pre", "case", "step", "dyn", "curr"}

// Factory builds script actions.
type Factory struct{}

// NewFactory creates a script factory.
func NewFactory() *Factory { return &Factory{} }

// Create compiles a task-shared expression once. Expressions that template
// in case values are compiled on every run.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	src, err := cfg.RequireString("expr")
	if err != nil {
		return nil, err
	}
	if !arg.IsTaskShared(src) {
		return &runner{}, nil
	}
	src, err = arg.RenderString(src)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(src)
	if err != nil {
		return nil, &errors.ConfigError{Key: "config.expr", Reason: err.Error()}
	}
	return &runner{program: program}, nil
}

type runner struct {
	// program is set when the expression does not depend on the case
	program *vm.Program
}

// Run evaluates config "expr" with def, pre, case, step, dyn and curr bound,
// plus the rendered config "input" as input.
func (r *runner) Run(_ context.Context, arg action.RunArg) (interface{}, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}

	program := r.program
	if program == nil {
		src, err := arg.RenderString(cfg.String("expr", ""))
		if err != nil {
			return nil, err
		}
		program, err = expr.Compile(src)
		if err != nil {
			return nil, &errors.ActionError{Code: CodeEval, Message: "expression does not compile", Cause: err}
		}
	}

	input, err := arg.RenderValue(cfg["input"])
	if err != nil {
		return nil, err
	}

	data := arg.Context().Data()
	env := make(map[string]interface{}, len(namespaces)+1)
	for _, ns := range namespaces {
		env[ns] = data[ns]
	}
	env["input"] = input

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, &errors.ActionError{Code: CodeEval, Message: fmt.Sprintf("expression %q failed", program.Source().String()), Cause: err}
	}
	return normalize(out), nil
}

// normalize widens numbers to the int64 and float64 the rest of the
// namespaces carry.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case float32:
		return float64(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	default:
		return v
	}
}
