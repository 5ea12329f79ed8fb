package render

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/chord/pkg/errors"
)

// Evaluator evaluates boolean conditions with expr-lang.
// It caches compiled programs keyed by the rendered expression text.
type Evaluator struct {
	cache map[string]*compiled
	mu    sync.RWMutex
}

type compiled struct {
	program *vm.Program
	refs    [][]string
}

// NewEvaluator creates a new condition evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*compiled),
	}
}

var defaultEvaluator = NewEvaluator()

// Evaluate runs a rendered expression against env.
// An empty expression is true.
func (e *Evaluator) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	prog, err := e.compile(expression)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax; string values substituted from templates need quotes",
		}
	}

	// "contains" is an expr operator, so the helpers are exposed as has/includes.
	runEnv := make(map[string]interface{}, len(env)+3)
	for k, v := range env {
		runEnv[k] = v
	}
	runEnv["has"] = containsFunc
	runEnv["includes"] = containsFunc
	runEnv["length"] = lenFunc

	if ref, ok := undefinedRef(prog.refs, runEnv); ok {
		return false, &errors.RenderError{
			Template: truncateForError(expression),
			Cause:    fmt.Errorf("undefined reference %s", ref),
		}
	}

	result, err := expr.Run(prog.program, runEnv)
	if err != nil {
		return false, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("expression evaluation failed: %s", err.Error()),
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

func (e *Evaluator) compile(expression string) (*compiled, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	// Names are only known per case, so the program is compiled without an
	// environment and every reference is resolved before each run.
	refs := &refCollector{callees: map[ast.Node]bool{}, locals: map[string]bool{}}
	program, err := expr.Compile(expression,
		expr.AsBool(),
		expr.Patch(refs),
	)
	if err != nil {
		return nil, err
	}
	prog := &compiled{program: program, refs: refs.result()}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// refCollector records the dotted name paths an expression reads.
type refCollector struct {
	paths   [][]string
	callees map[ast.Node]bool
	locals  map[string]bool
}

func (r *refCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		r.callees[n.Callee] = true
	case *ast.VariableDeclaratorNode:
		r.locals[n.Name] = true
	case *ast.IdentifierNode, *ast.MemberNode:
		if path, ok := refPath(n); ok {
			r.paths = append(r.paths, path)
		}
	}
}

func (r *refCollector) result() [][]string {
	var out [][]string
	seen := map[string]bool{}
	for _, p := range r.paths {
		if r.locals[p[0]] || p[0] == "$env" {
			continue
		}
		key := strings.Join(p, ".")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	for node := range r.callees {
		id, ok := node.(*ast.IdentifierNode)
		if !ok {
			continue
		}
		out = dropPath(out, id.Value)
	}
	return out
}

func dropPath(paths [][]string, name string) [][]string {
	kept := paths[:0]
	for _, p := range paths {
		if len(p) == 1 && p[0] == name {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// refPath returns the path of a plain a.b.c access. Optional and computed
// members end the checked path.
func refPath(node ast.Node) ([]string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return []string{n.Value}, true
	case *ast.MemberNode:
		prop, ok := n.Property.(*ast.StringNode)
		if !ok || n.Optional || n.Method {
			return nil, false
		}
		base, ok := refPath(n.Node)
		if !ok {
			return nil, false
		}
		return append(base, prop.Value), true
	}
	return nil, false
}

// undefinedRef reports the first path that does not resolve through the
// nested maps of env. Values that are not maps are left to expr.
func undefinedRef(refs [][]string, env map[string]interface{}) (string, bool) {
	for _, path := range refs {
		var cur interface{} = env
		for i, seg := range path {
			m, ok := cur.(map[string]interface{})
			if !ok {
				break
			}
			v, exists := m[seg]
			if !exists {
				return strings.Join(path[:i+1], "."), true
			}
			cur = v
		}
	}
	return "", false
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Evaluate renders the condition against the context plus extra, then
// evaluates the rendered text. Template references are substituted
// textually, so "{{case.x}} > 1" runs as "5 > 1". Bare identifiers
// (case.x, res.code) are also resolvable inside the expression.
func (c *Context) Evaluate(condition string, extra map[string]interface{}) (bool, error) {
	rendered, err := c.renderWith(condition, extra)
	if err != nil {
		return false, err
	}

	env := c.data
	if len(extra) > 0 {
		env = make(map[string]interface{}, len(c.data)+len(extra))
		for k, v := range c.data {
			env[k] = v
		}
		for k, v := range extra {
			env[k] = v
		}
	}
	return defaultEvaluator.Evaluate(rendered, env)
}

// EvaluateBool is Evaluate with errors degraded to false. The error is
// logged at debug level.
func (c *Context) EvaluateBool(condition string, extra map[string]interface{}) bool {
	ok, err := c.Evaluate(condition, extra)
	if err != nil {
		slog.Debug("condition evaluated to false", "condition", condition, "error", err)
		return false
	}
	return ok
}
