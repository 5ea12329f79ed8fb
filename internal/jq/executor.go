// Package jq runs jq expressions over step data with timeout and size limits.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout is the default execution time for jq expressions (1 second)
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the default maximum input size (10MB)
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor handles jq expression evaluation with timeout and size limits.
// Compiled programs are cached per expression and variable set.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64

	cache sync.Map // cacheKey -> *gojq.Code
}

type cacheKey struct {
	expression string
	vars       string
}

// NewExecutor creates a new jq executor with the given configuration.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}

	return &Executor{
		timeout:      timeout,
		maxInputSize: maxInputSize,
	}
}

// Execute runs expression against data. A single result is returned as is,
// several results as a list, none as nil.
func (e *Executor) Execute(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	return e.ExecuteWith(ctx, expression, data, nil)
}

// ExecuteWith is Execute with named variables bound as $name.
func (e *Executor) ExecuteWith(ctx context.Context, expression string, data interface{}, vars map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.validateInputSize(data); err != nil {
		return nil, err
	}

	names, values := splitVars(vars)
	code, err := e.compile(expression, names)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	iter := code.RunWithContext(execCtx, toQueryValue(data), values...)

	var results []interface{}
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if execCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("execution timeout after %v", e.timeout)
			}
			if haltErr, ok := err.(*gojq.HaltError); ok && haltErr.Value() == nil {
				break
			}
			return nil, err
		}
		results = append(results, fromQueryValue(v))
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Validate checks that expression parses and compiles.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return fmt.Errorf("invalid jq expression: %w", err)
	}

	_, err = gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("jq compilation failed: %w", err)
	}

	return nil
}

func (e *Executor) compile(expression string, names []string) (*gojq.Code, error) {
	key := cacheKey{expression: expression, vars: fmt.Sprint(names)}
	if cached, ok := e.cache.Load(key); ok {
		return cached.(*gojq.Code), nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	code, err := gojq.Compile(query, gojq.WithVariables(names))
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	e.cache.Store(key, code)
	return code, nil
}

// validateInputSize checks if the data size is within limits.
func (e *Executor) validateInputSize(data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if int64(len(jsonData)) > e.maxInputSize {
		return fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)",
			len(jsonData), e.maxInputSize)
	}

	return nil
}

// splitVars orders variables by name so the compiled program is reusable.
func splitVars(vars map[string]interface{}) ([]string, []interface{}) {
	if len(vars) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]interface{}, len(names))
	for i, name := range names {
		values[i] = toQueryValue(vars[name])
		names[i] = "$" + name
	}
	return names, values
}

// toQueryValue converts decoded step data into the value set gojq accepts.
// gojq rejects int64 and typed slices, so integers become int and
// containers are rebuilt as []interface{} and map[string]interface{}.
func toQueryValue(v interface{}) interface{} {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int32:
		return int(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = toQueryValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = toQueryValue(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	default:
		return v
	}
}

// fromQueryValue maps gojq integers back to int64. Results may share
// constants with the compiled program, so containers are copied.
func fromQueryValue(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = fromQueryValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = fromQueryValue(val)
		}
		return out
	default:
		return v
	}
}
