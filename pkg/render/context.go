// Package render holds the template namespace of a task and evaluates
// templates and conditions against it.
//
// The namespace has six top-level keys:
//
//	def   constant data declared by the flow
//	pre   outputs of the pre-stage (pre.step.<id>.value)
//	case  the current row
//	step  outputs of completed steps of the current case (step.<id>.value)
//	dyn   values registered explicitly by steps that declare dyn
//	curr  facts about the step being run (curr.step, curr.round, curr.row)
//
// A base Context (def and pre) is built once per task and never written
// after the pre-stage. ForCase returns a deep copy that belongs to a single
// case executor.
package render

import (
	"strings"
)

// Namespace names.
const (
	NSDef  = "def"
	NSPre  = "pre"
	NSCase = "case"
	NSStep = "step"
	NSDyn  = "dyn"
	NSCurr = "curr"

	// ResultKey binds the raw step result while an assertion is evaluated.
	ResultKey = "res"
)

// Context is a nested template namespace.
// A Context is not safe for concurrent writes; reads of a base context
// shared between cases are safe as long as nobody writes to it.
type Context struct {
	data map[string]interface{}
}

// NewContext creates a base context from flow constants and pre-stage
// outputs. Both maps are copied.
func NewContext(def, pre map[string]interface{}) *Context {
	data := make(map[string]interface{}, 6)
	if def == nil {
		def = map[string]interface{}{}
	}
	data[NSDef] = deepCopy(def)
	if pre != nil {
		data[NSPre] = deepCopy(pre)
	}
	return &Context{data: data}
}

// ForCase returns a case-scoped copy with row bound as case and empty
// step and dyn namespaces.
func (c *Context) ForCase(row interface{}) *Context {
	clone := c.Clone()
	clone.data[NSCase] = deepCopy(row)
	clone.data[NSStep] = map[string]interface{}{}
	clone.data[NSDyn] = map[string]interface{}{}
	clone.data[NSCurr] = map[string]interface{}{}
	return clone
}

// Clone deep-copies the context.
func (c *Context) Clone() *Context {
	return &Context{data: deepCopy(c.data).(map[string]interface{})}
}

// Data returns the underlying namespace map. Callers must not modify it.
func (c *Context) Data() map[string]interface{} {
	return c.data
}

// Set writes value under ns.key, creating the namespace if needed.
func (c *Context) Set(ns, key string, value interface{}) {
	m, ok := c.data[ns].(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
		c.data[ns] = m
	}
	m[key] = value
}

// SetStepValue registers a completed step's result at step.<id>.value.
func (c *Context) SetStepValue(stepID string, value interface{}) {
	c.Set(NSStep, stepID, map[string]interface{}{"value": value})
}

// SetDyn registers value at dyn.<name>.
func (c *Context) SetDyn(name string, value interface{}) {
	c.Set(NSDyn, name, value)
}

// SetCurr writes curr.<key>.
func (c *Context) SetCurr(key string, value interface{}) {
	c.Set(NSCurr, key, value)
}

// Get resolves a dot-separated path such as "step.login.value.token".
func (c *Context) Get(path string) (interface{}, bool) {
	return lookup(c.data, path)
}

func lookup(root map[string]interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), ".")
	if path == "" {
		return nil, false
	}
	var current interface{} = root
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// deepCopy copies JSON-shaped values (maps, slices, scalars).
func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
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
