package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// TemplateFuncMap returns the functions available inside templates.
func TemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// Math
		"add": add,
		"sub": sub,

		// JSON
		"json":     toJSON,
		"fromJson": fromJSON,

		// Strings
		"upper":     strings.ToUpper,
		"lower":     strings.ToLower,
		"trim":      strings.TrimSpace,
		"split":     strings.Split,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"join":      joinFunc,
		"b64enc":    b64enc,
		"b64dec":    b64dec,

		// Collections
		"hasKey": hasKey,

		// Values
		"default":  defaultFunc,
		"toInt":    toInt,
		"toString": toString,

		// Generators
		"uuid":       func() string { return uuid.NewString() },
		"unixMillis": func() int64 { return time.Now().UnixMilli() },
		"now":        func() string { return time.Now().UTC().Format(time.RFC3339) },
	}
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json: %w", err)
	}
	return string(b), nil
}

func fromJSON(s string) (interface{}, error) {
	return DecodeJSON([]byte(s))
}

func joinFunc(arr interface{}, sep string) (string, error) {
	v := reflect.ValueOf(arr)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return "", fmt.Errorf("join: expected a list, got %T", arr)
	}
	parts := make([]string, v.Len())
	for i := 0; i < v.Len(); i++ {
		parts[i] = toString(v.Index(i).Interface())
	}
	return strings.Join(parts, sep), nil
}

func b64enc(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func b64dec(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("b64dec: %w", err)
	}
	return string(b), nil
}

func hasKey(m interface{}, key string) bool {
	mm, ok := m.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = mm[key]
	return ok
}

func lengthOf(v interface{}) (int, error) {
	if v == nil {
		return 0, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	default:
		return 0, fmt.Errorf("len: unsupported type %T", v)
	}
}

// defaultFunc returns def when value is nil or empty: {{default "guest" case.user}}.
func defaultFunc(def, value interface{}) interface{} {
	if value == nil {
		return def
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		if rv.Len() == 0 {
			return def
		}
	}
	return value
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("toInt: %w", err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("toInt: cannot convert %T", v)
	}
}

func add(a, b interface{}) (int64, error) {
	x, err := toInt(a)
	if err != nil {
		return 0, err
	}
	y, err := toInt(b)
	if err != nil {
		return 0, err
	}
	return x + y, nil
}

func sub(a, b interface{}) (int64, error) {
	x, err := toInt(a)
	if err != nil {
		return 0, err
	}
	y, err := toInt(b)
	if err != nil {
		return 0, err
	}
	return x - y, nil
}

// containsFunc checks whether a list holds an element, a map holds a key or
// a string holds a substring. Exposed to conditions as has and includes.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}
	collection, target := args[0], args[1]
	if collection == nil {
		return false, nil
	}

	v := reflect.ValueOf(collection)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if reflect.DeepEqual(v.Index(i).Interface(), target) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		key := reflect.ValueOf(target)
		if !key.IsValid() || !key.Type().AssignableTo(v.Type().Key()) {
			return false, nil
		}
		return v.MapIndex(key).IsValid(), nil
	case reflect.String:
		substr, ok := target.(string)
		if !ok {
			return false, nil
		}
		return substr != "" && strings.Contains(v.String(), substr), nil
	default:
		return false, nil
	}
}

// lenFunc is the condition-side length helper: length(step.list.value) > 0.
func lenFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("length requires exactly 1 argument, got %d", len(args))
	}
	return lengthOf(args[0])
}

// DecodeJSON decodes JSON keeping integral numbers as int64 and the rest
// as float64.
func DecodeJSON(data []byte) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level JSON value")
	}
	return normalizeNumbers(out), nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}

// ToString formats a value the way templates print it. Objects and lists
// are rendered as JSON.
func ToString(v interface{}) string {
	return toString(v)
}
