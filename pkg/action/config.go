package action

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tombee/chord/pkg/errors"
)

// Config is a step configuration decoded as an object.
type Config map[string]interface{}

// ConfigOf returns v as a Config. A nil value is an empty Config.
func ConfigOf(v interface{}) (Config, error) {
	switch t := v.(type) {
	case nil:
		return Config{}, nil
	case map[string]interface{}:
		return Config(t), nil
	case Config:
		return t, nil
	default:
		return nil, &errors.ConfigError{Key: "config", Reason: fmt.Sprintf("expected an object, got %T", v)}
	}
}

// String returns the string at key, or def when the key is absent.
func (c Config) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// RequireString returns the non-empty string at key.
func (c Config) RequireString(key string) (string, error) {
	s := c.String(key, "")
	if s == "" {
		return "", &errors.ConfigError{Key: "config." + key, Reason: "required"}
	}
	return s, nil
}

// Int returns the integer at key, or def when the key is absent.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			return 0, &errors.ConfigError{Key: "config." + key, Reason: "not an integer", Cause: err}
		}
		return i, nil
	default:
		return 0, &errors.ConfigError{Key: "config." + key, Reason: fmt.Sprintf("not an integer: %T", v)}
	}
}

// Duration reads key as seconds (number) or a Go duration string.
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case string:
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, &errors.ConfigError{Key: "config." + key, Reason: "not a duration", Cause: err}
		}
		return d, nil
	default:
		return 0, &errors.ConfigError{Key: "config." + key, Reason: fmt.Sprintf("not a duration: %T", v)}
	}
}

// Map returns the object at key, or nil.
func (c Config) Map(key string) map[string]interface{} {
	m, _ := c[key].(map[string]interface{})
	return m
}
