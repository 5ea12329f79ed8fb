package http

import (
	"time"

	"github.com/tombee/chord/pkg/action"
)

// Config holds defaults shared by every http step of a task.
type Config struct {
	// Timeout is the default timeout for requests (default: 30s)
	Timeout time.Duration

	// AllowedHosts restricts which hosts can be contacted (empty = allow all)
	AllowedHosts []string

	// RequireHTTPS requires all requests to use HTTPS
	RequireHTTPS bool

	// MaxResponseSize limits response body size (default: 10MB)
	MaxResponseSize int64

	// MaxRedirects limits redirect following (default: 10)
	MaxRedirects int

	// RateLimit caps requests per second across all cases of a step
	// (0 = unlimited). Burst defaults to 1.
	RateLimit float64
	Burst     int
}

// DefaultConfig returns the builtin defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		AllowedHosts:    []string{},
		MaxResponseSize: 10 * 1024 * 1024, // 10MB
		MaxRedirects:    10,
		Burst:           1,
	}
}

// ConfigFrom overlays the action.http section of the config file on the
// defaults.
func ConfigFrom(defaults map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	raw := action.Config(defaults)

	var err error
	if cfg.Timeout, err = raw.Duration("timeout", cfg.Timeout); err != nil {
		return cfg, err
	}
	size, err := raw.Int("max_response_size", int(cfg.MaxResponseSize))
	if err != nil {
		return cfg, err
	}
	cfg.MaxResponseSize = int64(size)
	if cfg.MaxRedirects, err = raw.Int("max_redirects", cfg.MaxRedirects); err != nil {
		return cfg, err
	}
	if cfg.Burst, err = raw.Int("burst", cfg.Burst); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = rateOf(raw, "rate_limit"); err != nil {
		return cfg, err
	}
	cfg.RequireHTTPS = raw.String("require_https", "false") == "true"
	if hosts, ok := raw["allowed_hosts"].([]interface{}); ok {
		for _, h := range hosts {
			if s, ok := h.(string); ok {
				cfg.AllowedHosts = append(cfg.AllowedHosts, s)
			}
		}
	}
	return cfg, nil
}

func rateOf(raw action.Config, key string) (float64, error) {
	switch v := raw[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	default:
		n, err := raw.Int(key, 0)
		return float64(n), err
	}
}
