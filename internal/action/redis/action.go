// Package redis provides the redis action: one command per case.
//
// Step config: url (redis://...), cmd, args. When url does not depend on the
// case the client is opened once per stage and shared by every case;
// otherwise each case opens and closes its own.
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/render"
)

// Kind is the registered action kind.
const Kind = "redis"

// ActionError codes.
const (
	CodeMissing = "010"
	CodeConnect = "060"
	CodeCommand = "061"
)

// Client is the part of a redis client the action uses.
type Client interface {
	Do(ctx context.Context, args ...interface{}) *goredis.Cmd
	Close() error
}

// DialFunc opens a client for url.
type DialFunc func(url string) (Client, error)

// Dial opens a go-redis client from a redis:// URL.
func Dial(url string) (Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

// Factory builds redis actions.
type Factory struct {
	dial     DialFunc
	defaults action.Config
}

// NewFactory creates a redis factory. defaults may carry a url used when a
// step does not set one. A nil dial uses Dial.
func NewFactory(defaults map[string]interface{}, dial DialFunc) *Factory {
	if dial == nil {
		dial = Dial
	}
	return &Factory{dial: dial, defaults: action.Config(defaults)}
}

// Create opens the shared client when the url is task-shared.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	url := cfg.String("url", f.defaults.String("url", ""))
	if url == "" {
		return nil, &errors.ConfigError{Key: "config.url", Reason: "required"}
	}
	if _, err := cfg.RequireString("cmd"); err != nil {
		return nil, err
	}

	r := &runner{factory: f, url: url}
	if !arg.IsTaskShared(url) {
		return r, nil
	}

	rendered, err := arg.RenderString(url)
	if err != nil {
		return nil, err
	}
	client, err := f.dial(rendered)
	if err != nil {
		return nil, &errors.ConfigError{Key: "config.url", Reason: "cannot open redis client", Cause: err}
	}
	r.shared = client
	return r, nil
}

type runner struct {
	factory *Factory
	url     string

	shared    Client
	closeOnce sync.Once
}

func (r *runner) Run(ctx context.Context, arg action.RunArg) (interface{}, error) {
	client := r.shared
	if client == nil {
		url, err := arg.RenderString(r.url)
		if err != nil {
			return nil, err
		}
		client, err = r.factory.dial(url)
		if err != nil {
			return nil, &errors.ActionError{Code: CodeConnect, Message: "cannot open redis client", Cause: err}
		}
		defer client.Close()
	}

	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	cmd, err := arg.RenderString(cfg.String("cmd", ""))
	if err != nil {
		return nil, err
	}
	if cmd == "" {
		return nil, &errors.ActionError{Code: CodeMissing, Message: "missing cmd"}
	}

	args := []interface{}{cmd}
	if raw, ok := cfg["args"]; ok {
		rendered, err := arg.RenderValue(raw)
		if err != nil {
			return nil, err
		}
		list, ok := rendered.([]interface{})
		if !ok {
			return nil, &errors.ActionError{Code: CodeCommand, Message: fmt.Sprintf("args must be a list, got %T", rendered)}
		}
		for _, a := range list {
			args = append(args, render.ToString(a))
		}
	}

	val, err := client.Do(ctx, args...).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ActionError{Code: CodeCommand, Message: fmt.Sprintf("redis %s failed", cmd), Cause: err}
	}
	return convert(val), nil
}

// Close releases the shared client.
func (r *runner) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.shared != nil {
			err = r.shared.Close()
		}
	})
	return err
}

// convert maps a reply into step data. Bulk strings holding JSON are decoded.
func convert(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if decoded, err := render.DecodeJSON([]byte(t)); err == nil {
			return decoded
		}
		return t
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = convert(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = convert(item)
		}
		return out
	default:
		return v
	}
}
