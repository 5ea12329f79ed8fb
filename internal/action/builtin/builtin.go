// Package builtin registers every action kind shipped with chord.
package builtin

import (
	"log/slog"

	"github.com/tombee/chord/internal/action/amqp"
	"github.com/tombee/chord/internal/action/http"
	"github.com/tombee/chord/internal/action/redis"
	"github.com/tombee/chord/internal/action/script"
	"github.com/tombee/chord/internal/action/shell"
	"github.com/tombee/chord/internal/action/transform"
	"github.com/tombee/chord/internal/action/utility"
	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

// Defaults holds per-kind defaults, keyed by action kind, as read from the
// action section of the config file.
type Defaults map[string]map[string]interface{}

// Register adds the builtin kinds to reg. Defaults of a kind that fail to
// parse are a ConfigError.
func Register(reg *action.Registry, defaults Defaults, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	utility.Register(reg)

	httpCfg, err := http.ConfigFrom(defaults[http.Kind])
	if err != nil {
		return errors.Wrap(err, "action.http")
	}
	reg.MustRegister(http.Kind, http.NewFactory(httpCfg, logger.With(log.ActionKey, http.Kind)))

	jqCfg, err := transform.ConfigFrom(defaults[transform.Kind])
	if err != nil {
		return errors.Wrap(err, "action.jq")
	}
	reg.MustRegister(transform.Kind, transform.NewFactory(jqCfg))

	reg.MustRegister(script.Kind, script.NewFactory())
	reg.MustRegister(shell.Kind, shell.NewFactory(shell.ConfigFrom(defaults[shell.Kind])))
	reg.MustRegister(redis.Kind, redis.NewFactory(defaults[redis.Kind], nil))
	reg.MustRegister(amqp.Kind, amqp.NewFactory(defaults[amqp.Kind], nil, logger.With(log.ActionKey, amqp.Kind)))
	return nil
}

// NewRegistry returns a registry holding the builtin kinds.
func NewRegistry(defaults Defaults, logger *slog.Logger) (*action.Registry, error) {
	reg := action.NewRegistry()
	if err := Register(reg, defaults, logger); err != nil {
		return nil, err
	}
	return reg, nil
}
