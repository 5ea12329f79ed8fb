// Package amqp provides the amqp action: publish one message per case.
//
// Step config: url (amqp://...), exchange, routing_key, body (string, or an
// object/list sent as JSON), content_type, header. The result is
// {message_id, exchange, routing_key}.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
)

// Kind is the registered action kind.
const Kind = "amqp"

// ActionError codes.
const (
	CodeConnect = "070"
	CodePublish = "071"
	CodeBody    = "072"
)

// Publisher is the part of an AMQP channel the action uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a publisher for url.
type DialFunc func(url string) (Publisher, error)

type channel struct {
	conn *amqp.Connection
	*amqp.Channel
}

func (c *channel) Close() error {
	chErr := c.Channel.Close()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return chErr
}

// Dial connects to the broker and opens a channel.
func Dial(url string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &channel{conn: conn, Channel: ch}, nil
}

// Factory builds amqp actions.
type Factory struct {
	dial     DialFunc
	defaults action.Config
	logger   *slog.Logger
}

// NewFactory creates an amqp factory. defaults may carry url and exchange.
func NewFactory(defaults map[string]interface{}, dial DialFunc, logger *slog.Logger) *Factory {
	if dial == nil {
		dial = Dial
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{dial: dial, defaults: action.Config(defaults), logger: logger}
}

// Create opens the shared channel when the url is task-shared.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	url := cfg.String("url", f.defaults.String("url", ""))
	if url == "" {
		return nil, &errors.ConfigError{Key: "config.url", Reason: "required"}
	}

	p := &publisher{factory: f, url: url}
	if !arg.IsTaskShared(url) {
		return p, nil
	}
	rendered, err := arg.RenderString(url)
	if err != nil {
		return nil, err
	}
	ch, err := f.dial(rendered)
	if err != nil {
		return nil, &errors.ConfigError{Key: "config.url", Reason: "cannot connect to broker", Cause: err}
	}
	p.shared = ch
	return p, nil
}

type publisher struct {
	factory *Factory
	url     string

	// mu serializes publishes on the shared channel
	mu        sync.Mutex
	shared    Publisher
	closeOnce sync.Once
}

func (p *publisher) Run(ctx context.Context, arg action.RunArg) (interface{}, error) {
	rendered, err := arg.RenderValue(arg.Config())
	if err != nil {
		return nil, err
	}
	cfg, err := action.ConfigOf(rendered)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encode(cfg["body"])
	if err != nil {
		return nil, &errors.ActionError{Code: CodeBody, Message: "cannot encode body", Cause: err}
	}

	msg := amqp.Publishing{
		ContentType:  cfg.String("content_type", contentType),
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now(),
		Body:         body,
	}
	if h := cfg.Map("header"); len(h) > 0 {
		msg.Headers = amqp.Table(h)
	}

	exchange := cfg.String("exchange", p.factory.defaults.String("exchange", ""))
	key := cfg.String("routing_key", "")

	if err := p.publish(ctx, arg, exchange, key, msg); err != nil {
		return nil, err
	}

	p.factory.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", key,
		"message_id", msg.MessageId,
	)

	return map[string]interface{}{
		"message_id":  msg.MessageId,
		"exchange":    exchange,
		"routing_key": key,
	}, nil
}

func (p *publisher) publish(ctx context.Context, arg action.RunArg, exchange, key string, msg amqp.Publishing) error {
	if p.shared != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.shared.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
			return &errors.ActionError{Code: CodePublish, Message: fmt.Sprintf("publish to %s/%s", exchange, key), Cause: err}
		}
		return nil
	}

	url, err := arg.RenderString(p.url)
	if err != nil {
		return err
	}
	ch, err := p.factory.dial(url)
	if err != nil {
		return &errors.ActionError{Code: CodeConnect, Message: "cannot connect to broker", Cause: err}
	}
	defer ch.Close()
	if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return &errors.ActionError{Code: CodePublish, Message: fmt.Sprintf("publish to %s/%s", exchange, key), Cause: err}
	}
	return nil
}

// Close releases the shared channel.
func (p *publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.shared != nil {
			err = p.shared.Close()
		}
	})
	return err
}

func encode(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain", nil
	default:
		data, err := json.Marshal(b)
		return data, "application/json", err
	}
}
