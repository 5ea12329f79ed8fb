// Package engine runs flows: the task, stage, case and step state machine.
//
// A task runs its optional pre-stage once, then each stage in order. A stage
// loads case rows in batches of at most Concurrency, runs one case per row
// concurrently and streams every batch to the Reporter before loading the
// next. A case runs its steps strictly in order and stops at the first step
// that is not Ok.
package engine

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/chord/pkg/action"
)

const tracerName = "github.com/tombee/chord/pkg/engine"

// Executor runs tasks against an action registry.
// An Executor is safe for concurrent use; one Executor may run many tasks.
type Executor struct {
	registry *action.Registry
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewExecutor creates an executor that resolves action kinds from registry.
func NewExecutor(registry *action.Registry) *Executor {
	return &Executor{
		registry: registry,
		logger:   slog.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
}

// WithLogger sets the logger used by the executor.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithObserver sets a completion observer, typically a metrics collector.
func (e *Executor) WithObserver(o Observer) *Executor {
	if o != nil {
		e.observer = o
	}
	return e
}

// WithTracer sets the tracer for task, stage and case spans.
func (e *Executor) WithTracer(t trace.Tracer) *Executor {
	if t != nil {
		e.tracer = t
	}
	return e
}
