// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/chord/pkg/engine"
)

// Collector records engine completions as Prometheus-compatible metrics.
// It implements engine.Observer.
type Collector struct {
	meter metric.Meter

	// Counters
	tasksTotal  metric.Int64Counter
	stagesTotal metric.Int64Counter
	casesTotal  metric.Int64Counter
	stepsTotal  metric.Int64Counter

	// Histograms
	taskDuration metric.Float64Histogram
	caseDuration metric.Float64Histogram
	stepDuration metric.Float64Histogram

	activeTasks   map[string]bool
	activeTasksMu sync.RWMutex
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a collector on the given meter provider.
func NewCollector(meterProvider metric.MeterProvider) (*Collector, error) {
	c := &Collector{
		meter:       meterProvider.Meter("chord"),
		activeTasks: make(map[string]bool),
	}

	var err error
	if c.tasksTotal, err = c.meter.Int64Counter("chord_tasks_total",
		metric.WithDescription("Total number of tasks finished"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, err
	}
	if c.stagesTotal, err = c.meter.Int64Counter("chord_stages_total",
		metric.WithDescription("Total number of stages finished"),
		metric.WithUnit("{stage}"),
	); err != nil {
		return nil, err
	}
	if c.casesTotal, err = c.meter.Int64Counter("chord_cases_total",
		metric.WithDescription("Total number of cases executed"),
		metric.WithUnit("{case}"),
	); err != nil {
		return nil, err
	}
	if c.stepsTotal, err = c.meter.Int64Counter("chord_steps_total",
		metric.WithDescription("Total number of steps executed"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, err
	}

	if c.taskDuration, err = c.meter.Float64Histogram("chord_task_duration_seconds",
		metric.WithDescription("Task duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if c.caseDuration, err = c.meter.Float64Histogram("chord_case_duration_seconds",
		metric.WithDescription("Case duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if c.stepDuration, err = c.meter.Float64Histogram("chord_step_duration_seconds",
		metric.WithDescription("Step duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	_, err = c.meter.Int64ObservableGauge("chord_active_tasks",
		metric.WithDescription("Number of tasks currently running"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			c.activeTasksMu.RLock()
			n := len(c.activeTasks)
			c.activeTasksMu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// TaskStarted marks a task as running until TaskFinished.
func (c *Collector) TaskStarted(id string) {
	c.activeTasksMu.Lock()
	c.activeTasks[id] = true
	c.activeTasksMu.Unlock()
}

// StepFinished implements engine.Observer.
func (c *Collector) StepFinished(r *engine.StepResult) {
	attrs := metric.WithAttributes(
		attribute.String("task", r.ID.Case.Task.Name),
		attribute.String("action", r.Action),
		attribute.String("state", r.State.String()),
	)
	ctx := context.Background()
	c.stepsTotal.Add(ctx, 1, attrs)
	c.stepDuration.Record(ctx, r.Duration().Seconds(), attrs)
}

// CaseFinished implements engine.Observer.
func (c *Collector) CaseFinished(stageID string, r *engine.CaseResult) {
	attrs := metric.WithAttributes(
		attribute.String("task", r.ID.Task.Name),
		attribute.String("stage", stageID),
		attribute.String("state", r.State.String()),
	)
	ctx := context.Background()
	c.casesTotal.Add(ctx, 1, attrs)
	c.caseDuration.Record(ctx, r.End.Sub(r.Start).Seconds(), attrs)
}

// StageFinished implements engine.Observer.
func (c *Collector) StageFinished(task string, r *engine.StageResult) {
	c.stagesTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("stage", r.ID),
		attribute.String("state", r.State.String()),
		attribute.Bool("timed_out", r.TimedOut),
	))
}

// TaskFinished implements engine.Observer.
func (c *Collector) TaskFinished(r *engine.TaskResult) {
	c.activeTasksMu.Lock()
	delete(c.activeTasks, r.ID.String())
	c.activeTasksMu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("task", r.ID.Name),
		attribute.String("state", r.State.String()),
	)
	ctx := context.Background()
	c.tasksTotal.Add(ctx, 1, attrs)
	c.taskDuration.Record(ctx, r.End.Sub(r.Start).Seconds(), attrs)
}
