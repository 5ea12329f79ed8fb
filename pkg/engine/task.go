package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/load"
	"github.com/tombee/chord/pkg/render"
)

// Task is one runnable unit: a flow, its case data and where results go.
type Task struct {
	ID       ident.Task
	Flow     *flow.Flow
	Loader   load.Loader
	Reporter Reporter
}

// RunTask runs the pre-stage and then every stage in order.
//
// The reporter's Start is called first and End always last. A pre-stage
// whose steps are not all Ok aborts the task with Err before any stage
// runs. A stage that ends in Fail with break_on stage_fail skips the rest.
// The final state is Err when anything unrecoverable happened (setup,
// pre-stage, data source, reporter), Fail when any stage was not Ok, and
// Ok otherwise.
func (e *Executor) RunTask(ctx context.Context, t Task) *TaskResult {
	ctx, span := e.tracer.Start(ctx, "task "+t.ID.Name, trace.WithAttributes(
		attribute.String("chord.task", t.ID.String()),
	))
	defer span.End()

	logger := log.WithTask(e.logger, t.ID)
	res := &TaskResult{ID: t.ID, State: Ok, Start: time.Now()}

	res.Err = e.runTask(ctx, t, res, logger)
	if res.Err != nil {
		res.State = Err
	}
	res.End = time.Now()

	if err := t.Reporter.End(ctx, res); err != nil {
		endErr := &errors.ReportError{Op: "end", Cause: err}
		if res.Err == nil {
			res.Err = endErr
		} else {
			logger.Error("failed to end report", "error", endErr)
		}
		res.State = Err
	}

	if res.State != Ok {
		span.SetStatus(codes.Error, res.State.String())
	}
	span.SetAttributes(attribute.String("chord.state", res.State.String()))
	e.observer.TaskFinished(res)

	attrs := []any{log.StateKey, res.State.String(), log.DurationKey, res.End.Sub(res.Start).Milliseconds()}
	if res.Err != nil {
		logger.Error("task finished", append(attrs, "error", res.Err)...)
	} else {
		logger.Info("task finished", attrs...)
	}
	return res
}

// runTask returns the unrecoverable error, if any. Stage states are folded
// into res as stages complete.
func (e *Executor) runTask(ctx context.Context, t Task, res *TaskResult, logger *slog.Logger) error {
	if err := t.Reporter.Start(ctx, res.Start, t.Flow); err != nil {
		return &errors.ReportError{Op: "start", Cause: err}
	}

	base := render.NewContext(t.Flow.Def, nil)
	if len(t.Flow.PreSteps()) > 0 {
		pre, err := e.runPre(ctx, t, base)
		if err != nil {
			return err
		}
		base = render.NewContext(t.Flow.Def, pre)
	}

	for i := range t.Flow.Stages {
		if err := ctx.Err(); err != nil {
			return &errors.TaskError{Code: errors.CodeCancelled, Message: "task cancelled", Cause: err}
		}
		stage := &t.Flow.Stages[i]
		sr, err := e.RunStage(ctx, t.ID, t.Flow, stage, base, t.Loader, t.Reporter)
		res.Stages = append(res.Stages, sr)
		if err != nil {
			return err
		}
		if sr.State != Ok {
			res.State = Fail
		}
		if sr.State == Fail && stage.BreaksOnFail() {
			logger.Info("stage failed, skipping remaining stages", log.StageIDKey, stage.ID)
			break
		}
	}
	return nil
}

// runPre runs the pre-stage as a single row-less case and returns the pre
// namespace built from its step values.
func (e *Executor) runPre(ctx context.Context, t Task, base *render.Context) (map[string]interface{}, error) {
	steps, release, err := e.BuildSteps(ctx, t.ID, ident.PreRound, t.Flow, t.Flow.PreSteps(), base)
	if err != nil {
		return nil, &errors.TaskError{Code: errors.CodePreStep, Message: "pre step run failure", Cause: err}
	}
	defer release()

	id := ident.Case{Task: t.ID, Round: ident.PreRound, Row: "0"}
	cr := e.RunCase(ctx, id, nil, steps, base)
	switch cr.State {
	case Fail:
		return nil, &errors.TaskError{Code: errors.CodePreFail, Message: "pre Fail: " + cr.Last().ID.Name}
	case Err:
		return nil, &errors.TaskError{Code: errors.CodePreErr, Message: "pre Err", Cause: cr.Err}
	}

	values := make(map[string]interface{}, len(cr.Steps))
	for _, s := range cr.Steps {
		values[s.ID.Name] = map[string]interface{}{"value": s.Value}
	}
	return map[string]interface{}{render.NSStep: values}, nil
}
