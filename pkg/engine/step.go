package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/render"
)

// BoundStep is a step definition with the action built for it.
type BoundStep struct {
	Def    *flow.Step
	Action action.Action
}

type outcome struct {
	value interface{}
	err   error
}

// RunStep runs one action invocation against a case context.
//
// The action runs in its own goroutine and races the step timeout. A late
// action is not stopped: its context is cancelled and its result dropped.
// A panic becomes a CrashError. When the action succeeds the assertion, if
// any, is evaluated with the result bound as res. On Ok the value is written
// to step.<id>.value and, when the step declares dyn, to dyn.<name>.
func (e *Executor) RunStep(ctx context.Context, id ident.Step, s BoundStep, rctx *render.Context) *StepResult {
	logger := log.WithStep(e.logger, id, s.Def.Action)
	res := &StepResult{ID: id, Action: s.Def.Action, Start: time.Now()}
	rctx.SetCurr("step", s.Def.ID)

	timeout := s.Def.Timeout.Std()
	if timeout <= 0 {
		timeout = flow.DefaultStepTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	arg := &runArg{id: id, step: s.Def, ctx: rctx}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &errors.CrashError{
					Operation: s.Def.Action,
					Value:     r,
					Stack:     debug.Stack(),
				}}
			}
		}()
		v, err := s.Action.Run(runCtx, arg)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-done:
		// The action can observe the deadline before the timer fires.
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			out = outcome{err: &errors.TimeoutError{Operation: s.Def.ID, Duration: timeout, Cause: out.err}}
		}
	case <-timer.C:
		out.err = &errors.TimeoutError{Operation: s.Def.ID, Duration: timeout}
	}
	res.End = time.Now()

	switch {
	case out.err != nil:
		res.State = Err
		res.Err = out.err
	case s.Def.Assert != "" && !rctx.EvaluateBool(s.Def.Assert, map[string]interface{}{render.ResultKey: out.value}):
		res.State = Fail
		res.Value = out.value
	default:
		res.State = Ok
		res.Value = out.value
		rctx.SetStepValue(s.Def.ID, out.value)
		if s.Def.Dyn != "" {
			rctx.SetDyn(s.Def.Dyn, out.value)
		}
	}

	attrs := []any{log.StateKey, res.State.String(), log.DurationKey, res.Duration().Milliseconds()}
	switch res.State {
	case Err:
		logger.Debug("step error", append(attrs, "error", res.Err)...)
	case Fail:
		logger.Debug("step assertion failed", append(attrs, "assert", s.Def.Assert, "value", fmt.Sprint(res.Value))...)
	default:
		log.Trace(logger, "step ok", slog.Any("value", res.Value))
	}
	e.observer.StepFinished(res)
	return res
}
