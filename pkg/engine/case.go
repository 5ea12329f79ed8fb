package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/render"
)

// RunCase runs the steps of one case in order against a clone of base with
// row bound as case. It stops at the first step that is not Ok and takes
// that step's state; if every step is Ok the case is Ok. Per-case failures
// never escape: the result always carries the outcome.
func (e *Executor) RunCase(ctx context.Context, id ident.Case, row map[string]interface{}, steps []BoundStep, base *render.Context) (res *CaseResult) {
	ctx, span := e.tracer.Start(ctx, "case", trace.WithAttributes(
		attribute.String("chord.case", id.String()),
		attribute.String("chord.round", id.Round),
	))
	defer span.End()

	res = &CaseResult{ID: id, State: Ok, Row: row, Start: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.State = Err
			res.Err = &errors.CrashError{Operation: "case " + id.String(), Value: r}
		}
		res.End = time.Now()
		if res.State != Ok {
			span.SetStatus(codes.Error, res.State.String())
		}
		span.SetAttributes(attribute.String("chord.state", res.State.String()))
	}()

	rctx := base.ForCase(row)
	rctx.SetCurr("round", id.Round)
	rctx.SetCurr("row", id.Row)

	logger := log.WithCase(e.logger, id)
	res.Steps = make([]*StepResult, 0, len(steps))
	for _, s := range steps {
		sr := e.RunStep(ctx, ident.Step{Case: id, Name: s.Def.ID}, s, rctx)
		res.Steps = append(res.Steps, sr)
		if sr.State == Ok {
			continue
		}
		res.State = sr.State
		res.Err = sr.Err
		logger.Debug("case stopped", log.StepIDKey, s.Def.ID, log.StateKey, sr.State.String())
		break
	}
	return res
}
