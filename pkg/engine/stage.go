package engine

import (
	"context"
	"io"
	"strconv"
	"sync"
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

// BuildSteps creates one action per step id through the registry. The
// returned release func closes actions that implement io.Closer. An unknown
// kind or a failing factory is a ConfigError.
func (e *Executor) BuildSteps(ctx context.Context, task ident.Task, scope string, f *flow.Flow, ids []string, base *render.Context) ([]BoundStep, func(), error) {
	steps := make([]BoundStep, 0, len(ids))
	release := func() {
		for _, s := range steps {
			if c, ok := s.Action.(io.Closer); ok {
				if err := c.Close(); err != nil {
					e.logger.Warn("failed to close action", log.StepIDKey, s.Def.ID, "error", err)
				}
			}
		}
	}

	for _, id := range ids {
		def, ok := f.Step(id)
		if !ok {
			release()
			return nil, nil, &errors.ConfigError{Key: "step." + id, Reason: "step is not defined"}
		}
		factory, err := e.registry.Get(def.Action)
		if err != nil {
			release()
			return nil, nil, err
		}
		arg := &createArg{
			id:   ident.Step{Case: ident.Case{Task: task, Round: scope}, Name: id},
			step: def,
			base: base,
		}
		act, err := factory.Create(ctx, arg)
		if err != nil {
			release()
			return nil, nil, &errors.ConfigError{Key: "step." + id, Reason: "failed to create " + def.Action + " action", Cause: err}
		}
		steps = append(steps, BoundStep{Def: def, Action: act})
	}
	return steps, release, nil
}

// RunStage runs the round loop of one stage.
//
// Each round pulls batches of up to Concurrency rows (filtered by the case
// filter when set), runs them concurrently, and reports each batch before
// loading the next. A round ends when a pull returns fewer rows than asked;
// the loader is then reset. The stage duration bounds the loop: once it
// passes no new batch is loaded, while a running batch completes and is
// reported.
//
// The returned error is fatal for the task (setup, data source or report
// failures). Case failures are only reflected in the result state.
func (e *Executor) RunStage(ctx context.Context, task ident.Task, f *flow.Flow, stage *flow.Stage, base *render.Context, loader load.Loader, reporter Reporter) (*StageResult, error) {
	ctx, span := e.tracer.Start(ctx, "stage "+stage.ID, trace.WithAttributes(
		attribute.String("chord.task", task.String()),
		attribute.Int("chord.concurrency", stage.Concurrency),
	))
	defer span.End()

	logger := log.WithStage(log.WithTask(e.logger, task), stage.ID)
	res := &StageResult{ID: stage.ID, State: Ok, Start: time.Now()}
	defer func() {
		res.End = time.Now()
		span.SetAttributes(attribute.String("chord.state", res.State.String()))
		e.observer.StageFinished(task.Name, res)
	}()

	steps, release, err := e.BuildSteps(ctx, task, stage.ID, f, stage.Steps, base)
	if err != nil {
		res.State, res.Err = Err, err
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	defer release()

	// The deadline only gates loading; cases keep the caller's context.
	duration := stage.Duration.Std()
	if duration <= 0 {
		duration = flow.DefaultStageDuration
	}
	loadCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	concurrency := stage.Concurrency
	if concurrency <= 0 {
		concurrency = flow.DefaultConcurrency
	}
	limit := stage.RoundLimit()

	logger.Info("stage started", "rounds", limit, "concurrency", concurrency, "duration", duration.String())

rounds:
	for round := 1; limit == 0 || round <= limit; round++ {
		tag := ident.RoundTag(stage.ID, round)
		for first := true; ; first = false {
			if loadCtx.Err() != nil {
				res.TimedOut = true
				break rounds
			}

			rows, pulled, exhausted, err := e.nextBatch(loadCtx, loader, stage.CaseFilter, concurrency, base)
			if err != nil {
				if loadCtx.Err() != nil && errors.Is(err, loadCtx.Err()) {
					res.TimedOut = true
					break rounds
				}
				err = &errors.DataSourceError{Code: errors.CodeDataSource, Reason: "failed to load cases for " + tag, Cause: err}
				res.State, res.Err = Err, err
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}
			if first && pulled == 0 {
				err := &errors.DataSourceError{Code: errors.CodeNoCase, Reason: "no case provided for " + tag}
				res.State, res.Err = Err, err
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}

			if len(rows) > 0 {
				batch := e.runBatch(ctx, task, stage.ID, tag, rows, steps, base, concurrency)
				for _, c := range batch {
					res.State = merge(res.State, c.State)
				}
				res.Batches++
				res.Cases += len(batch)

				if err := reporter.Report(ctx, stage.ID, batch); err != nil {
					err = &errors.ReportError{Op: "report", Cause: err}
					res.State, res.Err = Err, err
					span.SetStatus(codes.Error, err.Error())
					return res, err
				}
			}
			if exhausted {
				break
			}
		}

		res.Rounds = round
		if err := loader.Reset(ctx); err != nil {
			err = &errors.DataSourceError{Code: errors.CodeDataSource, Reason: "failed to reset cases after " + tag, Cause: err}
			res.State, res.Err = Err, err
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
	}

	if res.TimedOut {
		logger.Warn("stage deadline reached, no further batches loaded", "rounds_completed", res.Rounds)
	}
	logger.Info("stage finished",
		log.StateKey, res.State.String(),
		"cases", res.Cases,
		"batches", res.Batches,
		log.DurationKey, time.Since(res.Start).Milliseconds(),
	)
	return res, nil
}

// nextBatch pulls rows until n rows pass the filter or the loader runs dry.
// pulled counts rows read before filtering.
func (e *Executor) nextBatch(ctx context.Context, loader load.Loader, filter string, n int, base *render.Context) (batch []load.Row, pulled int, exhausted bool, err error) {
	batch = make([]load.Row, 0, n)
	for len(batch) < n {
		need := n - len(batch)
		rows, err := loader.Load(ctx, need)
		if err != nil {
			return nil, pulled, false, err
		}
		pulled += len(rows)
		for _, row := range rows {
			if filter == "" || base.ForCase(row.Data).EvaluateBool(filter, nil) {
				batch = append(batch, row)
			}
		}
		if len(rows) < need {
			return batch, pulled, true, nil
		}
	}
	return batch, pulled, false, nil
}

// runBatch runs one case per row with at most concurrency in flight and
// returns results in row order.
func (e *Executor) runBatch(ctx context.Context, task ident.Task, stageID, round string, rows []load.Row, steps []BoundStep, base *render.Context, concurrency int) []*CaseResult {
	results := make([]*CaseResult, len(rows))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, row := range rows {
		wg.Add(1)
		go func(i int, row load.Row) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rowID := row.ID
			if rowID == "" {
				rowID = strconv.Itoa(i + 1)
			}
			id := ident.Case{Task: task, Round: round, Row: rowID}
			r := e.RunCase(ctx, id, row.Data, steps, base)
			e.observer.CaseFinished(stageID, r)
			results[i] = r
		}(i, row)
	}
	wg.Wait()
	return results
}
