// Package report provides Reporter combinators. Concrete sinks live under
// internal/report.
package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/flow"
)

// Multi fans every call out to each reporter in order. All reporters are
// called even when one fails; the errors are joined.
type Multi []engine.Reporter

var _ engine.Reporter = Multi(nil)

// Start implements engine.Reporter.
func (m Multi) Start(ctx context.Context, at time.Time, f *flow.Flow) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Start(ctx, at, f))
	}
	return errors.Join(errs...)
}

// Report implements engine.Reporter.
func (m Multi) Report(ctx context.Context, stageID string, batch []*engine.CaseResult) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Report(ctx, stageID, batch))
	}
	return errors.Join(errs...)
}

// End implements engine.Reporter.
func (m Multi) End(ctx context.Context, result *engine.TaskResult) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.End(ctx, result))
	}
	return errors.Join(errs...)
}

// Discard drops everything.
var Discard engine.Reporter = discard{}

type discard struct{}

func (discard) Start(context.Context, time.Time, *flow.Flow) error           { return nil }
func (discard) Report(context.Context, string, []*engine.CaseResult) error { return nil }
func (discard) End(context.Context, *engine.TaskResult) error              { return nil }

// Batch is one recorded Report call.
type Batch struct {
	Stage string
	Cases []*engine.CaseResult
}

// Recorder keeps every call in memory.
type Recorder struct {
	mu      sync.Mutex
	started bool
	batches []Batch
	result  *engine.TaskResult
}

// Start implements engine.Reporter.
func (r *Recorder) Start(context.Context, time.Time, *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

// Report implements engine.Reporter.
func (r *Recorder) Report(_ context.Context, stageID string, batch []*engine.CaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, Batch{Stage: stageID, Cases: batch})
	return nil
}

// End implements engine.Reporter.
func (r *Recorder) End(_ context.Context, result *engine.TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
	return nil
}

// Started reports whether Start was called.
func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Batches returns the recorded batches in call order.
func (r *Recorder) Batches() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

// Result returns the result passed to End, or nil.
func (r *Recorder) Result() *engine.TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}
