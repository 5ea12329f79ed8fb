package engine

import (
	"context"
	"time"

	"github.com/tombee/chord/pkg/flow"
)

// Reporter receives streamed task results.
//
// Start is called once before any stage, Report once per executed batch in
// order (never concurrently), End once after the stage loop whatever the
// outcome. Any returned error aborts the task.
type Reporter interface {
	Start(ctx context.Context, at time.Time, f *flow.Flow) error
	Report(ctx context.Context, stageID string, batch []*CaseResult) error
	End(ctx context.Context, result *TaskResult) error
}

// Observer is notified as units complete. Implementations must be safe for
// concurrent use; step and case callbacks arrive from case goroutines.
type Observer interface {
	StepFinished(r *StepResult)
	CaseFinished(stageID string, r *CaseResult)
	StageFinished(task string, r *StageResult)
	TaskFinished(r *TaskResult)
}

type nopObserver struct{}

func (nopObserver) StepFinished(*StepResult)           {}
func (nopObserver) CaseFinished(string, *CaseResult)   {}
func (nopObserver) StageFinished(string, *StageResult) {}
func (nopObserver) TaskFinished(*TaskResult)           {}
