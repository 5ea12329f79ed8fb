package engine

import (
	"time"

	"github.com/tombee/chord/pkg/ident"
)

// State is the tri-state outcome shared by steps, cases, stages and tasks.
type State int

const (
	// Ok means the unit ran and every assertion held.
	Ok State = iota
	// Fail means an assertion evaluated false.
	Fail
	// Err means an execution error: action error, timeout, crash or setup failure.
	Err
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Ok:
		return "ok"
	case Fail:
		return "fail"
	case Err:
		return "err"
	default:
		return "unknown"
	}
}

// Short is the one-letter form used in tabular reports.
func (s State) Short() string {
	switch s {
	case Ok:
		return "O"
	case Fail:
		return "F"
	default:
		return "E"
	}
}

// StepResult is the outcome of one step. Value is set for Ok and Fail,
// Err for Err.
type StepResult struct {
	ID     ident.Step
	Action string
	State  State
	Value  interface{}
	Err    error
	Start  time.Time
	End    time.Time
}

// Duration returns End - Start.
func (r *StepResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// CaseResult is the outcome of one row. Steps is the executed prefix of the
// stage's step list in order; Err is the error of the last step when State
// is Err.
type CaseResult struct {
	ID    ident.Case
	State State
	Row   map[string]interface{}
	Steps []*StepResult
	Err   error
	Start time.Time
	End   time.Time
}

// Last returns the last executed step, or nil.
func (r *CaseResult) Last() *StepResult {
	if len(r.Steps) == 0 {
		return nil
	}
	return r.Steps[len(r.Steps)-1]
}

// StageResult summarises one stage.
type StageResult struct {
	ID      string
	State   State
	Err     error
	Rounds  int
	Batches int
	Cases   int
	// TimedOut is set when the stage deadline stopped the round loop.
	TimedOut bool
	Start    time.Time
	End      time.Time
}

// TaskResult is the final outcome of a task.
type TaskResult struct {
	ID     ident.Task
	State  State
	Err    error
	Stages []*StageResult
	Start  time.Time
	End    time.Time
}

// merge folds a case state into an aggregate: Fail dominates Err, Err
// dominates Ok.
func merge(acc, s State) State {
	switch {
	case acc == Fail || s == Fail:
		return Fail
	case acc == Err || s == Err:
		return Err
	default:
		return Ok
	}
}
