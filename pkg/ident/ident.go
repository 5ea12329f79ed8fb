// Package ident defines the hierarchical identities of a run: a task, the
// cases it executes and the steps of each case. Identities are immutable
// values and serve as report keys and log correlation fields.
package ident

import "fmt"

// Task identifies one execution of one task.
type Task struct {
	ExecID string `json:"exec_id"`
	Name   string `json:"task"`
}

// String implements fmt.Stringer.
func (t Task) String() string {
	return fmt.Sprintf("%s-%s", t.Name, t.ExecID)
}

// Case identifies one row run within a stage round. Round is the round tag
// "<stage>_<n>" (or "pre" for the pre-stage) and Row the loader's row id.
type Case struct {
	Task  Task   `json:"task"`
	Round string `json:"round"`
	Row   string `json:"row"`
}

// String implements fmt.Stringer.
func (c Case) String() string {
	return fmt.Sprintf("%s-%s-%s", c.Task, c.Round, c.Row)
}

// Step identifies one step of a case.
type Step struct {
	Case Case   `json:"case"`
	Name string `json:"step"`
}

// String implements fmt.Stringer.
func (s Step) String() string {
	return fmt.Sprintf("%s-%s", s.Case, s.Name)
}

// RoundTag builds the round tag of round n (1-based) of a stage.
func RoundTag(stageID string, n int) string {
	return fmt.Sprintf("%s_%d", stageID, n)
}

// PreRound is the round tag of the pre-stage.
const PreRound = "pre"
