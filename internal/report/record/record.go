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

// Package record flattens case results into rows for tabular sinks.
package record

import (
	"encoding/json"
	"time"

	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/render"
)

// Step is the stored form of one step result.
type Step struct {
	ID       string      `json:"id"`
	Action   string      `json:"action"`
	State    string      `json:"state"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Value    interface{} `json:"value,omitempty"`
	Error    string      `json:"error,omitempty"`
	Duration int64       `json:"duration_ms"`
}

// Case is the stored form of one case result.
type Case struct {
	ExecID string
	Task   string
	Stage  string
	Round  string
	Row    string
	State  string
	Info   string
	Start  time.Time
	End    time.Time
	Data   map[string]interface{}
	Steps  []Step

	// LastInfo is the last step's value (or error) as text
	LastInfo string
}

// FromCase converts a case result reported for stage.
func FromCase(stage string, c *engine.CaseResult) Case {
	rec := Case{
		ExecID: c.ID.Task.ExecID,
		Task:   c.ID.Task.Name,
		Stage:  stage,
		Round:  c.ID.Round,
		Row:    c.ID.Row,
		State:  c.State.Short(),
		Start:  c.Start,
		End:    c.End,
		Data:   c.Row,
	}
	if c.State == engine.Err && c.Err != nil {
		rec.Info = c.Err.Error()
	}

	for _, s := range c.Steps {
		step := Step{
			ID:       s.ID.Name,
			Action:   s.Action,
			State:    s.State.Short(),
			Start:    s.Start,
			End:      s.End,
			Value:    s.Value,
			Duration: s.Duration().Milliseconds(),
		}
		if s.Err != nil {
			step.Error = s.Err.Error()
		}
		rec.Steps = append(rec.Steps, step)
	}

	if last := c.Last(); last != nil {
		if last.State == engine.Err && last.Err != nil {
			rec.LastInfo = last.Err.Error()
		} else {
			rec.LastInfo = render.ToString(last.Value)
		}
	}
	return rec
}

// StepsJSON encodes the steps for a document column. Values that cannot be
// encoded are replaced by their text form.
func (c Case) StepsJSON() ([]byte, error) {
	b, err := json.Marshal(c.Steps)
	if err == nil {
		return b, nil
	}
	steps := make([]Step, len(c.Steps))
	for i, s := range c.Steps {
		s.Value = render.ToString(s.Value)
		steps[i] = s
	}
	return json.Marshal(steps)
}

// DataJSON encodes the case row.
func (c Case) DataJSON() ([]byte, error) {
	if c.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Data)
}
