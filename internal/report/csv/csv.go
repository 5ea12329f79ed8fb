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

// Package csv writes one CSV file per task.
//
// The file <task>_result.csv gets a header at Start, one line per case as
// batches arrive, and is renamed <task>_result_<O|F|E>.csv at End. Columns:
//
//	case_state, case_info, case_start, case_end,
//	<step>_state, <step>_start, <step>_end  (for every stage step)
//	last_step_info
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tombee/chord/internal/report/record"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
)

// Sink is the sink name used in errors.
const Sink = "csv"

// TimeFormat is the layout of time columns.
const TimeFormat = "15:04:05"

// Reporter writes the CSV report of one task.
type Reporter struct {
	dir  string
	task string

	mu     sync.Mutex
	file   *os.File
	writer *stdcsv.Writer
	steps  map[string]int
	width  int
}

var _ engine.Reporter = (*Reporter)(nil)

// New creates a reporter writing into dir for the named task.
func New(dir, task string) *Reporter {
	return &Reporter{dir: dir, task: task}
}

// Path returns the in-progress report path.
func (r *Reporter) Path() string {
	return filepath.Join(r.dir, r.task+"_result.csv")
}

// FinalPath returns the path the report is renamed to for state.
func (r *Reporter) FinalPath(state engine.State) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_result_%s.csv", r.task, state.Short()))
}

// Start creates the file and writes the header.
func (r *Reporter) Start(_ context.Context, _ time.Time, f *flow.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return r.fail("start", err)
	}
	file, err := os.Create(r.Path())
	if err != nil {
		return r.fail("start", err)
	}
	r.file = file
	r.writer = stdcsv.NewWriter(file)

	header := []string{"case_state", "case_info", "case_start", "case_end"}
	r.steps = make(map[string]int)
	for _, id := range f.StageStepIDs() {
		r.steps[id] = len(header)
		header = append(header, id+"_state", id+"_start", id+"_end")
	}
	header = append(header, "last_step_info")
	r.width = len(header)

	if err := r.writer.Write(header); err != nil {
		return r.fail("start", err)
	}
	r.writer.Flush()
	return r.fail("start", r.writer.Error())
}

// Report appends one line per case.
func (r *Reporter) Report(_ context.Context, stageID string, batch []*engine.CaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return r.fail("report", fmt.Errorf("reporter not started"))
	}
	for _, c := range batch {
		if err := r.writer.Write(r.line(record.FromCase(stageID, c))); err != nil {
			return r.fail("report", err)
		}
	}
	r.writer.Flush()
	return r.fail("report", r.writer.Error())
}

// End closes the file and renames it after the task state.
func (r *Reporter) End(_ context.Context, result *engine.TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	r.writer.Flush()
	flushErr := r.writer.Error()
	closeErr := r.file.Close()
	r.file, r.writer = nil, nil
	if flushErr != nil {
		return r.fail("end", flushErr)
	}
	if closeErr != nil {
		return r.fail("end", closeErr)
	}
	return r.fail("end", os.Rename(r.Path(), r.FinalPath(result.State)))
}

func (r *Reporter) line(c record.Case) []string {
	line := make([]string, r.width)
	line[0] = c.State
	line[1] = c.Info
	line[2] = c.Start.Format(TimeFormat)
	line[3] = c.End.Format(TimeFormat)
	for _, s := range c.Steps {
		pos, ok := r.steps[s.ID]
		if !ok {
			continue
		}
		line[pos] = s.State
		line[pos+1] = s.Start.Format(TimeFormat)
		line[pos+2] = s.End.Format(TimeFormat)
	}
	line[r.width-1] = c.LastInfo
	return line
}

func (r *Reporter) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &errors.ReportError{Sink: Sink, Op: op, Cause: err}
}
