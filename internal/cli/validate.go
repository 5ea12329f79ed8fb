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

package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/chord/internal/job"
	csvloader "github.com/tombee/chord/internal/loader/csv"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/flow"
)

type taskCheck struct {
	Task    string   `json:"task"`
	Stages  int      `json:"stages"`
	Steps   int      `json:"steps"`
	Columns []string `json:"columns,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func newValidateCommand(flags *globalFlags, opts Options) *cobra.Command {
	var tasks []string
	cmd := &cobra.Command{
		Use:   "validate <job-dir>",
		Short: "Check the flows and case files of a job",
		Long: `Validate parses every flow file of a job against the flow schema,
checks that each step's action kind is registered and that the case file
has a usable header. Nothing is run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			reg, err := newRegistry(cfg.Action, logger, opts)
			if err != nil {
				return err
			}

			found, err := job.NewRunner(nil, nil, cfg.Job, logger).Discover(args[0], tasks)
			if err != nil {
				return &ExitError{Code: ExitInvalidFlow, Message: "invalid job", Cause: err}
			}

			var checks []taskCheck
			bad := 0
			for _, t := range found {
				c := checkTask(t, reg)
				if len(c.Errors) > 0 {
					bad++
				}
				checks = append(checks, c)
			}

			if err := writeChecks(cmd, checks, flags.json); err != nil {
				return err
			}
			if bad > 0 {
				return &ExitError{Code: ExitInvalidFlow, Message: fmt.Sprintf("%d of %d tasks are invalid", bad, len(checks))}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tasks, "task", "t", nil, "Check only the named tasks")
	return cmd
}

func checkTask(t job.Task, reg *action.Registry) taskCheck {
	c := taskCheck{Task: t.Name}

	f, err := flow.Load(t.FlowPath)
	if err != nil {
		c.Errors = append(c.Errors, err.Error())
	} else {
		c.Stages = len(f.Stages)
		c.Steps = len(f.Steps)

		ids := make([]string, 0, len(f.Steps))
		for id := range f.Steps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, err := reg.Get(f.Steps[id].Action); err != nil {
				c.Errors = append(c.Errors, fmt.Sprintf("step %s: %v", id, err))
			}
		}
	}

	loader, err := csvloader.Open(t.CasePath)
	if err != nil {
		c.Errors = append(c.Errors, err.Error())
		return c
	}
	defer loader.Close()
	c.Columns = loader.Header()
	return c
}

func writeChecks(cmd *cobra.Command, checks []taskCheck, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(checks)
	}
	for _, c := range checks {
		if len(c.Errors) == 0 {
			fmt.Fprintf(w, "ok    %s (%d stages, %d steps, %d columns)\n", c.Task, c.Stages, c.Steps, len(c.Columns))
			continue
		}
		fmt.Fprintf(w, "FAIL  %s\n", c.Task)
		for _, e := range c.Errors {
			fmt.Fprintf(w, "      %s\n", e)
		}
	}
	return nil
}
