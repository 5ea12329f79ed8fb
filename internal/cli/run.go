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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/chord/internal/job"
	"github.com/tombee/chord/pkg/errors"
)

type runFlags struct {
	tasks    []string
	execID   string
	parallel int
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.tasks, "task", "t", nil, "Run only the named tasks (repeatable or comma separated)")
	fs.IntVarP(&f.parallel, "parallel", "p", -1, "Maximum tasks run at once (0 runs all together)")
}

func newRunCommand(flags *globalFlags, opts Options) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <job-dir>",
		Short: "Run every task of a job once",
		Long: `Run discovers the task directories of a job and runs them concurrently.

Each task directory must contain a flow file and a case file. Results go
to the report sinks enabled in the config file (csv by default). The
command exits non-zero unless every task ends ok.`,
		Example: `  # Run a whole job
  chord run ./jobs/nightly

  # Run two tasks of a job with a fixed exec id
  chord run ./jobs/nightly -t login,search -e 20250101`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJob(ctx, cmd, flags, opts, rf, args[0])
		},
	}
	rf.register(cmd.Flags())
	cmd.Flags().StringVarP(&rf.execID, "exec-id", "e", "", "Exec id tagging this run (default: unix millis)")
	return cmd
}

func runJob(ctx context.Context, cmd *cobra.Command, flags *globalFlags, opts Options, rf *runFlags, dir string) error {
	a, err := newApp(ctx, cmd, flags, opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if rf.parallel >= 0 {
		a.cfg.Job.Parallel = rf.parallel
	}

	res, err := a.runner().Run(ctx, dir, job.Options{ExecID: rf.execID, Tasks: rf.tasks})
	if err != nil {
		var nf *errors.NotFoundError
		if errors.As(err, &nf) {
			return &ExitError{Code: ExitInvalidFlow, Message: "nothing to run", Cause: err}
		}
		return &ExitError{Code: ExitFailed, Message: "job failed", Cause: err}
	}

	if err := writeSummary(cmd.OutOrStdout(), res, flags.json); err != nil {
		return err
	}
	if !res.OK() {
		return &ExitError{
			Code:    ExitFailed,
			Message: fmt.Sprintf("%d of %d tasks did not end ok", len(res.Failed()), len(res.Tasks)),
		}
	}
	return nil
}

type taskSummary struct {
	Task       string `json:"task"`
	State      string `json:"state"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type jobSummary struct {
	ExecID string        `json:"exec_id"`
	OK     bool          `json:"ok"`
	Tasks  []taskSummary `json:"tasks"`
}

func summarize(res *job.Result) jobSummary {
	out := jobSummary{ExecID: res.ExecID, OK: res.OK()}
	for _, t := range res.Tasks {
		s := taskSummary{
			Task:       t.ID.Name,
			State:      t.State.String(),
			DurationMS: t.End.Sub(t.Start).Milliseconds(),
		}
		if t.Err != nil {
			s.Error = t.Err.Error()
		}
		out.Tasks = append(out.Tasks, s)
	}
	return out
}

func writeSummary(w io.Writer, res *job.Result, asJSON bool) error {
	summary := summarize(res)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(w, "exec %s\n", summary.ExecID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATE\tDURATION\tERROR")
	for _, t := range summary.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", t.Task, t.State, t.DurationMS, t.Error)
	}
	return tw.Flush()
}
