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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/tombee/chord/internal/job"
)

// cronParser accepts standard five field expressions and descriptors such
// as @hourly or @every 5m.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func newScheduleCommand(flags *globalFlags, opts Options) *cobra.Command {
	rf := &runFlags{}
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule <job-dir>",
		Short: "Run a job on a cron schedule",
		Long: `Schedule runs the job every time the cron expression fires, until
interrupted. A run still in progress when the next one is due causes that
tick to be skipped. Every run gets its own exec id.`,
		Example: `  # Every 15 minutes
  chord schedule ./jobs/smoke --cron "*/15 * * * *"

  # Hourly, only the login task
  chord schedule ./jobs/smoke --cron @hourly -t login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := cronParser.Parse(spec)
			if err != nil {
				return &ExitError{Code: ExitInvalidFlow, Message: fmt.Sprintf("invalid cron expression %q", spec), Cause: err}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return scheduleJob(ctx, cmd, flags, opts, rf, args[0], sched)
		},
	}
	rf.register(cmd.Flags())
	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression (5 fields or @descriptor)")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func scheduleJob(ctx context.Context, cmd *cobra.Command, flags *globalFlags, opts Options, rf *runFlags, dir string, sched cron.Schedule) error {
	a, err := newApp(ctx, cmd, flags, opts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if rf.parallel >= 0 {
		a.cfg.Job.Parallel = rf.parallel
	}
	runner := a.runner()

	// Fail fast on a job directory that has nothing to run.
	if _, err := runner.Discover(dir, rf.tasks); err != nil {
		return &ExitError{Code: ExitInvalidFlow, Message: "nothing to schedule", Cause: err}
	}

	logger := cronLogger{logger: a.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		res, err := runner.Run(ctx, dir, job.Options{Tasks: rf.tasks})
		if err != nil {
			a.logger.Error("scheduled run failed", "error", err)
			return
		}
		if err := writeSummary(cmd.OutOrStdout(), res, flags.json); err != nil {
			a.logger.Warn("failed to write summary", "error", err)
		}
	}))

	c.Start()
	a.logger.Info("schedule started", "job", dir, "next", sched.Next(time.Now()))

	<-ctx.Done()
	a.logger.Info("stopping schedule, waiting for running job")
	<-c.Stop().Done()
	return nil
}
