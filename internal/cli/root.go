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
	"github.com/spf13/cobra"

	"github.com/tombee/chord/pkg/action"
)

// Options configures the root command.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Register adds extra action kinds after the builtin ones.
	Register func(reg *action.Registry) error
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config   string
	logLevel string
	json     bool
}

// NewRootCommand creates the root Cobra command for chord
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Version == "" {
		opts.Version = "dev"
	}

	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "chord",
		Short: "Chord - data-driven flow runner",
		Long: `Chord runs flows of templated actions over rows of case data.

A job directory holds one directory per task. Each task directory has a
flow file (flow.yml) describing stages and steps, and a case file
(case.csv) whose rows are fed through the stages.

Run 'chord validate <job-dir>' to check a job before running it.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	cmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to config file (default: ~/.config/chord/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Output in JSON format")

	cmd.AddCommand(
		newRunCommand(flags, opts),
		newScheduleCommand(flags, opts),
		newValidateCommand(flags, opts),
		newVersionCommand(flags, opts),
	)
	return cmd
}
