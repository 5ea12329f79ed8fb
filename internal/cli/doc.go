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

/*
Package cli implements the chord command line.

# Commands

	chord run <job-dir>        run every task of a job once
	chord schedule <job-dir>   run a job on a cron schedule
	chord validate <job-dir>   check flows, case files and action kinds
	chord version              print build information

# Global Flags

	-c, --config     config file (default: $XDG_CONFIG_HOME/chord/config.yaml)
	    --log-level  overrides log.level
	    --json       machine readable output

# Exit Codes

  - Exit 0: every task ended Ok
  - Exit 1: a task ended Fail or Err, or the job could not run
  - Exit 2: invalid flow, case file or configuration

# Extending

Programs embedding chord add their own action kinds through
Options.Register and call NewRootCommand:

	root := cli.NewRootCommand(cli.Options{
	    Version:  version,
	    Register: func(reg *action.Registry) error {
	        reg.MustRegister("kafka", kafka.NewFactory())
	        return nil
	    },
	})
	if err := root.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
