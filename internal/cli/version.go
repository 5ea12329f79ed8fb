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

	"github.com/spf13/cobra"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	Actions   []string `json:"actions,omitempty"`
}

func newVersionCommand(flags *globalFlags, opts Options) *cobra.Command {
	var actions bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date for chord.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   opts.Version,
				Commit:    valueOr(opts.Commit, "unknown"),
				BuildDate: valueOr(opts.BuildDate, "unknown"),
			}
			if actions {
				reg, err := newRegistry(nil, nil, opts)
				if err != nil {
					return err
				}
				info.Actions = reg.Kinds()
			}

			if flags.json {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal version info: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("chord version %s\n", info.Version)
			cmd.Printf("  commit:     %s\n", info.Commit)
			cmd.Printf("  build date: %s\n", info.BuildDate)
			if actions {
				cmd.Println("  actions:")
				for _, k := range info.Actions {
					cmd.Printf("    %s\n", k)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&actions, "actions", false, "List the registered action kinds")
	return cmd
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
