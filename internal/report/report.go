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

// Package report builds the report sinks selected by configuration.
//
// Database sinks open one store per job and hand out a reporter per task.
// The CSV sink writes one file per task under <dir>/<exec id>.
package report

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tombee/chord/internal/config"
	"github.com/tombee/chord/internal/report/csv"
	"github.com/tombee/chord/internal/report/postgres"
	"github.com/tombee/chord/internal/report/sqlite"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/ident"
	pkgreport "github.com/tombee/chord/pkg/report"
)

// Sinks hands out reporters for the tasks of one job.
type Sinks struct {
	kinds  []string
	csvDir string

	sqlite   *sqlite.Store
	postgres *postgres.Store
}

// Open prepares the sinks in cfg.Kind. Database sinks connect and migrate
// here so that a bad DSN fails the job before any task starts.
func Open(ctx context.Context, cfg config.ReportConfig) (*Sinks, error) {
	s := &Sinks{kinds: cfg.Kind, csvDir: cfg.CSV.Dir}

	for _, kind := range cfg.Kind {
		switch kind {
		case config.ReportCSV:
		case config.ReportSQLite:
			if s.sqlite != nil {
				continue
			}
			store, err := sqlite.New(sqlite.Config{Path: cfg.SQLite.Path})
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open sqlite report: %w", err)
			}
			s.sqlite = store
		case config.ReportPostgres:
			if s.postgres != nil {
				continue
			}
			store, err := postgres.New(ctx, postgres.Config{
				DSN:            cfg.Postgres.DSN,
				Table:          cfg.Postgres.Table,
				ConnectTimeout: cfg.Postgres.ConnectTimeout,
			})
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("open postgres report: %w", err)
			}
			s.postgres = store
		default:
			s.Close()
			return nil, fmt.Errorf("unknown report kind %q", kind)
		}
	}
	return s, nil
}

// For returns the reporter of one task. With no sink configured results
// are discarded.
func (s *Sinks) For(task ident.Task) engine.Reporter {
	var multi pkgreport.Multi
	seen := make(map[string]bool)
	for _, kind := range s.kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true

		switch kind {
		case config.ReportCSV:
			multi = append(multi, csv.New(filepath.Join(s.csvDir, task.ExecID), task.Name))
		case config.ReportSQLite:
			multi = append(multi, s.sqlite.Reporter(task))
		case config.ReportPostgres:
			multi = append(multi, s.postgres.Reporter(task))
		}
	}

	switch len(multi) {
	case 0:
		return pkgreport.Discard
	case 1:
		return multi[0]
	default:
		return multi
	}
}

// Close releases the database stores.
func (s *Sinks) Close() error {
	var first error
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			first = err
		}
	}
	if s.postgres != nil {
		if err := s.postgres.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
