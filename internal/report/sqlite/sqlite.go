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

// Package sqlite stores task runs and case results in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tombee/chord/internal/report/record"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
)

// Sink is the sink name used in errors.
const Sink = "sqlite"

// Store provides SQLite-backed storage shared by the reporters of a job.
type Store struct {
	db *sql.DB
}

// Config contains SQLite storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// New opens the database and creates the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	connStr := cfg.Path
	maxConns := cfg.MaxOpenConns
	if cfg.Path == ":memory:" {
		// every connection would see its own empty database
		maxConns = 1
	} else {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns == 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			exec_id TEXT NOT NULL,
			task TEXT NOT NULL,
			state TEXT,
			error TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_exec ON runs(exec_id, task)`,

		`CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			stage TEXT NOT NULL,
			round TEXT NOT NULL,
			row TEXT NOT NULL,
			state TEXT NOT NULL,
			info TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			data TEXT,
			steps TEXT,
			last_info TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_run ON cases(run_id, stage)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_state ON cases(state)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reporter returns a reporter recording one run of task.
func (s *Store) Reporter(task ident.Task) *Reporter {
	return &Reporter{store: s, task: task, runID: uuid.New().String()}
}

// Run is a stored task run.
type Run struct {
	RunID   string
	ExecID  string
	Task    string
	State   string
	Error   string
	Started time.Time
	Ended   time.Time
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, exec_id, task, COALESCE(state, ''), COALESCE(error, ''), started_at, COALESCE(ended_at, 0)
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended int64
		if err := rows.Scan(&r.RunID, &r.ExecID, &r.Task, &r.State, &r.Error, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = time.Unix(0, started)
		if ended != 0 {
			r.Ended = time.Unix(0, ended)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CaseRow is a stored case result.
type CaseRow struct {
	Stage    string
	Round    string
	Row      string
	State    string
	Info     string
	Data     string
	Steps    string
	LastInfo string
}

// Cases lists the cases of a run in insertion order.
func (s *Store) Cases(ctx context.Context, runID string) ([]CaseRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, round, row, state, COALESCE(info, ''), COALESCE(data, ''), COALESCE(steps, ''), COALESCE(last_info, '')
		FROM cases WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var out []CaseRow
	for rows.Next() {
		var c CaseRow
		if err := rows.Scan(&c.Stage, &c.Round, &c.Row, &c.State, &c.Info, &c.Data, &c.Steps, &c.LastInfo); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Reporter writes one task run into the store.
type Reporter struct {
	store *Store
	task  ident.Task
	runID string
}

var _ engine.Reporter = (*Reporter)(nil)

// RunID identifies the run in the runs table.
func (r *Reporter) RunID() string {
	return r.runID
}

// Start inserts the run.
func (r *Reporter) Start(ctx context.Context, at time.Time, _ *flow.Flow) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, exec_id, task, started_at) VALUES (?, ?, ?, ?)`,
		r.runID, r.task.ExecID, r.task.Name, at.UnixNano())
	return fail("start", err)
}

// Report inserts the batch in one transaction.
func (r *Reporter) Report(ctx context.Context, stageID string, batch []*engine.CaseResult) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fail("report", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cases (run_id, stage, round, row, state, info, started_at, ended_at, data, steps, last_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fail("report", err)
	}
	defer stmt.Close()

	for _, c := range batch {
		rec := record.FromCase(stageID, c)
		data, err := rec.DataJSON()
		if err != nil {
			return fail("report", err)
		}
		steps, err := rec.StepsJSON()
		if err != nil {
			return fail("report", err)
		}
		if _, err := stmt.ExecContext(ctx, r.runID, rec.Stage, rec.Round, rec.Row, rec.State, rec.Info,
			rec.Start.UnixNano(), rec.End.UnixNano(), string(data), string(steps), rec.LastInfo); err != nil {
			return fail("report", err)
		}
	}
	return fail("report", tx.Commit())
}

// End records the final state.
func (r *Reporter) End(ctx context.Context, result *engine.TaskResult) error {
	var msg string
	if result.Err != nil {
		msg = result.Err.Error()
	}
	end := result.End
	if end.IsZero() {
		end = time.Now()
	}
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, ended_at = ? WHERE run_id = ?`,
		result.State.Short(), msg, end.UnixNano(), r.runID)
	return fail("end", err)
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &errors.ReportError{Sink: Sink, Op: op, Cause: err}
}
