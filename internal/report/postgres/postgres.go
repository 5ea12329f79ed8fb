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

// Package postgres stores task runs and case results in PostgreSQL.
//
// Cases go to the configured table with a JSONB row and step document;
// runs go to <table>_run.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tombee/chord/internal/report/record"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
)

// Sink is the sink name used in errors.
const Sink = "postgres"

// DefaultTable is the case table name.
const DefaultTable = "chord_case"

// Conn is the part of a pgx pool the store uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config contains PostgreSQL storage configuration.
type Config struct {
	DSN            string
	Table          string
	ConnectTimeout time.Duration
}

// Store writes runs of every task of a job.
type Store struct {
	conn  Conn
	close func()
	table string
}

// New connects a pool and creates the tables.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := NewWithConn(ctx, pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.close = pool.Close
	return store, nil
}

// NewWithConn creates a store over an existing connection.
func NewWithConn(ctx context.Context, conn Conn, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	s := &Store{conn: conn, table: table, close: func() {}}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runTable() string {
	return pgx.Identifier{s.table + "_run"}.Sanitize()
}

func (s *Store) caseTable() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			run_id UUID PRIMARY KEY,
			exec_id TEXT NOT NULL,
			task TEXT NOT NULL,
			state TEXT,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		)`, s.runTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES %s(run_id),
			stage TEXT NOT NULL,
			round TEXT NOT NULL,
			row_id TEXT NOT NULL,
			state TEXT NOT NULL,
			info TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			data JSONB,
			steps JSONB,
			last_info TEXT
		)`, s.caseTable(), s.runTable()),
	}
	for _, m := range migrations {
		if _, err := s.conn.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.close()
	return nil
}

// Reporter returns a reporter recording one run of task.
func (s *Store) Reporter(task ident.Task) *Reporter {
	return &Reporter{store: s, task: task, runID: uuid.New()}
}

// Reporter writes one task run into the store.
type Reporter struct {
	store *Store
	task  ident.Task
	runID uuid.UUID
}

var _ engine.Reporter = (*Reporter)(nil)

// RunID identifies the run.
func (r *Reporter) RunID() uuid.UUID {
	return r.runID
}

// Start inserts the run.
func (r *Reporter) Start(ctx context.Context, at time.Time, _ *flow.Flow) error {
	_, err := r.store.conn.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (run_id, exec_id, task, started_at) VALUES ($1, $2, $3, $4)`, r.store.runTable()),
		r.runID, r.task.ExecID, r.task.Name, at)
	return fail("start", err)
}

// Report sends the batch as one pgx batch.
func (r *Reporter) Report(ctx context.Context, stageID string, batch []*engine.CaseResult) error {
	if len(batch) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (run_id, stage, round, row_id, state, info, started_at, ended_at, data, steps, last_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, r.store.caseTable())

	b := &pgx.Batch{}
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
		b.Queue(query, r.runID, rec.Stage, rec.Round, rec.Row, rec.State, rec.Info, rec.Start, rec.End, string(data), string(steps), rec.LastInfo)
	}

	results := r.store.conn.SendBatch(ctx, b)
	for range batch {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fail("report", err)
		}
	}
	return fail("report", results.Close())
}

// End records the final state.
func (r *Reporter) End(ctx context.Context, result *engine.TaskResult) error {
	var msg *string
	if result.Err != nil {
		s := result.Err.Error()
		msg = &s
	}
	end := result.End
	if end.IsZero() {
		end = time.Now()
	}
	_, err := r.store.conn.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET state = $1, error = $2, ended_at = $3 WHERE run_id = $4`, r.store.runTable()),
		result.State.Short(), msg, end, r.runID)
	return fail("end", err)
}

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &errors.ReportError{Sink: Sink, Op: op, Cause: err}
}
