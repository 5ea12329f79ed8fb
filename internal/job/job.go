// Package job runs a job directory: every task directory below it holds a
// flow file and a case file and becomes one engine task.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/chord/internal/config"
	csvloader "github.com/tombee/chord/internal/loader/csv"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
)

var taskNamePattern = regexp.MustCompile(`^\w+$`)

// Task is a discovered task directory.
type Task struct {
	Name     string
	Dir      string
	FlowPath string
	CasePath string
}

// Sinks hands out one reporter per task.
type Sinks interface {
	For(task ident.Task) engine.Reporter
}

// Options select what a run covers.
type Options struct {
	// ExecID tags every task of the run; empty uses the current unix millis.
	ExecID string

	// Tasks limits the run to the named tasks.
	Tasks []string
}

// Result is the outcome of a job run, tasks in name order.
type Result struct {
	ExecID string
	Tasks  []*engine.TaskResult
}

// OK reports whether every task ended Ok.
func (r *Result) OK() bool {
	for _, t := range r.Tasks {
		if t.State != engine.Ok {
			return false
		}
	}
	return len(r.Tasks) > 0
}

// Failed lists the tasks that did not end Ok.
func (r *Result) Failed() []*engine.TaskResult {
	var out []*engine.TaskResult
	for _, t := range r.Tasks {
		if t.State != engine.Ok {
			out = append(out, t)
		}
	}
	return out
}

// Runner runs the tasks of a job directory.
type Runner struct {
	executor *engine.Executor
	sinks    Sinks
	cfg      config.JobConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	onStart  func(ident.Task)
}

// NewRunner creates a runner. cfg.Parallel bounds how many tasks run at
// once; zero runs them all together.
func NewRunner(executor *engine.Executor, sinks Sinks, cfg config.JobConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlowFile == "" {
		cfg.FlowFile = "flow.yml"
	}
	if cfg.CaseFile == "" {
		cfg.CaseFile = "case.csv"
	}
	return &Runner{
		executor: executor,
		sinks:    sinks,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/tombee/chord/internal/job"),
		onStart:  func(ident.Task) {},
	}
}

// OnTaskStart registers a hook called before each task starts.
func (r *Runner) OnTaskStart(fn func(ident.Task)) *Runner {
	if fn != nil {
		r.onStart = fn
	}
	return r
}

// Discover lists the task directories of dir. A directory counts as a task
// when its name is a word and it holds both the flow and the case file.
// Named tasks must all exist.
func (r *Runner) Discover(dir string, names []string) ([]Task, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "job directory", ID: dir}
		}
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}

	selected := len(names) > 0
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	found := make(map[string]bool, len(names))

	var tasks []Task
	for _, e := range entries {
		if !e.IsDir() || !taskNamePattern.MatchString(e.Name()) {
			continue
		}
		if selected && !want[e.Name()] {
			continue
		}
		t, ok := r.taskAt(filepath.Join(dir, e.Name()))
		if !ok {
			if selected {
				return nil, &errors.NotFoundError{Resource: "flow file", ID: filepath.Join(dir, e.Name(), r.cfg.FlowFile)}
			}
			r.logger.Debug("skipping directory without flow or case file", "dir", e.Name())
			continue
		}
		tasks = append(tasks, t)
		found[e.Name()] = true
	}

	if selected {
		var missing []string
		for n := range want {
			if !found[n] {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, &errors.NotFoundError{Resource: "task", ID: fmt.Sprint(missing)}
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

func (r *Runner) taskAt(dir string) (Task, bool) {
	t := Task{Name: filepath.Base(dir), Dir: dir}

	candidates := []string{r.cfg.FlowFile}
	if r.cfg.FlowFile == "flow.yml" {
		candidates = append(candidates, "flow.yaml")
	}
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			t.FlowPath = p
			break
		}
	}

	t.CasePath = filepath.Join(dir, r.cfg.CaseFile)
	return t, t.FlowPath != "" && fileExists(t.CasePath)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Run discovers and runs the tasks of dir.
func (r *Runner) Run(ctx context.Context, dir string, opts Options) (*Result, error) {
	tasks, err := r.Discover(dir, opts.Tasks)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, &errors.NotFoundError{Resource: "task", ID: dir}
	}
	return r.RunTasks(ctx, tasks, opts.ExecID), nil
}

// RunTasks runs tasks concurrently and waits for all of them.
func (r *Runner) RunTasks(ctx context.Context, tasks []Task, execID string) *Result {
	if execID == "" {
		execID = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	ctx, span := r.tracer.Start(ctx, "job "+execID, trace.WithAttributes(
		attribute.String("chord.exec_id", execID),
		attribute.Int("chord.tasks", len(tasks)),
	))
	defer span.End()

	logger := r.logger.With("exec_id", execID)
	logger.Info("job started", "tasks", len(tasks))

	parallel := r.cfg.Parallel
	if parallel <= 0 || parallel > len(tasks) {
		parallel = len(tasks)
	}
	semaphore := make(chan struct{}, parallel)

	res := &Result{ExecID: execID, Tasks: make([]*engine.TaskResult, len(tasks))}
	var wg sync.WaitGroup
	for i, t := range tasks {
		id := ident.Task{ExecID: execID, Name: t.Name}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				res.Tasks[i] = failed(id, &errors.TaskError{Code: errors.CodeCancelled, Message: "task cancelled before start", Cause: ctx.Err()})
				return
			}
			res.Tasks[i] = r.runOne(ctx, id, t)
		}()
	}
	wg.Wait()

	logger.Info("job finished", "tasks", len(tasks), "failed", len(res.Failed()))
	return res
}

func (r *Runner) runOne(ctx context.Context, id ident.Task, t Task) *engine.TaskResult {
	logger := r.logger.With("task_id", id.String())

	f, err := flow.Load(t.FlowPath)
	if err != nil {
		logger.Error("failed to load flow", "path", t.FlowPath, "error", err)
		return failed(id, err)
	}

	loader, err := csvloader.Open(t.CasePath)
	if err != nil {
		logger.Error("failed to open case file", "path", t.CasePath, "error", err)
		return failed(id, err)
	}
	defer loader.Close()

	r.onStart(id)
	return r.executor.RunTask(ctx, engine.Task{
		ID:       id,
		Flow:     f,
		Loader:   loader,
		Reporter: r.sinks.For(id),
	})
}

// failed is the result of a task that could not start.
func failed(id ident.Task, err error) *engine.TaskResult {
	now := time.Now()
	return &engine.TaskResult{ID: id, State: engine.Err, Err: err, Start: now, End: now}
}
