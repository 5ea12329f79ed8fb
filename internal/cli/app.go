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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/chord/internal/action/builtin"
	"github.com/tombee/chord/internal/config"
	"github.com/tombee/chord/internal/job"
	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/internal/report"
	"github.com/tombee/chord/internal/tracing"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/ident"
)

const instrumentationName = "github.com/tombee/chord"

// app holds what a job-running command needs, built from configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *tracing.Provider
	registry *action.Registry
	sinks    *report.Sinks
	metrics  *http.Server
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, &ExitError{Code: ExitInvalidFlow, Message: "invalid configuration", Cause: err}
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    cmd.ErrOrStderr(),
		AddSource: cfg.Log.AddSource,
	})
}

// newRegistry builds the builtin kinds plus those added by opts.Register.
func newRegistry(defaults map[string]map[string]interface{}, logger *slog.Logger, opts Options) (*action.Registry, error) {
	reg, err := builtin.NewRegistry(builtin.Defaults(defaults), logger)
	if err != nil {
		return nil, &ExitError{Code: ExitInvalidFlow, Message: "invalid action defaults", Cause: err}
	}
	if opts.Register != nil {
		if err := opts.Register(reg); err != nil {
			return nil, fmt.Errorf("failed to register actions: %w", err)
		}
	}
	return reg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command, flags *globalFlags, opts Options) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(cmd, cfg)}

	a.provider, err = tracing.NewProvider(ctx, tracing.FromConfig(cfg.Tracing, opts.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.registry, err = newRegistry(cfg.Action, a.logger, opts)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.sinks, err = report.Open(ctx, cfg.Report)
	if err != nil {
		a.Close(ctx)
		return nil, &ExitError{Code: ExitFailed, Message: "failed to open report sinks", Cause: err}
	}

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.provider.MetricsHandler())
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func (a *app) runner() *job.Runner {
	collector := a.provider.Collector()
	executor := engine.NewExecutor(a.registry).
		WithLogger(a.logger).
		WithObserver(collector).
		WithTracer(a.provider.Tracer(instrumentationName))

	return job.NewRunner(executor, a.sinks, a.cfg.Job, a.logger).
		OnTaskStart(func(id ident.Task) { collector.TaskStarted(id.String()) })
}

// Close flushes telemetry and releases sinks. It is safe on a partially
// built app.
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.sinks != nil {
		if err := a.sinks.Close(); err != nil {
			a.logger.Warn("failed to close report sinks", "error", err)
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down telemetry", "error", err)
		}
	}
}
