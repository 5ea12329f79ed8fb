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

package tracing

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/flow"
	"github.com/tombee/chord/pkg/ident"
	"github.com/tombee/chord/pkg/load"
	"github.com/tombee/chord/pkg/report"
)

func runSampleTask(t *testing.T, p *Provider) *engine.TaskResult {
	t.Helper()
	f, err := flow.Parse([]byte(`
stage:
  - id: s1
    step: [v]
step:
  v: {action: noop}
`))
	require.NoError(t, err)

	reg := action.NewRegistry()
	reg.MustRegister("noop", action.FactoryFunc(func(context.Context, action.CreateArg) (action.Action, error) {
		return action.Func(func(context.Context, action.RunArg) (interface{}, error) { return "ok", nil }), nil
	}))

	id := ident.Task{ExecID: "1", Name: "traced"}
	p.Collector().TaskStarted(id.String())
	return engine.NewExecutor(reg).
		WithTracer(p.Tracer("test")).
		WithObserver(p.Collector()).
		RunTask(context.Background(), engine.Task{
			ID:       id,
			Flow:     f,
			Loader:   load.NewMemory([]map[string]interface{}{{"a": 1}, {"a": 2}}),
			Reporter: report.Discard,
		})
}

func TestProvider_EngineSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewProvider(context.Background(), Config{ServiceName: "test", ServiceVersion: "1.0.0"}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	res := runSampleTask(t, p)
	require.Equal(t, engine.Ok, res.State)
	require.NoError(t, p.ForceFlush(context.Background()))

	names := map[string]int{}
	for _, s := range exporter.GetSpans() {
		names[s.Name]++
	}
	assert.Equal(t, 1, names["task traced"])
	assert.Equal(t, 1, names["stage s1"])
	assert.Equal(t, 2, names["case"])

	var task, stage *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		switch spans[i].Name {
		case "task traced":
			task = &spans[i]
		case "stage s1":
			stage = &spans[i]
		}
	}
	require.NotNil(t, task)
	require.NotNil(t, stage)
	assert.Equal(t, task.SpanContext.SpanID(), stage.Parent.SpanID(), "stage span is a child of the task span")
}

func TestProvider_MetricsHandler(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	runSampleTask(t, p)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), "chord_cases_total")
	assert.Contains(t, string(body), "chord_tasks_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCreateExporter(t *testing.T) {
	ctx := context.Background()

	exp, err := CreateExporter(ctx, Config{Exporter: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, exp)

	var buf bytes.Buffer
	exp, err = CreateExporter(ctx, Config{Exporter: "console"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.NoError(t, exp.Shutdown(ctx))

	exp, err = CreateExporter(ctx, Config{Exporter: "otlp_http", Endpoint: "localhost:4318", Insecure: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, exp)

	_, err = CreateExporter(ctx, Config{Exporter: "zipkin"}, nil)
	assert.ErrorContains(t, err, "unknown exporter type")
}
