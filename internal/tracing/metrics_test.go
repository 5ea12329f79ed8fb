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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tombee/chord/pkg/engine"
	"github.com/tombee/chord/pkg/ident"
)

func collect(t *testing.T, reader *metric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return sums
}

func TestCollector(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	c, err := NewCollector(provider)
	require.NoError(t, err)

	task := ident.Task{ExecID: "9", Name: "t"}
	c.TaskStarted(task.String())
	assert.Equal(t, int64(1), collect(t, reader)["chord_active_tasks"])

	now := time.Now()
	cs := ident.Case{Task: task, Round: "s1_1", Row: "1"}
	c.StepFinished(&engine.StepResult{ID: ident.Step{Case: cs, Name: "a"}, Action: "http", State: engine.Ok, Start: now, End: now.Add(time.Millisecond)})
	c.StepFinished(&engine.StepResult{ID: ident.Step{Case: cs, Name: "b"}, Action: "http", State: engine.Fail, Start: now, End: now})
	c.CaseFinished("s1", &engine.CaseResult{ID: cs, State: engine.Fail, Start: now, End: now})
	c.StageFinished("t", &engine.StageResult{ID: "s1", State: engine.Fail})
	c.TaskFinished(&engine.TaskResult{ID: task, State: engine.Fail, Start: now, End: now.Add(time.Second)})

	got := collect(t, reader)
	assert.Equal(t, int64(2), got["chord_steps_total"])
	assert.Equal(t, int64(2), got["chord_step_duration_seconds"])
	assert.Equal(t, int64(1), got["chord_cases_total"])
	assert.Equal(t, int64(1), got["chord_stages_total"])
	assert.Equal(t, int64(1), got["chord_tasks_total"])
	assert.Equal(t, int64(0), got["chord_active_tasks"])
}
