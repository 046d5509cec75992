/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package records

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/model"
)

func newTestService(t *testing.T, m *bus.Memory) (*Service, *metrics.Accumulator) {
	t.Helper()
	registry, err := metrics.Default()
	require.NoError(t, err)
	acc := metrics.NewAccumulator(registry)
	svc := NewService(m, acc, []Processor{NewAggregateProcessor(acc)}, Config{
		Admission:      AdmissionConfig{DurationBounded: false},
		PullVisibility: time.Second,
		DrainQuiet:     30 * time.Millisecond,
	}, logr.Discard())
	return svc, acc
}

func TestServiceRunProcessesRecordsAndFinalizesOnCreditsComplete(t *testing.T) {
	m := bus.NewMemory()
	t.Cleanup(func() { _ = m.Close() })
	svc, _ := newTestService(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var result *model.ProcessRecordsResult
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = svc.Run(ctx)
	}()

	// Give Run a moment to register its subscription before publishing.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, m.Push(ctx, messages.QueueInferenceResults, &messages.MetricRecords{
		Envelope:  messages.Envelope{MessageType: messages.TypeMetricRecords},
		ModelName: "test-model",
		Values: map[string]float64{
			metrics.TagRequestLatency:   float64(100 * time.Millisecond),
			metrics.TagGoodRequestCount: 1,
		},
	}))

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.CreditsComplete{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditsComplete},
		Phase:    model.PhaseProfiling,
		Total:    1,
	}))

	wg.Wait()
	require.NoError(t, runErr)
	require.NotNil(t, result)
	require.False(t, result.WasCancelled)

	found := false
	for _, r := range result.Metrics {
		if r.Tag == metrics.TagGoodRequestCount {
			found = true
			require.Equal(t, 1, r.Count)
		}
	}
	require.True(t, found)
}

func TestServiceRunCountsErroredRecords(t *testing.T) {
	m := bus.NewMemory()
	t.Cleanup(func() { _ = m.Close() })
	svc, _ := newTestService(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var result *model.ProcessRecordsResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, _ = svc.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Push(ctx, messages.QueueInferenceResults, &messages.MetricRecords{
		Envelope: messages.Envelope{MessageType: messages.TypeMetricRecords},
		Error:    &model.ErrorDetails{Type: "timeout", Message: "deadline exceeded"},
	}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.CreditsComplete{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditsComplete},
		Phase:    model.PhaseProfiling,
	}))

	wg.Wait()
	require.NotNil(t, result)
	require.Equal(t, 1, result.ErrorCounts["timeout"])
}

func TestServiceRunStopsOnContextCancellation(t *testing.T) {
	m := bus.NewMemory()
	t.Cleanup(func() { _ = m.Close() })
	svc, _ := newTestService(t, m)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestServiceRealtimeMetricsServesSnapshotDuringProfiling(t *testing.T) {
	m := bus.NewMemory()
	t.Cleanup(func() { _ = m.Close() })
	svc, _ := newTestService(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = svc.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Push(ctx, messages.QueueInferenceResults, &messages.MetricRecords{
		Envelope: messages.Envelope{MessageType: messages.TypeMetricRecords},
		Values: map[string]float64{
			metrics.TagGoodRequestCount: 1,
		},
	}))
	time.Sleep(20 * time.Millisecond)

	reply, err := m.Request(ctx, messages.QueueControl, &messages.RealtimeMetrics{
		Envelope: messages.Envelope{MessageType: messages.TypeRealtimeMetrics, RequestID: "req-1"},
	}, time.Second)
	require.NoError(t, err)
	rt, ok := reply.(*messages.RealtimeMetrics)
	require.True(t, ok)
	found := false
	for _, r := range rt.Results {
		if r.Tag == metrics.TagGoodRequestCount {
			found = true
			require.Equal(t, 1, r.Count)
		}
	}
	require.True(t, found)

	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.CreditsComplete{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditsComplete},
		Phase:    model.PhaseProfiling,
	}))
	wg.Wait()
}
