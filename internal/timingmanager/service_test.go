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

package timingmanager

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/timing"
)

func fakeClock() int64 { return 1 }

func TestRunEmitsRequestRateCreditsAndCompletes(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	var drops int64
	done := make(chan *messages.CreditsComplete, 2)
	unsubDone, err := m.Subscribe(context.Background(), messages.TopicCommands, func(msg messages.Message) {
		if cc, ok := msg.(*messages.CreditsComplete); ok {
			done <- cc
		}
	})
	require.NoError(t, err)
	defer unsubDone()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			_, err := m.Pull(context.Background(), messages.QueueCredits, time.Second)
			if err != nil {
				return
			}
			atomic.AddInt64(&drops, 1)
		}
	}()

	svc := NewService(m, Config{
		Mode:         ModeRequestRate,
		RateHz:       1000,
		Distribution: timing.DistributionConstant,
		Warmup:       PhaseSpec{Count: 2},
		Profiling:    PhaseSpec{Count: 3},
	}, logr.Discard(), fakeClock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.ProfileStart{
		Envelope: messages.Envelope{MessageType: messages.TypeProfileStart},
	}))

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to finish")
	}

	warmupComplete := <-done
	profilingComplete := <-done
	assert.Equal(t, model.PhaseWarmup, warmupComplete.Phase)
	assert.Equal(t, 2, warmupComplete.Total)
	assert.Equal(t, model.PhaseProfiling, profilingComplete.Phase)
	assert.Equal(t, 3, profilingComplete.Total)

	cancel()
	wg.Wait()
	assert.EqualValues(t, 5, atomic.LoadInt64(&drops))
}

func TestRunConcurrencyModeReleasesOnCreditReturn(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	svc := NewService(m, Config{
		Mode:        ModeConcurrency,
		Concurrency: 1,
		Profiling:   PhaseSpec{Count: 2},
	}, logr.Discard(), fakeClock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.ProfileStart{
		Envelope: messages.Envelope{MessageType: messages.TypeProfileStart},
	}))

	delivery, err := m.Pull(ctx, messages.QueueCredits, time.Second)
	require.NoError(t, err)
	require.NoError(t, m.Ack(ctx, messages.QueueCredits, delivery.Handle))

	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.CreditReturn{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditReturn},
	}))

	_, err = m.Pull(ctx, messages.QueueCredits, time.Second)
	require.NoError(t, err)

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to finish")
	}
}

func writeScheduleDataset(t *testing.T, turns ...int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	var b []byte
	for i, ts := range turns {
		ts := ts
		conv := model.Conversation{
			ID:    "conv",
			Turns: []*model.Turn{{Texts: []string{"hi"}, TimestampMs: &ts}},
		}
		line, err := json.Marshal(conv)
		require.NoError(t, err)
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, line...)
	}
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRunFixedScheduleModeReplaysDatasetTimestamps(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	datasetPath := writeScheduleDataset(t, 0, 5)

	var drops int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			_, err := m.Pull(context.Background(), messages.QueueCredits, time.Second)
			if err != nil {
				return
			}
			atomic.AddInt64(&drops, 1)
		}
	}()

	svc := NewService(m, Config{
		Mode:        ModeFixedSchedule,
		DatasetPath: datasetPath,
		Speedup:     1.0,
		Profiling:   PhaseSpec{Count: 2},
	}, logr.Discard(), fakeClock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	require.NoError(t, m.Publish(ctx, messages.TopicCommands, &messages.ProfileStart{
		Envelope: messages.Envelope{MessageType: messages.TypeProfileStart},
	}))

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to finish")
	}

	cancel()
	wg.Wait()
	assert.EqualValues(t, 2, atomic.LoadInt64(&drops))
}
