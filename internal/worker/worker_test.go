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

package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/convert"
	"github.com/ai-dynamo/aiperf/internal/dataset"
	"github.com/ai-dynamo/aiperf/internal/httpclient"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// fakeNow returns a strictly increasing sequence of nanosecond timestamps,
// avoiding the zero-latency records a shared frozen clock would produce.
func fakeNow() func() int64 {
	var n int64
	return func() int64 {
		return atomic.AddInt64(&n, int64(time.Millisecond))
	}
}

func newTestWorker(t *testing.T, transport bus.Transport, endpointURL string, streaming bool) *Worker {
	t.Helper()
	store := dataset.NewStore(transport, messages.QueueDataset, time.Second)
	store.Preload(&model.Conversation{
		ID: "conv-1",
		Turns: []*model.Turn{
			{Role: "user", Texts: []string{"hello there"}},
		},
	})

	registry, err := metrics.Default()
	require.NoError(t, err)

	client := httpclient.New(httpclient.DefaultOptions(), fakeNow())
	cfg := Config{
		EndpointType:     convert.EndpointChatCompletions,
		EndpointURL:      endpointURL,
		Streaming:        streaming,
		CreditVisibility: time.Second,
	}
	w, err := New(transport, store, client, registry, cfg, fakeNow(), logr.Discard())
	require.NoError(t, err)
	return w
}

// collectOne subscribes to CreditReturn and the inference-results queue
// before invoking trigger, so a CreditReturn published inside trigger is
// never missed the way a post-hoc Subscribe would miss it (pub/sub only
// fans out to subscribers current at publish time).
func collectOne(t *testing.T, transport bus.Transport, trigger func()) (*messages.MetricRecords, *messages.CreditReturn) {
	t.Helper()
	var mu sync.Mutex
	var metricRecords *messages.MetricRecords
	var creditReturn *messages.CreditReturn
	done := make(chan struct{})
	closeIfReady := func() {
		if metricRecords != nil && creditReturn != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}

	unsub, err := transport.Subscribe(context.Background(), messages.TopicCommands, func(msg messages.Message) {
		mu.Lock()
		defer mu.Unlock()
		if cr, ok := msg.(*messages.CreditReturn); ok {
			creditReturn = cr
		}
		closeIfReady()
	})
	require.NoError(t, err)
	defer unsub()

	go func() {
		delivery, err := transport.Pull(context.Background(), messages.QueueInferenceResults, 2*time.Second)
		if err != nil {
			return
		}
		mu.Lock()
		metricRecords, _ = delivery.Message.(*messages.MetricRecords)
		closeIfReady()
		mu.Unlock()
		_ = transport.Ack(context.Background(), messages.QueueInferenceResults, delivery.Handle)
	}()

	trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MetricRecords and CreditReturn")
	}

	mu.Lock()
	defer mu.Unlock()
	return metricRecords, creditReturn
}

func TestWorkerProcessCreditNonStreamingHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi back"}}]}`))
	}))
	defer srv.Close()

	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, srv.URL, false)

	credit := model.Credit{ConversationID: "conv-1", TurnIndex: 0, ConversationNum: 1}
	records, ret := collectOne(t, m, func() {
		go w.processCredit(context.Background(), credit)
	})

	require.NotNil(t, records)
	require.NotNil(t, ret)
	assert.Nil(t, records.Error)
	assert.False(t, ret.Errored)
	assert.False(t, ret.Cancelled)
	assert.Equal(t, int64(1), ret.ConversationNum)
}

func TestWorkerProcessCreditStreamingHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, srv.URL, true)

	credit := model.Credit{ConversationID: "conv-1", TurnIndex: 0, ConversationNum: 2}
	records, ret := collectOne(t, m, func() {
		go w.processCredit(context.Background(), credit)
	})

	require.NotNil(t, records)
	require.NotNil(t, ret)
	assert.Nil(t, records.Error)
	assert.False(t, ret.Errored)
}

func TestWorkerProcessCreditDatasetLookupFailure(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	unregister, err := m.RegisterReplyHandler(context.Background(), messages.QueueDataset, func(msg messages.Message) messages.Message {
		return &messages.ConversationTurnResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationTurnResponse},
			Found:    false,
		}
	})
	require.NoError(t, err)
	defer unregister()

	w := newTestWorker(t, m, "http://unused.invalid", false)

	credit := model.Credit{ConversationID: "conv-missing", TurnIndex: 0, ConversationNum: 3}
	records, ret := collectOne(t, m, func() {
		go w.processCredit(context.Background(), credit)
	})

	require.NotNil(t, records)
	require.NotNil(t, ret)
	require.NotNil(t, records.Error)
	assert.Equal(t, "dataset_lookup_failed", records.Error.Type)
	assert.True(t, ret.Errored)
}

func TestWorkerProcessCreditTransportErrorIsReportedAsFailure(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, "http://127.0.0.1:1", false)
	w.http = httpclient.New(httpclient.Options{
		DialTimeout:    50 * time.Millisecond,
		MaxRetries:     0,
		RequestTimeout: 200 * time.Millisecond,
	}, fakeNow())

	credit := model.Credit{ConversationID: "conv-1", TurnIndex: 0, ConversationNum: 4}
	records, ret := collectOne(t, m, func() {
		go w.processCredit(context.Background(), credit)
	})

	require.NotNil(t, records)
	require.NotNil(t, ret)
	require.NotNil(t, records.Error)
	assert.Equal(t, "transport_error", records.Error.Type)
	assert.True(t, ret.Errored)
}

func TestWorkerProcessCreditCancellationMarksRecordCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"too late"}}]}`))
	}))
	defer srv.Close()

	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, srv.URL, false)

	credit := model.Credit{
		ConversationID:  "conv-1",
		TurnIndex:       0,
		ConversationNum: 5,
		ShouldCancel:    true,
		CancelAfterNs:   int64(20 * time.Millisecond),
	}
	records, ret := collectOne(t, m, func() {
		go w.processCredit(context.Background(), credit)
	})

	require.NotNil(t, records)
	require.NotNil(t, ret)
	assert.True(t, ret.Cancelled)
}

func TestWorkerRunPullsProcessesAndAcksCredit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi back"}}]}`))
	}))
	defer srv.Close()

	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, srv.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(ctx) }()

	credit := model.Credit{ConversationID: "conv-1", TurnIndex: 0, ConversationNum: 6}
	records, ret := collectOne(t, m, func() {
		require.NoError(t, m.Push(context.Background(), messages.QueueCredits, &messages.CreditDrop{
			Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop},
			Credit:   credit,
		}))
	})
	require.NotNil(t, records)
	require.NotNil(t, ret)
	assert.False(t, ret.Errored)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestWorkerRunIgnoresNonCreditDropMessage(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()

	w := newTestWorker(t, m, "http://unused.invalid", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(ctx) }()

	require.NoError(t, m.Push(context.Background(), messages.QueueCredits, &messages.Heartbeat{
		Envelope: messages.Envelope{MessageType: messages.TypeHeartbeat},
		Sequence: 1,
	}))

	// Give Run a beat to pull, reject, and ack the stray message, then make
	// sure it's still alive and responsive to cancellation.
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
