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

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	var mu sync.Mutex
	var received []messages.Message
	done := make(chan struct{}, 1)

	unsubscribe, err := m.Subscribe(ctx, "heartbeats", func(msg messages.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer unsubscribe()

	hb := &messages.Heartbeat{Envelope: messages.Envelope{MessageType: messages.TypeHeartbeat, ServiceID: "worker-1"}, Sequence: 1}
	require.NoError(t, m.Publish(ctx, "heartbeats", hb))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, hb, received[0])
}

func TestMemoryPublishNoSubscribersIsNotAnError(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	err := m.Publish(context.Background(), "nobody-listening", &messages.Heartbeat{})
	assert.NoError(t, err)
}

func TestMemoryPushPullAck(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	credit := &messages.CreditDrop{Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop}}
	require.NoError(t, m.Push(ctx, "credits", credit))

	delivery, err := m.Pull(ctx, "credits", time.Second)
	require.NoError(t, err)
	assert.Equal(t, credit, delivery.Message)

	require.NoError(t, m.Ack(ctx, "credits", delivery.Handle))
}

func TestMemoryPullBlocksUntilPush(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	type result struct {
		delivery Delivery
		err      error
	}
	resultCh := make(chan result, 1)
	go func() {
		d, err := m.Pull(ctx, "slow", time.Second)
		resultCh <- result{d, err}
	}()

	time.Sleep(20 * time.Millisecond)
	credit := &messages.CreditDrop{Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop}}
	require.NoError(t, m.Push(ctx, "slow", credit))

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, credit, r.delivery.Message)
	case <-time.After(time.Second):
		t.Fatal("Pull never returned after Push")
	}
}

func TestMemoryPullRespectsContextCancellation(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Pull(ctx, "empty", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryUnackedItemIsRedelivered(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	credit := &messages.CreditDrop{Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop}}
	require.NoError(t, m.Push(ctx, "visibility", credit))

	first, err := m.Pull(ctx, "visibility", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, credit, first.Message)
	// Deliberately never Ack first; wait for the visibility timeout to fire.

	second, err := m.Pull(ctx, "visibility", time.Second)
	require.NoError(t, err)
	assert.Equal(t, credit, second.Message)
	require.NoError(t, m.Ack(ctx, "visibility", second.Handle))
}

func TestMemoryRequestReply(t *testing.T) {
	m := NewMemory()
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	unregister, err := m.RegisterReplyHandler(ctx, "echo", func(msg messages.Message) messages.Message {
		turn := &model.Turn{Role: "user"}
		return &messages.ConversationTurnResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationTurnResponse},
			Found:    true,
			Turn:     turn,
		}
	})
	require.NoError(t, err)
	defer unregister()

	req := &messages.ConversationTurnRequest{
		Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnRequest},
		ConversationID: "conv-42",
	}
	reply, err := m.Request(ctx, "echo", req, time.Second)
	require.NoError(t, err)

	resp, ok := reply.(*messages.ConversationTurnResponse)
	require.True(t, ok)
	assert.True(t, resp.Found)
	assert.Equal(t, req.Envelope().RequestID, resp.Envelope().RequestID)
}

func TestMemoryCloseRejectsNewOperations(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	ctx := context.Background()
	assert.ErrorIs(t, m.Publish(ctx, "t", &messages.Heartbeat{}), ErrClosed)
	assert.ErrorIs(t, m.Push(ctx, "q", &messages.Heartbeat{}), ErrClosed)
	_, err := m.Subscribe(ctx, "t", func(messages.Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}
