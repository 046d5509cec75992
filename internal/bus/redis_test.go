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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// newTestRedisTransport creates a Redis transport backed by miniredis.
func newTestRedisTransport(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedis(client, RedisOptions{KeyPrefix: "test", ReapInterval: 20 * time.Millisecond})
	t.Cleanup(func() {
		_ = r.Close()
		_ = client.Close()
	})
	return r, mr
}

func TestRedisPushPullAck(t *testing.T) {
	r, _ := newTestRedisTransport(t)
	ctx := context.Background()

	credit := &messages.CreditDrop{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop},
		Credit:   model.Credit{Phase: model.PhaseProfiling, ConversationID: "conv-1", TurnIndex: 0, ConversationNum: 3},
	}
	require.NoError(t, r.Push(ctx, "credits", credit))

	pullCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	delivery, err := r.Pull(pullCtx, "credits", time.Second)
	require.NoError(t, err)

	got, ok := delivery.Message.(*messages.CreditDrop)
	require.True(t, ok)
	assert.Equal(t, credit.Credit, got.Credit)

	require.NoError(t, r.Ack(ctx, "credits", delivery.Handle))
}

func TestRedisPublishSubscribe(t *testing.T) {
	r, _ := newTestRedisTransport(t)
	ctx := context.Background()

	received := make(chan messages.Message, 1)
	unsubscribe, err := r.Subscribe(ctx, "heartbeats", func(msg messages.Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer unsubscribe()

	hb := &messages.Heartbeat{Envelope: messages.Envelope{MessageType: messages.TypeHeartbeat, ServiceID: "worker-1"}, Sequence: 9}
	require.NoError(t, r.Publish(ctx, "heartbeats", hb))

	select {
	case msg := <-received:
		assert.Equal(t, hb, msg)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestRedisUnackedItemIsRedelivered(t *testing.T) {
	r, _ := newTestRedisTransport(t)
	ctx := context.Background()

	credit := &messages.CreditDrop{Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop}}
	require.NoError(t, r.Push(ctx, "visibility", credit))

	pullCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	first, err := r.Pull(pullCtx, "visibility", 30*time.Millisecond)
	require.NoError(t, err)
	assert.IsType(t, &messages.CreditDrop{}, first.Message)
	// Deliberately never Ack; wait for the reaper to requeue it.

	time.Sleep(150 * time.Millisecond)

	pullCtx2, cancel2 := context.WithTimeout(ctx, time.Second)
	defer cancel2()
	second, err := r.Pull(pullCtx2, "visibility", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &messages.CreditDrop{}, second.Message)
	require.NoError(t, r.Ack(ctx, "visibility", second.Handle))
}
