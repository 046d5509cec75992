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

package datasetmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
)

func sampleConversations() []*model.Conversation {
	return []*model.Conversation{
		{ID: "conv-1", Turns: []*model.Turn{{Texts: []string{"hello"}}, {Texts: []string{"again"}}}},
		{ID: "conv-2", Turns: []*model.Turn{{Texts: []string{"world"}}}},
	}
}

func TestHandleConversationRequestReturnsFound(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := NewService(m, sampleConversations(), 1, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	reply, err := m.Request(ctx, messages.QueueDataset, &messages.ConversationRequest{
		Envelope: messages.Envelope{MessageType: messages.TypeConversationRequest, RequestID: "r1"},
	}, time.Second)
	require.NoError(t, err)
	resp, ok := reply.(*messages.ConversationResponse)
	require.True(t, ok)
	assert.True(t, resp.Found)
	assert.NotNil(t, resp.Conversation)
}

func TestHandleConversationTurnRequestFindsTurn(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := NewService(m, sampleConversations(), 1, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	reply, err := m.Request(ctx, messages.QueueDataset, &messages.ConversationTurnRequest{
		Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnRequest, RequestID: "r2"},
		ConversationID: "conv-1",
		TurnIndex:      1,
	}, time.Second)
	require.NoError(t, err)
	resp, ok := reply.(*messages.ConversationTurnResponse)
	require.True(t, ok)
	require.True(t, resp.Found)
	assert.Equal(t, []string{"again"}, resp.Turn.Texts)
}

func TestHandleConversationTurnRequestMissingConversation(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := NewService(m, sampleConversations(), 1, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	reply, err := m.Request(ctx, messages.QueueDataset, &messages.ConversationTurnRequest{
		Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnRequest, RequestID: "r3"},
		ConversationID: "does-not-exist",
	}, time.Second)
	require.NoError(t, err)
	resp, ok := reply.(*messages.ConversationTurnResponse)
	require.True(t, ok)
	assert.False(t, resp.Found)
}

func TestLoadConversationsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.jsonl")
	contents := `{"conversation_id":"conv-1","turns":[{"texts":["hi"]}]}` + "\n" +
		`{"conversation_id":"conv-2","turns":[{"texts":["there"]}]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	conversations, err := LoadConversations(path)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "conv-1", conversations[0].ID)
	assert.Equal(t, "conv-2", conversations[1].ID)
}
