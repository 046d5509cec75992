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

// Package dataset is the worker's read-only conversation lookup client: an
// in-process cache backed by req/rep calls to the dataset manager for
// conversations it hasn't seen yet (spec §4.3 step 2, §4.6).
package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// ErrNotFound is returned when the dataset manager has no such
// conversation or turn.
var ErrNotFound = fmt.Errorf("dataset: not found")

type negativeEntry struct {
	expiresAt time.Time
}

// Store resolves a Credit's conversation/turn into a model.Turn, caching
// whole conversations in-process and remembering recent not-found replies
// for a short TTL so a missing id is not looked up again on every credit.
// Request errors and timeouts are not cached.
type Store struct {
	transport      bus.Transport
	queueName      string
	requestTimeout time.Duration
	negativeTTL    time.Duration
	now            func() time.Time

	mu            sync.Mutex
	conversations map[string]*model.Conversation
	negative      map[string]negativeEntry
}

// NewStore builds a Store issuing req/rep calls over transport's queueName
// queue for conversations not already cached.
func NewStore(transport bus.Transport, queueName string, requestTimeout time.Duration) *Store {
	return &Store{
		transport:      transport,
		queueName:      queueName,
		requestTimeout: requestTimeout,
		negativeTTL:    30 * time.Second,
		now:            time.Now,
		conversations:  make(map[string]*model.Conversation),
		negative:       make(map[string]negativeEntry),
	}
}

// Preload seeds the in-process cache directly, used by the single-process
// development mode where the dataset composer runs in the same binary.
func (s *Store) Preload(conv *model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
}

// Turn resolves a credit's turn. When conversationID is empty, a random
// conversation is requested from the dataset manager and its id returned
// alongside the turn.
func (s *Store) Turn(ctx context.Context, conversationID string, turnIndex int) (string, *model.Turn, error) {
	if conversationID == "" {
		conv, err := s.randomConversation(ctx)
		if err != nil {
			return "", nil, err
		}
		turn := conv.TurnAt(turnIndex)
		if turn == nil {
			return conv.ID, nil, fmt.Errorf("%w: turn index %d of conversation %s", ErrNotFound, turnIndex, conv.ID)
		}
		return conv.ID, turn, nil
	}

	if conv, ok := s.cached(conversationID); ok {
		turn := conv.TurnAt(turnIndex)
		if turn == nil {
			return conversationID, nil, fmt.Errorf("%w: turn index %d of conversation %s", ErrNotFound, turnIndex, conversationID)
		}
		return conversationID, turn, nil
	}

	negativeKey := fmt.Sprintf("%s/%d", conversationID, turnIndex)
	if s.isNegative(negativeKey) {
		return conversationID, nil, fmt.Errorf("%w: %s (cached miss)", ErrNotFound, negativeKey)
	}

	req := &messages.ConversationTurnRequest{
		Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnRequest},
		ConversationID: conversationID,
		TurnIndex:      turnIndex,
	}
	reply, err := s.transport.Request(ctx, s.queueName, req, s.requestTimeout)
	if err != nil {
		return conversationID, nil, fmt.Errorf("dataset: request turn %s: %w", negativeKey, err)
	}
	resp, ok := reply.(*messages.ConversationTurnResponse)
	if !ok {
		return conversationID, nil, fmt.Errorf("dataset: unexpected reply type %T", reply)
	}
	if !resp.Found || resp.Turn == nil {
		s.markNegative(negativeKey)
		return conversationID, nil, fmt.Errorf("%w: %s", ErrNotFound, negativeKey)
	}
	return conversationID, resp.Turn, nil
}

func (s *Store) randomConversation(ctx context.Context) (*model.Conversation, error) {
	req := &messages.ConversationRequest{Envelope: messages.Envelope{MessageType: messages.TypeConversationRequest}}
	reply, err := s.transport.Request(ctx, s.queueName, req, s.requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("dataset: request random conversation: %w", err)
	}
	resp, ok := reply.(*messages.ConversationResponse)
	if !ok {
		return nil, fmt.Errorf("dataset: unexpected reply type %T", reply)
	}
	if !resp.Found || resp.Conversation == nil {
		return nil, fmt.Errorf("%w: no conversation available", ErrNotFound)
	}
	s.mu.Lock()
	s.conversations[resp.Conversation.ID] = resp.Conversation
	s.mu.Unlock()
	return resp.Conversation, nil
}

func (s *Store) cached(conversationID string) (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	return conv, ok
}

func (s *Store) isNegative(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.negative[key]
	if !ok {
		return false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.negative, key)
		return false
	}
	return true
}

func (s *Store) markNegative(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negative[key] = negativeEntry{expiresAt: s.now().Add(s.negativeTTL)}
}
