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

// Package datasetmanager serves a loaded conversation set to workers over
// the dataset req/rep queue (spec §4.3 step 2): a random conversation for
// credits that carry no conversation id, and single-turn lookups for the
// fallback path when a worker's in-process cache misses.
package datasetmanager

import (
	"context"
	"math/rand"

	"github.com/go-logr/logr"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// Service answers ConversationRequest/ConversationTurnRequest calls on
// messages.QueueDataset out of an in-memory conversation set loaded at
// boot. Conversations never change during a run, so no locking is needed
// beyond what the rng requires.
type Service struct {
	transport     bus.Transport
	conversations []*model.Conversation
	byID          map[string]*model.Conversation
	rng           *rand.Rand
	log           logr.Logger
}

// NewService builds a Service over conversations. seed makes random-pick
// selection reproducible for tests; production callers pass
// time.Now().UnixNano().
func NewService(transport bus.Transport, conversations []*model.Conversation, seed int64, log logr.Logger) *Service {
	byID := make(map[string]*model.Conversation, len(conversations))
	for _, c := range conversations {
		byID[c.ID] = c
	}
	return &Service{
		transport:     transport,
		conversations: conversations,
		byID:          byID,
		rng:           rand.New(rand.NewSource(seed)),
		log:           log,
	}
}

// Run registers the reply handler and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	unsub, err := s.transport.RegisterReplyHandler(ctx, messages.QueueDataset, s.handle)
	if err != nil {
		return err
	}
	defer unsub()

	<-ctx.Done()
	return nil
}

func (s *Service) handle(msg messages.Message) messages.Message {
	switch req := msg.(type) {
	case *messages.ConversationRequest:
		return s.handleConversationRequest()
	case *messages.ConversationTurnRequest:
		return s.handleConversationTurnRequest(req)
	default:
		s.log.Info("datasetmanager: ignoring unexpected request type", "type", msg.Envelope().MessageType)
		return &messages.ConversationResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationResponse},
			Found:    false,
		}
	}
}

func (s *Service) handleConversationRequest() messages.Message {
	if len(s.conversations) == 0 {
		return &messages.ConversationResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationResponse},
			Found:    false,
		}
	}
	c := s.conversations[s.rng.Intn(len(s.conversations))]
	return &messages.ConversationResponse{
		Envelope:     messages.Envelope{MessageType: messages.TypeConversationResponse},
		Conversation: c,
		Found:        true,
	}
}

func (s *Service) handleConversationTurnRequest(req *messages.ConversationTurnRequest) messages.Message {
	c, ok := s.byID[req.ConversationID]
	if !ok {
		return &messages.ConversationTurnResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationTurnResponse},
			Found:    false,
		}
	}
	turn := c.TurnAt(req.TurnIndex)
	if turn == nil {
		return &messages.ConversationTurnResponse{
			Envelope: messages.Envelope{MessageType: messages.TypeConversationTurnResponse},
			Found:    false,
		}
	}
	return &messages.ConversationTurnResponse{
		Envelope: messages.Envelope{MessageType: messages.TypeConversationTurnResponse},
		Turn:     turn,
		Found:    true,
	}
}

// Conversations exposes the loaded set, read-only, for callers (e.g. a
// fixed-schedule timing manager) that need every turn's schedule timestamp
// up front rather than through req/rep round trips.
func (s *Service) Conversations() []*model.Conversation {
	return s.conversations
}
