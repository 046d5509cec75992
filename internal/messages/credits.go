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

package messages

import "github.com/ai-dynamo/aiperf/internal/model"

// CreditDrop carries one Credit onto the push/pull credits channel.
type CreditDrop struct {
	Envelope
	Credit model.Credit `json:"credit"`
}

func init() {
	register(TypeCreditDrop, func() Message { return &CreditDrop{Envelope: Envelope{MessageType: TypeCreditDrop}} })
}

// CreditReturn acknowledges that a worker finished processing a credit.
// The concurrency strategy counts these acks to maintain its outstanding
// cap. LatencyNs carries the worker's observed latency, but the timing
// manager does not read it.
type CreditReturn struct {
	Envelope
	ConversationNum int64 `json:"conversation_num"`
	LatencyNs       int64 `json:"latency_ns"`
	Errored         bool  `json:"errored"`
	Cancelled       bool  `json:"cancelled"`
}

func init() {
	register(TypeCreditReturn, func() Message { return &CreditReturn{Envelope: Envelope{MessageType: TypeCreditReturn}} })
}

// CreditsComplete is published by a timing strategy when its phase's stop
// condition is reached.
type CreditsComplete struct {
	Envelope
	Phase model.Phase `json:"phase"`
	Total int         `json:"total"`
}

func init() {
	register(TypeCreditsComplete, func() Message { return &CreditsComplete{Envelope: Envelope{MessageType: TypeCreditsComplete}} })
}

// ConversationRequest asks the dataset manager for a random conversation
// (used when a Credit carries no ConversationID).
type ConversationRequest struct {
	Envelope
}

func init() {
	register(TypeConversationRequest, func() Message { return &ConversationRequest{Envelope: Envelope{MessageType: TypeConversationRequest}} })
}

// ConversationResponse replies with a full conversation.
type ConversationResponse struct {
	Envelope
	Conversation *model.Conversation `json:"conversation"`
	Found        bool                `json:"found"`
}

func init() {
	register(TypeConversationResponse, func() Message { return &ConversationResponse{Envelope: Envelope{MessageType: TypeConversationResponse}} })
}

// ConversationTurnRequest asks the dataset manager for one turn of a known
// conversation id, the req/rep fallback path of spec §4.3 step 2.
type ConversationTurnRequest struct {
	Envelope
	ConversationID string `json:"conversation_id"`
	TurnIndex      int    `json:"turn_index"`
}

func init() {
	register(TypeConversationTurnRequest, func() Message { return &ConversationTurnRequest{Envelope: Envelope{MessageType: TypeConversationTurnRequest}} })
}

// ConversationTurnResponse replies with one turn.
type ConversationTurnResponse struct {
	Envelope
	Turn  *model.Turn `json:"turn"`
	Found bool        `json:"found"`
}

func init() {
	register(TypeConversationTurnResponse, func() Message { return &ConversationTurnResponse{Envelope: Envelope{MessageType: TypeConversationTurnResponse}} })
}
