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

// Package messages defines the discriminated message envelope that flows
// over AIPerf's message bus (spec §4.1, §6), plus the concrete message
// types and a factory that decodes wire JSON by message_type.
package messages

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the concrete payload of a Message.
type Type string

// Representative message types (spec §6).
const (
	TypeRegisterService     Type = "RegisterService"
	TypeProfileConfigure    Type = "ProfileConfigure"
	TypeProfileStart        Type = "ProfileStart"
	TypeProfileCancel       Type = "ProfileCancel"
	TypeShutdown            Type = "Shutdown"
	TypeShutdownWorkers     Type = "ShutdownWorkers"
	TypeSpawnWorkers        Type = "SpawnWorkers"
	TypeHeartbeat           Type = "Heartbeat"
	TypeStatus              Type = "Status"
	TypeCreditDrop          Type = "CreditDrop"
	TypeCreditReturn        Type = "CreditReturn"
	TypeCreditsComplete     Type = "CreditsComplete"
	TypeConversationRequest  Type = "ConversationRequest"
	TypeConversationResponse Type = "ConversationResponse"
	TypeConversationTurnRequest  Type = "ConversationTurnRequest"
	TypeConversationTurnResponse Type = "ConversationTurnResponse"
	TypeInferenceResults     Type = "InferenceResults"
	TypeMetricRecords        Type = "MetricRecords"
	TypeRealtimeMetrics      Type = "RealtimeMetrics"
	TypeProcessRecordsResult Type = "ProcessRecordsResult"
	TypeServiceFailed        Type = "ServiceFailed"
	TypeCommandResponse      Type = "CommandResponse"
)

// CommandStatus is the result status carried by a CommandResponse message.
type CommandStatus string

const (
	CommandSuccess      CommandStatus = "SUCCESS"
	CommandAcknowledged CommandStatus = "ACKNOWLEDGED"
	CommandFailure      CommandStatus = "FAILURE"
	CommandUnhandled    CommandStatus = "UNHANDLED"
)

// Envelope carries the fields common to every message on the bus (spec
// §4.1, §6). Concrete payloads embed Envelope and add message-specific
// fields; Type must match the Go type's registered discriminator.
type Envelope struct {
	MessageType     Type   `json:"message_type"`
	ServiceID       string `json:"service_id"`
	RequestNs       int64  `json:"request_ns"`
	RequestID       string `json:"request_id,omitempty"`
	TargetServiceID string `json:"target_service_id,omitempty"`
	TargetServiceType string `json:"target_service_type,omitempty"`
}

// Message is satisfied by every concrete payload type; Envelope() exposes
// the common fields for routing and logging without a type switch.
type Message interface {
	Envelope() *Envelope
}

func (e *Envelope) Envelope() *Envelope { return e }

// Decode dispatches on the wire JSON's "message_type" field into the
// concrete Go type registered for it, mirroring the single lightweight
// factory spec §4.1 calls for (rather than the two redundant SSE-parser
// implementations the design notes flag as duplicated).
func Decode(raw []byte) (Message, error) {
	var discr struct {
		MessageType Type `json:"message_type"`
	}
	if err := json.Unmarshal(raw, &discr); err != nil {
		return nil, fmt.Errorf("messages: decode envelope: %w", err)
	}
	ctor, ok := registry[discr.MessageType]
	if !ok {
		return nil, fmt.Errorf("messages: unknown message_type %q", discr.MessageType)
	}
	msg := ctor()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("messages: decode %s: %w", discr.MessageType, err)
	}
	return msg, nil
}

// Encode serializes any Message to its canonical JSON form.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// registry maps a Type to a constructor returning a zero-valued pointer,
// populated by each message type's init() via register().
var registry = map[Type]func() Message{}

func register(t Type, ctor func() Message) {
	registry[t] = ctor
}
