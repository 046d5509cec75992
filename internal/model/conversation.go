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

// Package model defines the data types that flow through AIPerf's message
// bus: conversations, credits, raw request records, parsed responses, and
// aggregated metric results (spec §3).
package model

// Conversation is an ordered sequence of Turn, identified by a unique id.
// Conversations are produced by the dataset composer (an external
// collaborator, spec §1) and are immutable once built; workers and the
// dataset access client only ever read them.
type Conversation struct {
	ID    string  `json:"conversation_id"`
	Turns []*Turn `json:"turns"`
}

// TurnAt returns the turn at index, or nil if out of range.
func (c *Conversation) TurnAt(index int) *Turn {
	if c == nil || index < 0 || index >= len(c.Turns) {
		return nil
	}
	return c.Turns[index]
}

// Turn holds one exchange's payload and scheduling metadata.
type Turn struct {
	// Role is the optional chat role override (defaults to "user" at the
	// converter level when empty).
	Role string `json:"role,omitempty"`

	// Texts, Images, and Audios each support per-turn batching: a turn may
	// carry more than one content item of a given modality.
	Texts  []string `json:"texts,omitempty"`
	Images []string `json:"images,omitempty"`
	Audios []string `json:"audios,omitempty"`

	// TimestampMs is an optional absolute schedule timestamp, used by the
	// fixed-schedule timing strategy.
	TimestampMs *int64 `json:"timestamp_ms,omitempty"`

	// DelayMs is an optional relative delay from the prior turn or from
	// session start, used by session-based multi-turn schedules.
	DelayMs *int64 `json:"delay_ms,omitempty"`

	// MaxTokens overrides the request's output token budget when set.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Model overrides the configured model for this turn only.
	Model string `json:"model,omitempty"`
}
