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

package model

// Phase is a credit's lifecycle phase: discarded WARMUP measurements versus
// measured PROFILING ones (spec §4.2, GLOSSARY).
type Phase string

const (
	PhaseWarmup    Phase = "WARMUP"
	PhaseProfiling Phase = "PROFILING"
)

// Credit is the unit of work emitted by a timing strategy onto the
// push/pull credits channel. It is owned by the timing strategy until
// pushed, and consumed exactly once by exactly one worker (spec §3,
// invariant (b)).
type Credit struct {
	Phase Phase `json:"phase"`

	// ConversationID is optional; when empty, the worker selects a random
	// conversation via the dataset access client.
	ConversationID string `json:"conversation_id,omitempty"`

	// TurnIndex selects which turn of the conversation to issue.
	TurnIndex int `json:"turn_index"`

	// ShouldCancel and CancelAfterNs implement the timeout race of spec
	// §4.3 step 5.
	ShouldCancel  bool  `json:"should_cancel"`
	CancelAfterNs int64 `json:"cancel_after_ns,omitempty"`

	// CreditDropPerfNs is the monotonic timestamp the strategy emitted this
	// credit at.
	CreditDropPerfNs int64 `json:"credit_drop_perf_ns"`

	// ConversationNum is a monotonic counter assigned by the strategy,
	// unique within one phase of one run.
	ConversationNum int64 `json:"conversation_num"`
}
