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

// InferenceResults carries the raw parsed-response record for one request.
// It is registered with the message factory, but no service sends it: the
// worker evaluates each record itself and pushes MetricRecords onto the
// inference-results queue instead.
type InferenceResults struct {
	Envelope
	Record model.ParsedResponseRecord `json:"record"`
}

func init() {
	register(TypeInferenceResults, func() Message { return &InferenceResults{Envelope: Envelope{MessageType: TypeInferenceResults}} })
}

// MetricRecords carries one request's computed per-record and
// per-record-contribution metric values (spec §3 invariant (a): exactly
// one RequestRecord per message).
type MetricRecords struct {
	Envelope
	ConversationID string             `json:"conversation_id"`
	TurnIndex      int                `json:"turn_index"`
	StartPerfNs    int64              `json:"start_perf_ns"`
	EndPerfNs      int64              `json:"end_perf_ns"`
	ModelName      string             `json:"model_name"`
	Error          *model.ErrorDetails `json:"error,omitempty"`
	Values         map[string]float64  `json:"values"`
}

func init() {
	register(TypeMetricRecords, func() Message { return &MetricRecords{Envelope: Envelope{MessageType: TypeMetricRecords}} })
}

// RealtimeMetrics is a req/rep query for the current snapshot of admitted
// metrics, answerable at any time during PROFILING (spec §4.6).
type RealtimeMetrics struct {
	Envelope
	Results []model.MetricResult `json:"results"`
}

func init() {
	register(TypeRealtimeMetrics, func() Message { return &RealtimeMetrics{Envelope: Envelope{MessageType: TypeRealtimeMetrics}} })
}

// ProcessRecordsResult is the records manager's final published payload
// (spec §4.6 finalization).
type ProcessRecordsResult struct {
	Envelope
	Result model.ProcessRecordsResult `json:"result"`
}

func init() {
	register(TypeProcessRecordsResult, func() Message { return &ProcessRecordsResult{Envelope: Envelope{MessageType: TypeProcessRecordsResult}} })
}
