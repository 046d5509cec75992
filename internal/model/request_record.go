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

import "fmt"

// ErrorDetails describes a failed request (spec §3, §7).
type ErrorDetails struct {
	Code    int    `json:"code,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *ErrorDetails) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (code %d): %s", e.Type, e.Code, e.Message)
}

// RawResponse is either a non-streaming text blob or an ordered list of SSE
// message lines, whichever the endpoint returned.
type RawResponse struct {
	// PerfNs is the monotonic timestamp this raw chunk/response was fully
	// received at.
	PerfNs int64 `json:"perf_ns"`

	// Text holds the raw body for a non-streaming response.
	Text string `json:"text,omitempty"`

	// SSELines holds the raw lines of one SSE frame (already split on the
	// WHATWG line terminators, before ":"-field parsing) for a streaming
	// response.
	SSELines []string `json:"sse_lines,omitempty"`
}

// RequestRecord is the raw timing and raw-response capture of a single HTTP
// call (spec §3).
type RequestRecord struct {
	ConversationID string `json:"conversation_id"`
	TurnIndex      int    `json:"turn_index"`
	ModelName      string `json:"model_name"`

	StartPerfNs int64 `json:"start_perf_ns"`
	EndPerfNs   int64 `json:"end_perf_ns"`

	// RecvStartPerfNs is the first-byte timestamp; zero if no byte was ever
	// received (e.g. connection refused).
	RecvStartPerfNs int64 `json:"recv_start_perf_ns,omitempty"`

	Status    int           `json:"status"`
	Responses []RawResponse `json:"responses,omitempty"`

	Error *ErrorDetails `json:"error,omitempty"`

	Delayed   bool `json:"delayed"`
	Cancelled bool `json:"cancelled"`
}

// Validate checks the invariant of spec §3: if Error is nil then
// EndPerfNs >= StartPerfNs, at least one response exists, and every
// response's PerfNs lies within [StartPerfNs, EndPerfNs].
func (r *RequestRecord) Validate() error {
	if r.Error != nil {
		return nil
	}
	if r.EndPerfNs < r.StartPerfNs {
		return fmt.Errorf("model: end_perf_ns %d before start_perf_ns %d", r.EndPerfNs, r.StartPerfNs)
	}
	if len(r.Responses) == 0 {
		return fmt.Errorf("model: request record has no error and no responses")
	}
	for i, resp := range r.Responses {
		if resp.PerfNs < r.StartPerfNs || resp.PerfNs > r.EndPerfNs {
			return fmt.Errorf("model: response[%d].perf_ns %d outside [%d, %d]", i, resp.PerfNs, r.StartPerfNs, r.EndPerfNs)
		}
	}
	return nil
}
