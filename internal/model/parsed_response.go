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

// ResponseKind discriminates the tagged content variant of a ParsedResponse
// (spec §3).
type ResponseKind string

const (
	KindText      ResponseKind = "text"
	KindReasoning ResponseKind = "reasoning"
	KindEmbedding ResponseKind = "embedding"
	KindMetrics   ResponseKind = "metrics_only"
)

// ParsedResponse is one parser output unit: a monotonic timestamp plus a
// tagged content variant.
type ParsedResponse struct {
	PerfNs int64        `json:"perf_ns"`
	Kind   ResponseKind `json:"kind"`

	// Text holds content for KindText.
	Text string `json:"text,omitempty"`

	// ReasoningContent/ReasoningText hold content for KindReasoning: the
	// non-reasoning content accompanying this chunk (often empty) and the
	// reasoning trace itself.
	ReasoningContent string `json:"reasoning_content,omitempty"`
	ReasoningText    string `json:"reasoning_text,omitempty"`

	// Embedding holds the vector for KindEmbedding.
	Embedding []float64 `json:"embedding,omitempty"`
}

// IsReasoningOnly reports whether this response carries only a reasoning
// trace and no user-visible content — used by TimeToFirstOutput (spec §4.4).
func (p *ParsedResponse) IsReasoningOnly() bool {
	return p.Kind == KindReasoning && p.ReasoningContent == ""
}

// ParsedResponseRecord wraps the originating RequestRecord with its parsed
// responses and token counts.
type ParsedResponseRecord struct {
	Request *RequestRecord `json:"request"`

	Responses []ParsedResponse `json:"responses"`

	InputTokenCount     *int `json:"input_token_count,omitempty"`
	OutputTokenCount    *int `json:"output_token_count,omitempty"`
	ReasoningTokenCount *int `json:"reasoning_token_count,omitempty"`
}

// Validate checks that responses are ordered by PerfNs non-decreasing
// (spec §3 invariant).
func (r *ParsedResponseRecord) Validate() error {
	for i := 1; i < len(r.Responses); i++ {
		if r.Responses[i].PerfNs < r.Responses[i-1].PerfNs {
			return fmt.Errorf("model: response[%d].perf_ns %d precedes response[%d].perf_ns %d",
				i, r.Responses[i].PerfNs, i-1, r.Responses[i-1].PerfNs)
		}
	}
	return nil
}

// OutputSequenceLength returns output_token_count + reasoning_token_count,
// treating absent counts as zero (spec §4.4).
func (r *ParsedResponseRecord) OutputSequenceLength() int {
	total := 0
	if r.OutputTokenCount != nil {
		total += *r.OutputTokenCount
	}
	if r.ReasoningTokenCount != nil {
		total += *r.ReasoningTokenCount
	}
	return total
}
