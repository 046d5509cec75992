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

package convert

import (
	"encoding/json"
	"fmt"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// doneSentinel is the SSE terminal marker OpenAI-compatible streaming
// endpoints send in place of a final JSON chunk.
const doneSentinel = "[DONE]"

// chatChunk is the streaming /v1/chat/completions delta shape.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

// chatCompletion is the non-streaming /v1/chat/completions shape.
type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
}

// completionsChunk covers both the streaming and non-streaming
// /v1/completions shape, which is identical modulo chunk count.
type completionsChunk struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// responsesPayload is the non-streaming /v1/responses shape: a flat list
// of typed output items, each carrying one or more content parts.
type responsesPayload struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// Extract turns an endpoint's raw responses (one per SSE frame when
// streaming, or a single non-streaming body) into tagged ParsedResponse
// values (spec §4.5). The "[DONE]" sentinel is recognized and excluded
// rather than converted into a token-bearing response.
func Extract(endpointType string, streaming bool, responses []model.RawResponse) ([]model.ParsedResponse, error) {
	switch endpointType {
	case EndpointChatCompletions:
		return extractChat(streaming, responses)
	case EndpointCompletions:
		return extractCompletions(responses)
	case EndpointEmbeddings:
		return extractEmbeddings(responses)
	case EndpointResponses:
		return extractResponses(responses)
	default:
		return nil, fmt.Errorf("convert: unknown endpoint type %q", endpointType)
	}
}

func extractChat(streaming bool, responses []model.RawResponse) ([]model.ParsedResponse, error) {
	var out []model.ParsedResponse
	if !streaming {
		if len(responses) != 1 {
			return nil, fmt.Errorf("convert: non-streaming chat completions expects exactly one response, got %d", len(responses))
		}
		var body chatCompletion
		if err := json.Unmarshal([]byte(responses[0].Text), &body); err != nil {
			return nil, fmt.Errorf("convert: decode chat completion: %w", err)
		}
		if len(body.Choices) == 0 {
			return out, nil
		}
		msg := body.Choices[0].Message
		if msg.ReasoningContent != "" {
			out = append(out, model.ParsedResponse{PerfNs: responses[0].PerfNs, Kind: model.KindReasoning, ReasoningContent: msg.Content, ReasoningText: msg.ReasoningContent})
		} else if msg.Content != "" {
			out = append(out, model.ParsedResponse{PerfNs: responses[0].PerfNs, Kind: model.KindText, Text: msg.Content})
		}
		return out, nil
	}

	for _, r := range responses {
		if r.Text == doneSentinel {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(r.Text), &chunk); err != nil {
			return nil, fmt.Errorf("convert: decode chat chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			out = append(out, model.ParsedResponse{PerfNs: r.PerfNs, Kind: model.KindReasoning, ReasoningContent: delta.Content, ReasoningText: delta.ReasoningContent})
		} else if delta.Content != "" {
			out = append(out, model.ParsedResponse{PerfNs: r.PerfNs, Kind: model.KindText, Text: delta.Content})
		}
	}
	return out, nil
}

func extractCompletions(responses []model.RawResponse) ([]model.ParsedResponse, error) {
	var out []model.ParsedResponse
	for _, r := range responses {
		if r.Text == doneSentinel {
			continue
		}
		var chunk completionsChunk
		if err := json.Unmarshal([]byte(r.Text), &chunk); err != nil {
			return nil, fmt.Errorf("convert: decode completions chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		out = append(out, model.ParsedResponse{PerfNs: r.PerfNs, Kind: model.KindText, Text: chunk.Choices[0].Text})
	}
	return out, nil
}

func extractEmbeddings(responses []model.RawResponse) ([]model.ParsedResponse, error) {
	if len(responses) != 1 {
		return nil, fmt.Errorf("convert: embeddings expects exactly one response, got %d", len(responses))
	}
	var body embeddingsResponse
	if err := json.Unmarshal([]byte(responses[0].Text), &body); err != nil {
		return nil, fmt.Errorf("convert: decode embeddings response: %w", err)
	}
	out := make([]model.ParsedResponse, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, model.ParsedResponse{PerfNs: responses[0].PerfNs, Kind: model.KindEmbedding, Embedding: d.Embedding})
	}
	return out, nil
}

func extractResponses(responses []model.RawResponse) ([]model.ParsedResponse, error) {
	if len(responses) != 1 {
		return nil, fmt.Errorf("convert: responses endpoint expects exactly one response, got %d", len(responses))
	}
	var body responsesPayload
	if err := json.Unmarshal([]byte(responses[0].Text), &body); err != nil {
		return nil, fmt.Errorf("convert: decode responses payload: %w", err)
	}
	var out []model.ParsedResponse
	for _, item := range body.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Text == "" {
				continue
			}
			out = append(out, model.ParsedResponse{PerfNs: responses[0].PerfNs, Kind: model.KindText, Text: part.Text})
		}
	}
	return out, nil
}
