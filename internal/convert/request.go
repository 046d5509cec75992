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

// Package convert turns a dataset Turn into an endpoint-specific JSON
// payload (spec §4.5's request converters) and turns an endpoint's raw
// response back into tagged ParsedResponse values (its response
// extractors).
package convert

import (
	"fmt"
	"strings"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// EndpointConfig carries the subset of a ProfileConfigure message a
// converter needs: which endpoint shape to target, whether the request
// should stream, and the extra payload/defaults to merge in.
type EndpointConfig struct {
	Type      string
	Streaming bool
	Extra     map[string]any
}

// Converter turns one Turn into a JSON-marshalable request payload.
type Converter interface {
	Convert(turn *model.Turn, cfg EndpointConfig) (map[string]any, error)
}

const (
	EndpointChatCompletions = "chat"
	EndpointCompletions     = "completions"
	EndpointEmbeddings      = "embeddings"
	EndpointResponses       = "responses"
)

// ForEndpoint returns the Converter registered for an endpoint type.
func ForEndpoint(endpointType string) (Converter, error) {
	switch endpointType {
	case EndpointChatCompletions:
		return ChatCompletionsConverter{}, nil
	case EndpointCompletions:
		return CompletionsConverter{}, nil
	case EndpointEmbeddings:
		return EmbeddingsConverter{}, nil
	case EndpointResponses:
		return ResponsesConverter{}, nil
	default:
		return nil, fmt.Errorf("convert: unknown endpoint type %q", endpointType)
	}
}

func mergeCommon(payload map[string]any, turn *model.Turn, cfg EndpointConfig) {
	payload["stream"] = cfg.Streaming
	if turn.Model != "" {
		payload["model"] = turn.Model
	}
	for k, v := range cfg.Extra {
		payload[k] = v
	}
}

// ChatCompletionsConverter builds an OpenAI-compatible /v1/chat/completions
// payload: a single user-role message with one content item per modality.
type ChatCompletionsConverter struct{}

func (ChatCompletionsConverter) Convert(turn *model.Turn, cfg EndpointConfig) (map[string]any, error) {
	role := turn.Role
	if role == "" {
		role = "user"
	}

	content := make([]map[string]any, 0, len(turn.Texts)+len(turn.Images)+len(turn.Audios))
	for _, text := range turn.Texts {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	for _, image := range turn.Images {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": image},
		})
	}
	for _, audio := range turn.Audios {
		format, b64, err := splitAudio(audio)
		if err != nil {
			return nil, err
		}
		content = append(content, map[string]any{
			"type": "input_audio",
			"input_audio": map[string]any{
				"data":   b64,
				"format": format,
			},
		})
	}

	payload := map[string]any{
		"messages": []map[string]any{
			{"role": role, "content": content},
		},
	}
	if turn.MaxTokens != nil {
		payload["max_completion_tokens"] = *turn.MaxTokens
	}
	mergeCommon(payload, turn, cfg)
	return payload, nil
}

// splitAudio splits a "format,b64_audio" turn audio entry at its first
// comma, raising when the comma is missing (spec §4.5).
func splitAudio(audio string) (format, b64 string, err error) {
	idx := strings.IndexByte(audio, ',')
	if idx < 0 {
		return "", "", fmt.Errorf("convert: audio entry %q missing \"format,b64_audio\" comma separator", audio)
	}
	return audio[:idx], audio[idx+1:], nil
}

// CompletionsConverter builds an OpenAI-compatible /v1/completions payload
// from the turn's raw prompt text.
type CompletionsConverter struct{}

func (CompletionsConverter) Convert(turn *model.Turn, cfg EndpointConfig) (map[string]any, error) {
	payload := map[string]any{
		"prompt": strings.Join(turn.Texts, ""),
	}
	if turn.MaxTokens != nil {
		payload["max_tokens"] = *turn.MaxTokens
	}
	mergeCommon(payload, turn, cfg)
	return payload, nil
}

// EmbeddingsConverter builds an OpenAI-compatible /v1/embeddings payload,
// applying the {1536, "float", ""} defaults spec §4.5 specifies.
type EmbeddingsConverter struct{}

func (EmbeddingsConverter) Convert(turn *model.Turn, cfg EndpointConfig) (map[string]any, error) {
	payload := map[string]any{
		"input":           turn.Texts,
		"dimensions":      1536,
		"encoding_format": "float",
		"user":            "",
	}
	mergeCommon(payload, turn, cfg)
	return payload, nil
}

// ResponsesConverter builds an OpenAI-compatible /v1/responses payload,
// defaulting max_output_tokens to 1000 when the turn doesn't override it.
type ResponsesConverter struct{}

func (ResponsesConverter) Convert(turn *model.Turn, cfg EndpointConfig) (map[string]any, error) {
	maxOutput := 1000
	if turn.MaxTokens != nil {
		maxOutput = *turn.MaxTokens
	}
	payload := map[string]any{
		"input":             strings.Join(turn.Texts, ""),
		"max_output_tokens": maxOutput,
	}
	mergeCommon(payload, turn, cfg)
	return payload, nil
}
