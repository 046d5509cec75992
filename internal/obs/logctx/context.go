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

// Package logctx provides structured logging context management.
// It allows storing and extracting common logging fields from
// context.Context, enabling consistent logging across bus, worker,
// timing-strategy, and records-manager services.
package logctx

import (
	"context"

	"github.com/go-logr/logr"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields common to AIPerf's message-bus services.
const (
	ContextKeyServiceID      contextKey = "service_id"
	ContextKeyRequestID      contextKey = "request_id"
	ContextKeyConversationID contextKey = "conversation_id"
	ContextKeyWorkerID       contextKey = "worker_id"
	ContextKeyPhase          contextKey = "phase"
)

var allContextKeys = []contextKey{
	ContextKeyServiceID,
	ContextKeyRequestID,
	ContextKeyConversationID,
	ContextKeyWorkerID,
	ContextKeyPhase,
}

// WithServiceID returns a new context with the service id set.
func WithServiceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyServiceID, id)
}

// WithRequestID returns a new context with the request id set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// WithConversationID returns a new context with the conversation id set.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyConversationID, id)
}

// WithWorkerID returns a new context with the worker id set.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkerID, id)
}

// WithPhase returns a new context with the credit phase set.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ContextKeyPhase, phase)
}

// LogrValues extracts context values as key-value pairs suitable for
// logr.Logger.WithValues(). Only non-empty values are included.
func LogrValues(ctx context.Context) []interface{} {
	var values []interface{}
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				values = append(values, string(key), s)
			}
		}
	}
	return values
}

// From returns a logger enriched with all context values found on ctx.
func From(ctx context.Context, base logr.Logger) logr.Logger {
	values := LogrValues(ctx)
	if len(values) == 0 {
		return base
	}
	return base.WithValues(values...)
}

// ServiceID extracts the service id from the context.
func ServiceID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyServiceID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequestID extracts the request id from the context.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
