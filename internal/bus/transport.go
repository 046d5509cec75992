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

// Package bus implements AIPerf's three socket families — PUB/SUB,
// PUSH/PULL, and REQ/REP — as described in spec §4.1. Two Transport
// implementations are provided: Memory (single-process, used for tests and
// the "all services in one binary" development mode) and Redis
// (distributed, used across real worker subprocesses).
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

// ErrClosed is returned by any Transport operation after Close.
var ErrClosed = errors.New("bus: transport closed")

// ErrTimeout is returned by Request when no reply arrives before its
// timeout. Pull reports a done ctx as ctx.Err(), not ErrTimeout.
var ErrTimeout = errors.New("bus: timed out waiting for message")

// Delivery wraps a pulled message with the handle needed to Ack it.
type Delivery struct {
	Message messages.Message
	Handle  string
}

// Transport is the broker-mediated contract every AIPerf service depends
// on. Publish is fire-and-forget (spec §4.1: "no delivery guarantee across
// process restarts"). Push/Pull load-balances across pullers of the same
// queue name, at-most-once per puller; callers that need at-least-once
// redelivery achieve it themselves by not Ack-ing (e.g. on a worker crash,
// the visibility timeout returns the item to pending).
type Transport interface {
	// Publish fans a message out to every current Subscribe-r of topic.
	Publish(ctx context.Context, topic string, msg messages.Message) error

	// Subscribe registers handler to be invoked, synchronously and in
	// publish order, for every message published to topic. The returned
	// func unsubscribes. Per spec §4.1, a slow handler only delays this
	// subscriber — Subscribe implementations must not block other
	// subscribers or other topics on a single handler call.
	Subscribe(ctx context.Context, topic string, handler func(messages.Message)) (func(), error)

	// Push enqueues msg onto queue for load-balanced delivery to one Pull
	// caller.
	Push(ctx context.Context, queue string, msg messages.Message) error

	// Pull blocks until a message is available on queue or ctx is done. The
	// returned Delivery.Handle must be passed to Ack once processing
	// completes; if the caller crashes before Ack, the message becomes
	// available again after visibility elapses.
	Pull(ctx context.Context, queue string, visibility time.Duration) (Delivery, error)

	// Ack marks a pulled message as successfully processed.
	Ack(ctx context.Context, queue string, handle string) error

	// Request sends msg on queue and blocks for a reply carrying the same
	// RequestID, or until timeout elapses (ErrTimeout) or ctx is done.
	// If msg's Envelope().RequestID is empty, a fresh one is assigned
	// before sending.
	Request(ctx context.Context, queue string, msg messages.Message, timeout time.Duration) (messages.Message, error)

	// RegisterReplyHandler registers handler to answer Request calls on
	// queue; handler's return value is sent back with the request's
	// RequestID attached. The returned func unregisters.
	RegisterReplyHandler(ctx context.Context, queue string, handler func(messages.Message) messages.Message) (func(), error)

	// Close releases transport resources. Idempotent.
	Close() error
}
