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

package bus

import (
	"context"
	"time"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

// Instrumented wraps a Transport with Prometheus metrics. It delegates
// every operation to the underlying transport while recording duration and
// outcome for each.
type Instrumented struct {
	transport Transport
	metrics   BusMetricsRecorder
}

// NewInstrumented wraps transport with metrics recording.
func NewInstrumented(transport Transport, metrics BusMetricsRecorder) *Instrumented {
	return &Instrumented{transport: transport, metrics: metrics}
}

// Publish records publish operation metrics and delegates.
func (t *Instrumented) Publish(ctx context.Context, topic string, msg messages.Message) error {
	start := time.Now()
	err := t.transport.Publish(ctx, topic, msg)
	t.metrics.RecordOperation(OpPublish, time.Since(start).Seconds(), err == nil)
	return err
}

// Subscribe delegates directly; subscription delivery isn't a discrete,
// timeable operation the way Publish/Push/Pull are.
func (t *Instrumented) Subscribe(ctx context.Context, topic string, handler func(messages.Message)) (func(), error) {
	return t.transport.Subscribe(ctx, topic, handler)
}

// Push records push operation metrics and delegates.
func (t *Instrumented) Push(ctx context.Context, queue string, msg messages.Message) error {
	start := time.Now()
	err := t.transport.Push(ctx, queue, msg)
	t.metrics.RecordOperation(OpPush, time.Since(start).Seconds(), err == nil)
	return err
}

// Pull records pull operation metrics and delegates. ctx cancellation is
// not treated as an error for metrics purposes, since it's the normal
// shutdown path for a long-lived Pull loop.
func (t *Instrumented) Pull(ctx context.Context, queue string, visibility time.Duration) (Delivery, error) {
	start := time.Now()
	d, err := t.transport.Pull(ctx, queue, visibility)
	success := err == nil || ctx.Err() != nil
	t.metrics.RecordOperation(OpPull, time.Since(start).Seconds(), success)
	return d, err
}

// Ack records ack operation metrics and delegates.
func (t *Instrumented) Ack(ctx context.Context, queue string, handle string) error {
	start := time.Now()
	err := t.transport.Ack(ctx, queue, handle)
	t.metrics.RecordOperation(OpAck, time.Since(start).Seconds(), err == nil)
	return err
}

// Request records request operation metrics and delegates.
func (t *Instrumented) Request(ctx context.Context, queue string, msg messages.Message, timeout time.Duration) (messages.Message, error) {
	start := time.Now()
	reply, err := t.transport.Request(ctx, queue, msg, timeout)
	t.metrics.RecordOperation(OpRequest, time.Since(start).Seconds(), err == nil)
	return reply, err
}

// RegisterReplyHandler delegates directly; the handler's own Pull/Publish
// calls are what get instrumented.
func (t *Instrumented) RegisterReplyHandler(ctx context.Context, queue string, handler func(messages.Message) messages.Message) (func(), error) {
	return t.transport.RegisterReplyHandler(ctx, queue, handler)
}

// Close delegates to the underlying transport.
func (t *Instrumented) Close() error {
	return t.transport.Close()
}

var _ Transport = (*Instrumented)(nil)
