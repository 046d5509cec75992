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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

// Memory is an in-process Transport, suitable for a single-binary
// development mode and for unit tests of services that don't need to
// exercise real process boundaries. It mirrors the pending/processing
// map shape of a visibility-timeout work queue, generalized to the three
// socket families of spec §4.1.
type Memory struct {
	mu     sync.Mutex
	closed bool

	topics map[string]map[string]*subscription // topic -> subID -> subscription
	queues map[string]*memQueue
}

type subscription struct {
	ch     chan messages.Message
	cancel chan struct{}
}

type memQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []*memItem
	processing map[string]*memItem
}

type memItem struct {
	handle  string
	message messages.Message
	timer   *time.Timer
}

// NewMemory creates an empty in-process Transport.
func NewMemory() *Memory {
	m := &Memory{
		topics: make(map[string]map[string]*subscription),
		queues: make(map[string]*memQueue),
	}
	return m
}

func (m *Memory) getOrCreateQueue(name string) *memQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &memQueue{processing: make(map[string]*memItem)}
		q.cond = sync.NewCond(&q.mu)
		m.queues[name] = q
	}
	return q
}

// Publish fans out msg to every current subscriber of topic. Each
// subscriber has its own 64-message buffered channel and delivery
// goroutine, so a slow handler does not delay other subscribers (spec
// §4.1) until its buffer is full; from then on Publish waits for that
// subscriber before delivering to the ones after it.
func (m *Memory) Publish(_ context.Context, topic string, msg messages.Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*subscription, 0, len(m.topics[topic]))
	for _, s := range m.topics[topic] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		case <-s.cancel:
		}
	}
	return nil
}

// Subscribe registers handler for topic. Delivery to this subscription runs
// on its own goroutine, one message at a time, in publish order.
func (m *Memory) Subscribe(ctx context.Context, topic string, handler func(messages.Message)) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[string]*subscription)
	}
	id := uuid.NewString()
	sub := &subscription{ch: make(chan messages.Message, 64), cancel: make(chan struct{})}
	m.topics[topic][id] = sub
	m.mu.Unlock()

	go func() {
		for {
			select {
			case msg := <-sub.ch:
				handler(msg)
			case <-sub.cancel:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		m.mu.Lock()
		if subs, ok := m.topics[topic]; ok {
			delete(subs, id)
		}
		m.mu.Unlock()
		close(sub.cancel)
	}
	return unsubscribe, nil
}

// Push enqueues msg onto queue.
func (m *Memory) Push(_ context.Context, queue string, msg messages.Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	q := m.getOrCreateQueue(queue)
	m.mu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, &memItem{handle: uuid.NewString(), message: msg})
	q.cond.Signal()
	q.mu.Unlock()
	return nil
}

// Pull blocks until a message is available on queue or ctx is cancelled.
// If the puller never Acks within visibility, the item is returned to
// pending automatically.
func (m *Memory) Pull(ctx context.Context, queue string, visibility time.Duration) (Delivery, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Delivery{}, ErrClosed
	}
	q := m.getOrCreateQueue(queue)
	m.mu.Unlock()

	// Wake the blocked cond.Wait() when ctx is done, since sync.Cond has no
	// native context support.
	done := make(chan struct{})
	stopWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-stopWatcher:
		}
		close(done)
	}()
	defer func() { close(stopWatcher); <-done }()

	q.mu.Lock()
	for len(q.pending) == 0 {
		if ctx.Err() != nil {
			q.mu.Unlock()
			return Delivery{}, ctx.Err()
		}
		q.cond.Wait()
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.processing[item.handle] = item
	item.timer = time.AfterFunc(visibility, func() { m.requeue(queue, item.handle) })
	q.mu.Unlock()

	return Delivery{Message: item.message, Handle: item.handle}, nil
}

func (m *Memory) requeue(queue, handle string) {
	m.mu.Lock()
	q, ok := m.queues[queue]
	m.mu.Unlock()
	if !ok {
		return
	}
	q.mu.Lock()
	item, ok := q.processing[handle]
	if ok {
		delete(q.processing, handle)
		q.pending = append(q.pending, item)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// Ack marks handle as processed, cancelling its visibility timer.
func (m *Memory) Ack(_ context.Context, queue string, handle string) error {
	m.mu.Lock()
	q, ok := m.queues[queue]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	q.mu.Lock()
	if item, ok := q.processing[handle]; ok {
		if item.timer != nil {
			item.timer.Stop()
		}
		delete(q.processing, handle)
	}
	q.mu.Unlock()
	return nil
}

// Request implements REQ/REP over Push/Publish, shared with Redis.
func (m *Memory) Request(ctx context.Context, queue string, msg messages.Message, timeout time.Duration) (messages.Message, error) {
	return requestVia(m, ctx, queue, msg, timeout)
}

// RegisterReplyHandler implements REQ/REP over Pull/Publish, shared with Redis.
func (m *Memory) RegisterReplyHandler(ctx context.Context, queue string, handler func(messages.Message) messages.Message) (func(), error) {
	return registerReplyHandlerVia(m, ctx, queue, handler)
}

// Close marks the transport closed; in-flight Pull/Subscribe callers
// unblock via their own ctx handling.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Transport = (*Memory)(nil)
