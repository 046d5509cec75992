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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

// RedisOptions configures a Redis-backed Transport.
type RedisOptions struct {
	// KeyPrefix namespaces every key the transport touches, so multiple
	// AIPerf runs can share one Redis instance.
	KeyPrefix string
	// ReapInterval controls how often Pull-ed-but-unacked items past their
	// visibility deadline are returned to their queue. Defaults to 500ms.
	ReapInterval time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "aiperf"
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = 500 * time.Millisecond
	}
	return o
}

// Redis is a distributed Transport backed by a Redis server: Pub/Sub
// channels for PUB/SUB, and lists plus a processing hash/zset pair for
// PUSH/PULL with at-least-once, visibility-timeout redelivery.
type Redis struct {
	client *redis.Client
	opts   RedisOptions

	mu      sync.Mutex
	closed  bool
	queues  map[string]struct{}
	cancel  context.CancelFunc
	reapers sync.WaitGroup
}

// NewRedis wraps an existing *redis.Client. The caller owns the client's
// lifecycle beyond Close, which only stops the transport's background
// reaper — it does not close client.
func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		client: client,
		opts:   opts,
		queues: make(map[string]struct{}),
		cancel: cancel,
	}
	r.reapers.Add(1)
	go r.reapLoop(ctx)
	return r
}

func (r *Redis) key(parts ...string) string {
	full := r.opts.KeyPrefix
	for _, p := range parts {
		full += ":" + p
	}
	return full
}

// Publish sends msg to every current Subscribe-r of topic via Redis Pub/Sub.
func (r *Redis) Publish(ctx context.Context, topic string, msg messages.Message) error {
	raw, err := messages.Encode(msg)
	if err != nil {
		return fmt.Errorf("bus: encode: %w", err)
	}
	return r.client.Publish(ctx, r.key("topic", topic), raw).Err()
}

// Subscribe registers handler against a Redis Pub/Sub channel.
func (r *Redis) Subscribe(ctx context.Context, topic string, handler func(messages.Message)) (func(), error) {
	sub := r.client.Subscribe(ctx, r.key("topic", topic))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}

	ch := sub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				msg, err := messages.Decode([]byte(m.Payload))
				if err != nil {
					continue
				}
				handler(msg)
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = sub.Close()
		<-done
	}
	return unsubscribe, nil
}

// queueItem is the envelope stored in the processing hash while a pulled
// message awaits Ack.
type queueItem struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Push enqueues msg onto a Redis list.
func (r *Redis) Push(ctx context.Context, queue string, msg messages.Message) error {
	raw, err := messages.Encode(msg)
	if err != nil {
		return fmt.Errorf("bus: encode: %w", err)
	}
	r.trackQueue(queue)
	return r.client.RPush(ctx, r.key("queue", queue), raw).Err()
}

// Pull blocks on a Redis list pop, then moves the item into a processing
// hash/zset pair with a visibility deadline so the background reaper can
// return it to the queue if the caller never Acks.
func (r *Redis) Pull(ctx context.Context, queue string, visibility time.Duration) (Delivery, error) {
	r.trackQueue(queue)
	res, err := r.client.BLPop(ctx, 0, r.key("queue", queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return Delivery{}, ctx.Err()
		}
		return Delivery{}, fmt.Errorf("bus: pull: %w", err)
	}
	// res[0] is the key name, res[1] the payload.
	payload := []byte(res[1])

	id := uuid.NewString()
	item := queueItem{ID: id, Payload: payload}
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return Delivery{}, fmt.Errorf("bus: marshal processing item: %w", err)
	}

	deadline := time.Now().Add(visibility).UnixNano()
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, r.key("queue", queue, "processing"), id, itemJSON)
	pipe.ZAdd(ctx, r.key("queue", queue, "deadlines"), redis.Z{Score: float64(deadline), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return Delivery{}, fmt.Errorf("bus: claim processing: %w", err)
	}

	msg, err := messages.Decode(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("bus: decode: %w", err)
	}
	return Delivery{Message: msg, Handle: id}, nil
}

// Ack removes handle from the processing set, preventing its redelivery.
func (r *Redis) Ack(ctx context.Context, queue string, handle string) error {
	pipe := r.client.Pipeline()
	pipe.HDel(ctx, r.key("queue", queue, "processing"), handle)
	pipe.ZRem(ctx, r.key("queue", queue, "deadlines"), handle)
	_, err := pipe.Exec(ctx)
	return err
}

// Request implements REQ/REP over Push/Publish, shared with Memory.
func (r *Redis) Request(ctx context.Context, queue string, msg messages.Message, timeout time.Duration) (messages.Message, error) {
	return requestVia(r, ctx, queue, msg, timeout)
}

// RegisterReplyHandler implements REQ/REP over Pull/Publish, shared with Memory.
func (r *Redis) RegisterReplyHandler(ctx context.Context, queue string, handler func(messages.Message) messages.Message) (func(), error) {
	return registerReplyHandlerVia(r, ctx, queue, handler)
}

// Close stops the background reaper. It does not close the underlying
// *redis.Client, which the caller owns.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.reapers.Wait()
	return nil
}

func (r *Redis) trackQueue(queue string) {
	r.mu.Lock()
	r.queues[queue] = struct{}{}
	r.mu.Unlock()
}

func (r *Redis) reapLoop(ctx context.Context) {
	defer r.reapers.Done()
	ticker := time.NewTicker(r.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapExpired(ctx)
		}
	}
}

func (r *Redis) reapExpired(ctx context.Context) {
	r.mu.Lock()
	queues := make([]string, 0, len(r.queues))
	for q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	now := float64(time.Now().UnixNano())
	for _, queue := range queues {
		deadlinesKey := r.key("queue", queue, "deadlines")
		expired, err := r.client.ZRangeByScore(ctx, deadlinesKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
		if err != nil || len(expired) == 0 {
			continue
		}
		for _, id := range expired {
			// ZRem first: if this reaper loses the race to claim the id
			// (another process already reaped or it was Acked), skip it.
			removed, err := r.client.ZRem(ctx, deadlinesKey, id).Result()
			if err != nil || removed == 0 {
				continue
			}
			processingKey := r.key("queue", queue, "processing")
			raw, err := r.client.HGet(ctx, processingKey, id).Result()
			if err != nil {
				continue
			}
			var item queueItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				continue
			}
			pipe := r.client.Pipeline()
			pipe.RPush(ctx, r.key("queue", queue), item.Payload)
			pipe.HDel(ctx, processingKey, id)
			_, _ = pipe.Exec(ctx)
		}
	}
}

var _ Transport = (*Redis)(nil)
