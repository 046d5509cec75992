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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

// requestVia and registerReplyHandlerVia implement spec §4.1's REQ/REP
// socket family on top of whatever Push/Pull and Publish/Subscribe
// primitives a concrete Transport already provides, so both the Memory and
// Redis transports share one implementation rather than two.
func replyTopic(queue, requestID string) string {
	return "bus:reply:" + queue + ":" + requestID
}

func requestVia(t Transport, ctx context.Context, queue string, msg messages.Message, timeout time.Duration) (messages.Message, error) {
	env := msg.Envelope()
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}

	replyCh := make(chan messages.Message, 1)
	unsubscribe, err := t.Subscribe(ctx, replyTopic(queue, env.RequestID), func(reply messages.Message) {
		select {
		case replyCh <- reply:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: request subscribe: %w", err)
	}
	defer unsubscribe()

	if err := t.Push(ctx, queue, msg); err != nil {
		return nil, fmt.Errorf("bus: request push: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func registerReplyHandlerVia(t Transport, ctx context.Context, queue string, handler func(messages.Message) messages.Message) (func(), error) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			delivery, err := t.Pull(loopCtx, queue, 30*time.Second)
			if err != nil {
				return
			}
			reply := handler(delivery.Message)
			if reply != nil {
				reply.Envelope().RequestID = delivery.Message.Envelope().RequestID
				_ = t.Publish(loopCtx, replyTopic(queue, delivery.Message.Envelope().RequestID), reply)
			}
			_ = t.Ack(loopCtx, queue, delivery.Handle)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}
