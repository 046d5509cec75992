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

package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// Config configures one records-manager service instance.
type Config struct {
	Admission AdmissionConfig

	// PullVisibility bounds each inference-results Pull call.
	PullVisibility time.Duration

	// DrainQuiet is how long the drain loop must see an empty queue before
	// concluding the inference-results queue is drained (spec §4.6
	// "after draining the inference-results push queue").
	DrainQuiet time.Duration
}

// Service is the records manager: it pulls MetricRecords, applies
// admission filtering, fans admitted records out to Processors, tracks
// per-ErrorDetails-type error counts, and finalizes into a
// ProcessRecordsResult once PROFILING's CreditsComplete arrives and the
// queue has drained.
type Service struct {
	transport   bus.Transport
	accumulator *metrics.Accumulator
	processors  []Processor
	cfg         Config
	log         logr.Logger

	errorCounts map[string]int
}

// NewService builds a Service. accumulator is shared with the
// AggregateProcessor in processors so the service can call Snapshot
// directly for both finalization and RealtimeMetrics.
func NewService(transport bus.Transport, accumulator *metrics.Accumulator, processors []Processor, cfg Config, log logr.Logger) *Service {
	return &Service{
		transport:   transport,
		accumulator: accumulator,
		processors:  processors,
		cfg:         cfg,
		log:         log,
		errorCounts: make(map[string]int),
	}
}

// Run pulls and processes MetricRecords until a PROFILING CreditsComplete
// is observed and the queue drains, or ctx is cancelled. On graceful
// completion it returns the finalized ProcessRecordsResult.
//
// Pull blocks on the queue indefinitely when it's empty, so a plain
// select between "wait for complete" and "Pull the queue" would never
// notice CreditsComplete while a Pull is in flight. Instead the pull loop
// runs on its own goroutine against a context derived from ctx; the
// CreditsComplete handler cancels that derived context to unblock the
// in-flight Pull, and completedCh distinguishes "cancelled because
// finished" from "cancelled because the parent ctx died".
func (s *Service) Run(ctx context.Context) (*model.ProcessRecordsResult, error) {
	pullCtx, cancelPull := context.WithCancel(ctx)
	defer cancelPull()

	completedCh := make(chan struct{})
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		if cc, ok := msg.(*messages.CreditsComplete); ok && cc.Phase == model.PhaseProfiling {
			select {
			case <-completedCh:
			default:
				close(completedCh)
				cancelPull()
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("records: subscribe to commands: %w", err)
	}
	defer unsub()

	replyUnsub, err := s.transport.RegisterReplyHandler(ctx, messages.QueueControl, s.handleRealtimeMetricsRequest)
	if err != nil {
		return nil, fmt.Errorf("records: register realtime metrics handler: %w", err)
	}
	defer replyUnsub()

	loopErr := make(chan error, 1)
	go func() {
		for {
			delivery, err := s.transport.Pull(pullCtx, messages.QueueInferenceResults, s.cfg.PullVisibility)
			if err != nil {
				loopErr <- err
				return
			}
			s.ingest(delivery.Message)
			if ackErr := s.transport.Ack(pullCtx, messages.QueueInferenceResults, delivery.Handle); ackErr != nil {
				s.log.Error(ackErr, "records: ack inference result")
			}
		}
	}()

	var loopResult error
	select {
	case loopResult = <-loopErr:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-completedCh:
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("records: pull inference result: %w", loopResult)
	}

	if err := s.drain(ctx); err != nil {
		return nil, err
	}
	result, err := s.finalize(false)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Publish(ctx, messages.TopicCommands, &messages.ProcessRecordsResult{
		Envelope: messages.Envelope{MessageType: messages.TypeProcessRecordsResult},
		Result:   *result,
	}); err != nil {
		return nil, fmt.Errorf("records: publish process records result: %w", err)
	}
	return result, nil
}

// drain keeps pulling, each with a fresh DrainQuiet deadline, until one
// Pull call times out with nothing delivered — the best a push/pull queue
// can do to approximate "drained" without a broker-side depth query.
func (s *Service) drain(ctx context.Context) error {
	quiet := s.cfg.DrainQuiet
	if quiet <= 0 {
		quiet = 200 * time.Millisecond
	}

	for {
		pullCtx, cancel := context.WithTimeout(ctx, quiet)
		delivery, err := s.transport.Pull(pullCtx, messages.QueueInferenceResults, s.cfg.PullVisibility)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, bus.ErrTimeout) {
				return nil
			}
			return fmt.Errorf("records: drain: %w", err)
		}
		s.ingest(delivery.Message)
		if err := s.transport.Ack(ctx, messages.QueueInferenceResults, delivery.Handle); err != nil {
			s.log.Error(err, "records: ack inference result during drain")
		}
	}
}

func (s *Service) ingest(msg messages.Message) {
	record, ok := msg.(*messages.MetricRecords)
	if !ok {
		s.log.Info("records: ignoring unexpected message on inference-results queue", "type", msg.Envelope().MessageType)
		return
	}

	if record.Error != nil {
		s.errorCounts[record.Error.Type]++
		return
	}

	if !Admit(s.cfg.Admission, record) {
		return
	}

	for _, p := range s.processors {
		if err := p.Process(record); err != nil {
			s.log.Error(err, "records: process admitted record")
		}
	}
}

// handleRealtimeMetricsRequest answers a RealtimeMetrics req/rep query
// against the admitted-so-far snapshot (spec §4.6), servable at any point
// during PROFILING.
func (s *Service) handleRealtimeMetricsRequest(msg messages.Message) messages.Message {
	results, err := s.accumulator.Snapshot(0)
	if err != nil {
		s.log.Error(err, "records: realtime metrics snapshot")
		results = nil
	}
	return &messages.RealtimeMetrics{
		Envelope: messages.Envelope{MessageType: messages.TypeRealtimeMetrics, RequestID: msg.Envelope().RequestID},
		Results:  results,
	}
}

// finalize invokes Summarize on every processor, snapshots the accumulator
// against the run's elapsed span, and assembles the ProcessRecordsResult
// spec §4.6 says is published to the controller.
func (s *Service) finalize(wasCancelled bool) (*model.ProcessRecordsResult, error) {
	for _, p := range s.processors {
		if err := p.Summarize(); err != nil {
			return nil, fmt.Errorf("records: summarize processor: %w", err)
		}
	}

	// s.cfg.Admission.DurationNs is the nominal configured duration (0 when
	// DurationBounded is false, e.g. concurrency-mode or count-bounded runs);
	// Snapshot prefers the span actually observed across admitted records'
	// StartPerfNs/EndPerfNs and falls back to this value only if none
	// carried timestamps.
	totalDurationNs := s.cfg.Admission.DurationNs
	metricsResult, err := s.accumulator.Snapshot(totalDurationNs)
	if err != nil {
		return nil, fmt.Errorf("records: finalize snapshot: %w", err)
	}

	return &model.ProcessRecordsResult{
		Metrics:      metricsResult,
		ErrorCounts:  s.errorCounts,
		WasCancelled: wasCancelled,
	}, nil
}
