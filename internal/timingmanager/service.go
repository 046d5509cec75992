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

// Package timingmanager drives internal/timing's pacing strategies against
// the bus: it waits for ProfileStart, emits CreditDrop messages for the
// WARMUP phase then the PROFILING phase, and publishes CreditsComplete once
// each phase's stop condition is reached (spec §4.2).
package timingmanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/datasetmanager"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/timing"
)

// Mode selects which of internal/timing's strategies paces credit
// emission. FixedSchedule loads the dataset file directly (via
// internal/datasetmanager.LoadConversations) rather than issuing the
// one-at-a-time req/rep lookups the other two modes use, since it needs
// every turn's schedule timestamp up front to build the replay order.
type Mode string

const (
	ModeRequestRate   Mode = "request_rate"
	ModeConcurrency   Mode = "concurrency"
	ModeFixedSchedule Mode = "fixed_schedule"
)

// Config is a timing manager's pacing configuration.
type Config struct {
	Mode         Mode
	RateHz       float64
	Distribution timing.Distribution
	Concurrency  int
	Warmup       PhaseSpec
	Profiling    PhaseSpec
	Seed         int64

	// DatasetPath and Speedup configure ModeFixedSchedule: DatasetPath is
	// the JSONL conversation file loaded directly (spec §4.2's fixed
	// schedule strategy), and Speedup scales how fast turns' recorded
	// TimestampMs are replayed (>1 faster than real time).
	DatasetPath string
	Speedup     float64
}

// PhaseSpec is one phase's stop condition: a fixed credit count, a
// wall-clock duration, or both (whichever triggers first stops the
// phase). Leaving both zero disables the phase entirely (used for runs
// with no warmup).
type PhaseSpec struct {
	Count    int
	Duration time.Duration
}

// Service paces and emits credits for one run.
type Service struct {
	transport bus.Transport
	cfg       Config
	log       logr.Logger
	now       func() int64
}

// NewService builds a Service. now returns the current monotonic
// perf-clock reading in nanoseconds, stamped onto each emitted Credit.
func NewService(transport bus.Transport, cfg Config, log logr.Logger, now func() int64) *Service {
	return &Service{transport: transport, cfg: cfg, log: log, now: now}
}

// Run blocks until ProfileStart arrives, then drives the warmup phase (if
// configured) followed by the profiling phase, publishing CreditsComplete
// after each.
func (s *Service) Run(ctx context.Context) error {
	if err := s.awaitProfileStart(ctx); err != nil {
		return fmt.Errorf("timingmanager: await ProfileStart: %w", err)
	}

	num, err := s.runPhase(ctx, model.PhaseWarmup, s.cfg.Warmup, 0)
	if err != nil {
		return fmt.Errorf("timingmanager: warmup phase: %w", err)
	}

	if _, err := s.runPhase(ctx, model.PhaseProfiling, s.cfg.Profiling, num); err != nil {
		return fmt.Errorf("timingmanager: profiling phase: %w", err)
	}
	return nil
}

func (s *Service) awaitProfileStart(ctx context.Context) error {
	started := make(chan struct{}, 1)
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		if _, ok := msg.(*messages.ProfileStart); ok {
			select {
			case started <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer unsub()

	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) runPhase(ctx context.Context, phase model.Phase, spec PhaseSpec, startNum int64) (int64, error) {
	if spec.Count <= 0 && spec.Duration <= 0 {
		return startNum, nil
	}

	phaseCtx := ctx
	if spec.Duration > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, spec.Duration)
		defer cancel()
	}

	var num int64
	var err error
	switch s.cfg.Mode {
	case ModeConcurrency:
		num, err = s.runConcurrencyPhase(phaseCtx, phase, spec, startNum)
	case ModeFixedSchedule:
		num, err = s.runSchedulePhase(phaseCtx, phase, spec, startNum)
	default:
		num, err = s.runRatePhase(phaseCtx, phase, spec, startNum)
	}
	if err != nil {
		return num, err
	}

	if pubErr := s.publishComplete(ctx, phase, int(num-startNum)); pubErr != nil {
		return num, pubErr
	}
	return num, nil
}

func (s *Service) runRatePhase(ctx context.Context, phase model.Phase, spec PhaseSpec, startNum int64) (int64, error) {
	strategy := timing.NewRequestRateStrategy(s.cfg.RateHz, s.cfg.Distribution, s.cfg.Seed)
	num := startNum
	for spec.Count <= 0 || int(num-startNum) < spec.Count {
		if err := strategy.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return num, err
		}
		if err := s.emit(ctx, phase, num); err != nil {
			return num, err
		}
		num++
	}
	return num, nil
}

func (s *Service) runConcurrencyPhase(ctx context.Context, phase model.Phase, spec PhaseSpec, startNum int64) (int64, error) {
	strategy := timing.NewConcurrencyStrategy(s.cfg.Concurrency)
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		if _, ok := msg.(*messages.CreditReturn); ok {
			strategy.Release()
		}
	})
	if err != nil {
		return startNum, err
	}
	defer unsub()

	num := startNum
	for spec.Count <= 0 || int(num-startNum) < spec.Count {
		if err := strategy.Acquire(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return num, err
		}
		if err := s.emit(ctx, phase, num); err != nil {
			return num, err
		}
		num++
	}
	return num, nil
}

// scheduledTurn is one dataset turn carrying a replay timestamp.
type scheduledTurn struct {
	conversationID string
	turnIndex      int
	timestampMs    int64
}

// runSchedulePhase replays dataset turns at their recorded TimestampMs,
// scaled by Speedup, via timing.FixedScheduleStrategy (spec §4.2's fixed
// schedule strategy). Turns without a TimestampMs are skipped — the
// schedule only covers turns the dataset composer stamped.
func (s *Service) runSchedulePhase(ctx context.Context, phase model.Phase, spec PhaseSpec, startNum int64) (int64, error) {
	conversations, err := datasetmanager.LoadConversations(s.cfg.DatasetPath)
	if err != nil {
		return startNum, fmt.Errorf("timingmanager: load schedule dataset: %w", err)
	}

	var events []scheduledTurn
	for _, c := range conversations {
		for i, t := range c.Turns {
			if t.TimestampMs == nil {
				continue
			}
			events = append(events, scheduledTurn{conversationID: c.ID, turnIndex: i, timestampMs: *t.TimestampMs})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].timestampMs < events[j].timestampMs })
	if spec.Count > 0 && spec.Count < len(events) {
		events = events[:spec.Count]
	}

	timestamps := make([]int64, len(events))
	for i, e := range events {
		timestamps[i] = e.timestampMs
	}
	groups := timing.GroupByTimestamp(timestamps)

	phaseStartNs := s.now()
	clockMs := func() int64 { return (s.now() - phaseStartNs) / int64(time.Millisecond) }
	speedup := s.cfg.Speedup
	if speedup <= 0 {
		speedup = 1.0
	}
	strategy := timing.NewFixedScheduleStrategy(0, speedup, clockMs)

	num := startNum
	for _, group := range groups {
		if err := strategy.WaitForEvent(ctx, timestamps[group[0]]); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return num, err
		}
		for _, idx := range group {
			e := events[idx]
			if err := s.emitScheduled(ctx, phase, num, e.conversationID, e.turnIndex); err != nil {
				return num, err
			}
			num++
		}
	}
	return num, nil
}

func (s *Service) emitScheduled(ctx context.Context, phase model.Phase, num int64, conversationID string, turnIndex int) error {
	return s.transport.Push(ctx, messages.QueueCredits, &messages.CreditDrop{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop},
		Credit: model.Credit{
			Phase:            phase,
			CreditDropPerfNs: s.now(),
			ConversationNum:  num,
			ConversationID:   conversationID,
			TurnIndex:        turnIndex,
		},
	})
}

func (s *Service) emit(ctx context.Context, phase model.Phase, num int64) error {
	return s.transport.Push(ctx, messages.QueueCredits, &messages.CreditDrop{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditDrop},
		Credit: model.Credit{
			Phase:            phase,
			CreditDropPerfNs: s.now(),
			ConversationNum:  num,
		},
	})
}

func (s *Service) publishComplete(ctx context.Context, phase model.Phase, total int) error {
	return s.transport.Publish(ctx, messages.TopicCommands, &messages.CreditsComplete{
		Envelope: messages.Envelope{MessageType: messages.TypeCreditsComplete},
		Phase:    phase,
		Total:    total,
	})
}
