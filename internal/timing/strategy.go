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

// Package timing implements the three credit-emission strategies: request
// rate (Poisson or constant inter-arrival), concurrency (bounded in-flight
// count), and fixed schedule (turns replayed at their recorded timestamp,
// optionally sped up or slowed down).
package timing

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Distribution selects the inter-arrival distribution a RequestRateStrategy
// samples from.
type Distribution int

const (
	DistributionConstant Distribution = iota
	DistributionPoisson
)

// RequestRateStrategy paces credit emission to a target request rate,
// either at a fixed interval or with Poisson-distributed inter-arrival
// times (matching an M/M/-style arrival process).
type RequestRateStrategy struct {
	distribution Distribution
	rateHz       float64
	limiter      *rate.Limiter
	rng          *rand.Rand
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRequestRateStrategy builds a strategy targeting rateHz requests per
// second. seed makes Poisson sampling deterministic for tests; production
// callers pass time.Now().UnixNano().
func NewRequestRateStrategy(rateHz float64, distribution Distribution, seed int64) *RequestRateStrategy {
	return &RequestRateStrategy{
		distribution: distribution,
		rateHz:       rateHz,
		limiter:      rate.NewLimiter(rate.Limit(rateHz), 1),
		rng:          rand.New(rand.NewSource(seed)),
		sleep:        cancelableSleep,
	}
}

// Wait blocks until the next credit may be emitted, or ctx is cancelled.
func (s *RequestRateStrategy) Wait(ctx context.Context) error {
	if s.distribution == DistributionConstant {
		return s.limiter.Wait(ctx)
	}
	// Poisson process: inter-arrival times are exponentially distributed
	// with mean 1/rateHz.
	interval := -math.Log(1-s.rng.Float64()) / s.rateHz
	return s.sleep(ctx, time.Duration(interval*float64(time.Second)))
}

// ConcurrencyStrategy bounds the number of in-flight requests: Acquire
// blocks once the limit is reached until a prior credit's Release.
type ConcurrencyStrategy struct {
	sem chan struct{}
}

// NewConcurrencyStrategy builds a strategy allowing at most limit
// concurrent in-flight requests.
func NewConcurrencyStrategy(limit int) *ConcurrencyStrategy {
	return &ConcurrencyStrategy{sem: make(chan struct{}, limit)}
}

// Acquire blocks until a concurrency slot is free or ctx is cancelled.
func (s *ConcurrencyStrategy) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a concurrency slot, called once a credit's request
// completes (success, error, or cancellation all count).
func (s *ConcurrencyStrategy) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// InFlight reports the current number of acquired, unreleased slots.
func (s *ConcurrencyStrategy) InFlight() int {
	return len(s.sem)
}

// FixedScheduleStrategy replays turns at their recorded TimestampMs,
// relative to a schedule zero point and scaled by speedup (speedup > 1
// replays faster than real time, < 1 slower).
type FixedScheduleStrategy struct {
	scheduleZeroMs int64
	speedup        float64
	clockMs        func() int64
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewFixedScheduleStrategy builds a strategy anchored at scheduleZeroMs
// (the schedule timestamp that falls due at clock zero) replaying at
// speedup. clockMs returns the current time in milliseconds on the clock
// whose zero is the start of the replay.
func NewFixedScheduleStrategy(scheduleZeroMs int64, speedup float64, clockMs func() int64) *FixedScheduleStrategy {
	return &FixedScheduleStrategy{
		scheduleZeroMs: scheduleZeroMs,
		speedup:        speedup,
		clockMs:        clockMs,
		sleep:          cancelableSleep,
	}
}

// EffectiveMs maps a schedule timestamp to the clock offset at which it
// falls due: effective_ms(t) = (t - schedule_zero_ms) / speedup.
func (s *FixedScheduleStrategy) EffectiveMs(wallMs int64) int64 {
	return int64(float64(wallMs-s.scheduleZeroMs) / s.speedup)
}

// DeadlineMs is EffectiveMs's inverse: the schedule timestamp that falls
// due at clock offset eventMs.
func (s *FixedScheduleStrategy) DeadlineMs(eventMs int64) int64 {
	return s.scheduleZeroMs + int64(float64(eventMs)*s.speedup)
}

// WaitForEvent blocks until eventMs is due on the wall clock, or ctx is
// cancelled. Deadlines already past return immediately — late emission
// never re-slots future events, so catch-up is automatic.
func (s *FixedScheduleStrategy) WaitForEvent(ctx context.Context, eventMs int64) error {
	deadline := s.EffectiveMs(eventMs)
	remaining := deadline - s.clockMs()
	if remaining <= 0 {
		return nil
	}
	return s.sleep(ctx, time.Duration(remaining)*time.Millisecond)
}

// GroupByTimestamp partitions turn timestamps (already sorted ascending)
// into batches of equal value, so the caller can emit same-instant turns
// together rather than serializing them through per-turn sleeps.
func GroupByTimestamp(timestampsMs []int64) [][]int {
	var groups [][]int
	for i, ts := range timestampsMs {
		if len(groups) > 0 {
			last := groups[len(groups)-1]
			if timestampsMs[last[0]] == ts {
				groups[len(groups)-1] = append(last, i)
				continue
			}
		}
		groups = append(groups, []int{i})
	}
	return groups
}

func cancelableSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
