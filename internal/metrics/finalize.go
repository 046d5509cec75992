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

package metrics

import (
	"fmt"
	"sync"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// Accumulator collects AggregateMetric and AggregateCounterMetric
// per-record contributions across every admitted record, and finalizes
// them — plus any DerivedMetric — into MetricResult on demand (spec §4.6:
// "real-time metrics requests are served at any time by computing the
// current snapshot on the admitted-so-far array").
type Accumulator struct {
	registry *Registry

	mu       sync.Mutex
	values   map[string][]float64
	counters map[string]int
	records  int
	startNs  int64
	endNs    int64
	haveSpan bool
}

// NewAccumulator returns an Accumulator for registry, which must already
// have had Resolve called on it.
func NewAccumulator(registry *Registry) *Accumulator {
	return &Accumulator{
		registry: registry,
		values:   make(map[string][]float64),
		counters: make(map[string]int),
	}
}

// Add folds one worker-side RecordEvaluation into the running totals. A
// record that itself errored (ErrorDetails non-nil upstream) should still
// call Add so RecordCount reflects total admitted records; its evaluation
// will simply have no aggregate tags set.
func (a *Accumulator) Add(eval *RecordEvaluation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records++
	for _, m := range a.registry.AggregateMetrics() {
		tag := m.Descriptor().Tag
		if v, err := eval.Dict.Get(tag); err == nil {
			a.values[tag] = append(a.values[tag], v)
		}
	}
	for _, m := range a.registry.Counters() {
		tag := m.Descriptor().Tag
		if eval.CounterHits[tag] {
			a.counters[tag]++
		}
	}
}

// AddValues folds one record's already-evaluated tag→value map into the
// running totals — the records manager's entry point, since a worker's
// MetricRecords message carries only the flattened RecordDict.Values()
// snapshot (spec §4.6), not the in-process RecordEvaluation Add consumes.
// A counter tag counts as a hit when its value is present and non-zero,
// mirroring the 1/0 encoding EvaluateRecord's counter branch writes.
//
// startNs/endNs are the record's StartPerfNs/EndPerfNs (spec §4.4); the
// accumulator tracks min(startNs)/max(endNs) across every admitted record so
// Snapshot can derive BenchmarkDuration from the real elapsed span rather
// than a caller-supplied nominal duration that is 0 for non-duration-bounded
// runs.
func (a *Accumulator) AddValues(values map[string]float64, startNs, endNs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records++
	if startNs > 0 && endNs > 0 {
		if !a.haveSpan || startNs < a.startNs {
			a.startNs = startNs
		}
		if !a.haveSpan || endNs > a.endNs {
			a.endNs = endNs
		}
		a.haveSpan = true
	}
	for _, m := range a.registry.AggregateMetrics() {
		tag := m.Descriptor().Tag
		if v, ok := values[tag]; ok {
			a.values[tag] = append(a.values[tag], v)
		}
	}
	for _, m := range a.registry.Counters() {
		tag := m.Descriptor().Tag
		if v, ok := values[tag]; ok && v != 0 {
			a.counters[tag]++
		}
	}
}

// ElapsedNs returns the observed max(endNs)-min(startNs) span across every
// record folded in via AddValues, or 0 if none carried timestamps.
func (a *Accumulator) ElapsedNs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveSpan {
		return 0
	}
	return a.endNs - a.startNs
}

// RecordCount returns the number of records folded in so far.
func (a *Accumulator) RecordCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records
}

// Snapshot finalizes every AggregateMetric, AggregateCounterMetric, and
// DerivedMetric against the totals accumulated so far, without mutating
// accumulator state — safe to call concurrently with Add and repeatedly
// for realtime metrics polling.
//
// totalDurationNs is used only as a fallback for BenchmarkDuration when no
// record folded in via AddValues carried usable StartPerfNs/EndPerfNs
// timestamps; otherwise the observed max(endNs)-min(startNs) span wins,
// since the nominal configured duration is 0 for non-duration-bounded runs
// (spec §4.4).
func (a *Accumulator) Snapshot(totalDurationNs int64) ([]model.MetricResult, error) {
	a.mu.Lock()
	values := make(map[string][]float64, len(a.values))
	for tag, v := range a.values {
		cp := make([]float64, len(v))
		copy(cp, v)
		values[tag] = cp
	}
	counters := make(map[string]int, len(a.counters))
	for tag, c := range a.counters {
		counters[tag] = c
	}
	records := a.records
	if a.haveSpan {
		totalDurationNs = a.endNs - a.startNs
	}
	a.mu.Unlock()

	results := make(map[string]model.MetricResult)

	for _, m := range a.registry.AggregateMetrics() {
		d := m.Descriptor()
		results[d.Tag] = summarize(d, values[d.Tag])
	}

	for _, m := range a.registry.Counters() {
		d := m.Descriptor()
		count := counters[d.Tag]
		avg := 0.0
		if records > 0 {
			avg = float64(count) / float64(records)
		}
		results[d.Tag] = model.MetricResult{
			Tag:    d.Tag,
			Header: d.Header,
			Unit:   d.Unit,
			Count:  count,
			Avg:    avg,
		}
	}

	for _, m := range a.registry.DerivedMetrics() {
		d := m.Descriptor()
		for _, dep := range d.Required {
			if _, ok := results[dep]; !ok {
				return nil, fmt.Errorf("metrics: derived metric %q missing dependency %q at finalization", d.Tag, dep)
			}
		}
		result, err := m.Derive(results, totalDurationNs, records)
		if err != nil {
			return nil, fmt.Errorf("metrics: derive %q: %w", d.Tag, err)
		}
		results[d.Tag] = result
	}

	ordered := make([]model.MetricResult, 0, len(results))
	for _, tag := range a.registry.Order() {
		if r, ok := results[tag]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered, nil
}
