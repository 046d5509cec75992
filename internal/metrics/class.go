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

// Package metrics implements the typed metric-class DAG of spec §4.4: a
// registry of metric classes keyed by tag, topologically sorted over their
// required_metrics, evaluated per-record by workers and finalized by the
// records manager.
package metrics

import "github.com/ai-dynamo/aiperf/internal/model"

// Kind distinguishes the four metric shapes spec §4.4 defines.
type Kind int

const (
	// KindRecord computes a scalar per ParsedResponseRecord, inline in the
	// worker; it must not depend on aggregate-only metrics.
	KindRecord Kind = iota
	// KindAggregate appends a per-record scalar into a growing array;
	// final percentile/moment aggregation happens at the records manager.
	KindAggregate
	// KindAggregateCounter accumulates a counter from per-record values
	// (e.g. good-request count).
	KindAggregateCounter
	// KindDerived is computed once at finalization from other metrics'
	// already-aggregated MetricResult.
	KindDerived
)

// Flags is a bitset of metric applicability and display properties.
type Flags uint32

const (
	FlagStreamingOnly Flags = 1 << iota
	FlagStreamingTokensOnly
	FlagProducesTokensOnly
	FlagSupportsReasoning
	FlagLargerIsBetter
	FlagExperimental
	FlagInternal
	FlagHidden
	FlagGoodput
	FlagErrorOnly
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Descriptor is a metric class's static registry metadata (spec §4.4).
type Descriptor struct {
	Tag          string
	Header       string
	ShortHeader  string
	Unit         model.Unit
	DisplayUnit  model.Unit // zero value means same as Unit
	Flags        Flags
	Required     []string // tags this metric depends on
	DisplayOrder int
	Kind         Kind
}

// RecordMetric computes a scalar value from one record, given the
// already-computed values of its dependencies in dict.
type RecordMetric interface {
	Descriptor() Descriptor
	ParseRecord(dict *RecordDict, record *model.ParsedResponseRecord) (float64, error)
}

// AggregateMetric computes a per-record contribution like RecordMetric, but
// its values are collected into an array across every admitted record and
// only reduced to a MetricResult at finalization.
type AggregateMetric interface {
	Descriptor() Descriptor
	ParseRecord(dict *RecordDict, record *model.ParsedResponseRecord) (float64, error)
}

// AggregateCounterMetric increments a counter when a per-record predicate
// holds; finalization reports the running count (and, as Avg, the rate
// over the total record count supplied at finalization).
type AggregateCounterMetric interface {
	Descriptor() Descriptor
	Count(dict *RecordDict, record *model.ParsedResponseRecord) (bool, error)
}

// DerivedMetric is computed once at finalization, from the already-
// finalized MetricResult of other metrics (addressed by tag).
type DerivedMetric interface {
	Descriptor() Descriptor
	Derive(results map[string]model.MetricResult, totalDurationNs int64, recordCount int) (model.MetricResult, error)
}
