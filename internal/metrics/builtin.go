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
	"github.com/ai-dynamo/aiperf/internal/aerr"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// Built-in metric tags.
const (
	TagTimeToFirstToken   = "time_to_first_token"
	TagTimeToFirstOutput  = "time_to_first_output_token"
	TagInterChunkLatency  = "inter_chunk_latency"
	TagInterTokenLatency  = "inter_token_latency"
	TagOutputSequenceLength = "output_sequence_length"
	TagRequestLatency     = "request_latency"
	TagGoodRequestCount   = "good_request_count"
	TagBenchmarkDuration  = "benchmark_duration"
	TagRequestThroughput  = "request_throughput"
	TagOutputTokenThroughput = "output_token_throughput"
)

// timeToFirstToken is the classic TTFT: first response byte minus request
// start, regardless of content kind.
type timeToFirstToken struct{}

func (timeToFirstToken) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagTimeToFirstToken, Header: "Time to First Token", ShortHeader: "TTFT",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitMilliseconds,
		Flags: FlagStreamingOnly, Kind: KindAggregate, DisplayOrder: 1,
	}
}

func (timeToFirstToken) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	if len(record.Responses) == 0 {
		return 0, aerr.ErrNoMetricValue
	}
	return float64(record.Responses[0].PerfNs - record.Request.StartPerfNs), nil
}

// timeToFirstOutput skips purely-reasoning chunks, reporting the first
// response that carries user-visible content (spec §4.4, reasoning-aware).
type timeToFirstOutput struct{}

func (timeToFirstOutput) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagTimeToFirstOutput, Header: "Time to First Output Token", ShortHeader: "TTFO",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitMilliseconds,
		Flags: FlagStreamingOnly | FlagSupportsReasoning, Kind: KindAggregate, DisplayOrder: 2,
	}
}

func (timeToFirstOutput) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	for _, resp := range record.Responses {
		if resp.IsReasoningOnly() {
			continue
		}
		return float64(resp.PerfNs - record.Request.StartPerfNs), nil
	}
	return 0, aerr.ErrNoMetricValue
}

// interChunkLatency reports the mean gap between consecutive SSE chunks
// within one record.
type interChunkLatency struct{}

func (interChunkLatency) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagInterChunkLatency, Header: "Inter Chunk Latency", ShortHeader: "ICL",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitMilliseconds,
		Flags: FlagStreamingOnly, Kind: KindAggregate, DisplayOrder: 3,
	}
}

func (interChunkLatency) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	if len(record.Responses) < 2 {
		return 0, aerr.ErrNoMetricValue
	}
	total := record.Responses[len(record.Responses)-1].PerfNs - record.Responses[0].PerfNs
	return float64(total) / float64(len(record.Responses)-1), nil
}

// interTokenLatency reports the mean time between output tokens after the
// first, excluding TTFT from the denominator.
type interTokenLatency struct{}

func (interTokenLatency) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagInterTokenLatency, Header: "Inter Token Latency", ShortHeader: "ITL",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitMilliseconds,
		Flags: FlagStreamingOnly | FlagStreamingTokensOnly | FlagProducesTokensOnly,
		Kind:  KindAggregate, DisplayOrder: 4,
	}
}

func (interTokenLatency) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	if record.OutputTokenCount == nil || *record.OutputTokenCount < 2 || len(record.Responses) == 0 {
		return 0, aerr.ErrNoMetricValue
	}
	firstTokenNs := record.Responses[0].PerfNs
	lastNs := record.Responses[len(record.Responses)-1].PerfNs
	return float64(lastNs-firstTokenNs) / float64(*record.OutputTokenCount-1), nil
}

// outputSequenceLength is output_token_count + reasoning_token_count,
// computed inline per record (spec §4.4).
type outputSequenceLength struct{}

func (outputSequenceLength) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagOutputSequenceLength, Header: "Output Sequence Length", ShortHeader: "OSL",
		Unit: model.UnitTokens, Flags: FlagProducesTokensOnly, Kind: KindAggregate, DisplayOrder: 5,
	}
}

func (outputSequenceLength) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	if record.OutputTokenCount == nil && record.ReasoningTokenCount == nil {
		return 0, aerr.ErrNoMetricValue
	}
	return float64(record.OutputSequenceLength()), nil
}

// requestLatency is the full request wall time, end minus start.
type requestLatency struct{}

func (requestLatency) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagRequestLatency, Header: "Request Latency", ShortHeader: "Latency",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitMilliseconds, Kind: KindAggregate, DisplayOrder: 0,
	}
}

func (requestLatency) ParseRecord(_ *RecordDict, record *model.ParsedResponseRecord) (float64, error) {
	return float64(record.Request.EndPerfNs - record.Request.StartPerfNs), nil
}

// SLOThreshold pairs a metric tag with the boundary GoodRequestCount checks
// that metric's per-record value (converted to the metric's display unit)
// against (spec §4.4, §8 goodput scenario). A run with no configured
// thresholds falls back to "no transport/parse error", the degenerate case
// of an empty SLO set.
type SLOThreshold struct {
	Tag   string
	Limit float64
}

// goodRequestCount counts requests that completed without error and whose
// every configured SLO threshold is satisfied — ≥ the limit when the
// metric's descriptor carries FlagLargerIsBetter, else ≤ (spec §4.4).
type goodRequestCount struct {
	reg        *Registry
	thresholds []SLOThreshold
}

func newGoodRequestCount(reg *Registry, thresholds []SLOThreshold) *goodRequestCount {
	return &goodRequestCount{reg: reg, thresholds: thresholds}
}

func (g *goodRequestCount) Descriptor() Descriptor {
	required := make([]string, len(g.thresholds))
	for i, t := range g.thresholds {
		required[i] = t.Tag
	}
	return Descriptor{
		Tag: TagGoodRequestCount, Header: "Good Request Count", ShortHeader: "Good",
		Unit: model.UnitRequests, Flags: FlagGoodput, Kind: KindAggregateCounter,
		Required: required, DisplayOrder: 10,
	}
}

func (g *goodRequestCount) Count(dict *RecordDict, record *model.ParsedResponseRecord) (bool, error) {
	if record.Request.Error != nil {
		return false, nil
	}
	for _, t := range g.thresholds {
		raw, err := dict.Get(t.Tag)
		if err != nil {
			return false, nil
		}
		desc, ok := g.reg.Descriptor(t.Tag)
		if !ok {
			return false, nil
		}
		displayUnit := desc.DisplayUnit
		if displayUnit == "" {
			displayUnit = desc.Unit
		}
		value, err := model.Convert(raw, desc.Unit, displayUnit)
		if err != nil {
			return false, err
		}
		if desc.Flags.Has(FlagLargerIsBetter) {
			if value < t.Limit {
				return false, nil
			}
		} else if value > t.Limit {
			return false, nil
		}
	}
	return true, nil
}

// benchmarkDuration reports the caller-supplied total profiling duration;
// it has no per-record inputs, so it derives from nothing.
type benchmarkDuration struct{}

func (benchmarkDuration) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagBenchmarkDuration, Header: "Benchmark Duration", ShortHeader: "Duration",
		Unit: model.UnitNanoseconds, DisplayUnit: model.UnitSeconds, Kind: KindDerived, DisplayOrder: 20,
	}
}

func (benchmarkDuration) Derive(_ map[string]model.MetricResult, totalDurationNs int64, _ int) (model.MetricResult, error) {
	return model.MetricResult{
		Tag: TagBenchmarkDuration, Header: "Benchmark Duration", Unit: model.UnitNanoseconds,
		Count: 1, Avg: float64(totalDurationNs),
	}, nil
}

// requestThroughput is total admitted records over benchmark duration.
type requestThroughput struct{}

func (requestThroughput) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagRequestThroughput, Header: "Request Throughput", ShortHeader: "Req/s",
		Unit: model.UnitRequestsPerSec, Flags: FlagLargerIsBetter, Kind: KindDerived,
		Required: []string{TagBenchmarkDuration}, DisplayOrder: 21,
	}
}

func (requestThroughput) Derive(results map[string]model.MetricResult, _ int64, recordCount int) (model.MetricResult, error) {
	durationNs := results[TagBenchmarkDuration].Avg
	throughput := 0.0
	if durationNs > 0 {
		throughput = float64(recordCount) / (durationNs / 1e9)
	}
	return model.MetricResult{
		Tag: TagRequestThroughput, Header: "Request Throughput", Unit: model.UnitRequestsPerSec,
		Count: recordCount, Avg: throughput,
	}, nil
}

// outputTokenThroughput is the total output tokens across every admitted
// record over benchmark duration.
type outputTokenThroughput struct{}

func (outputTokenThroughput) Descriptor() Descriptor {
	return Descriptor{
		Tag: TagOutputTokenThroughput, Header: "Output Token Throughput", ShortHeader: "Tok/s",
		Unit: model.UnitTokensPerSec, Flags: FlagLargerIsBetter | FlagProducesTokensOnly, Kind: KindDerived,
		Required: []string{TagBenchmarkDuration, TagOutputSequenceLength}, DisplayOrder: 22,
	}
}

func (outputTokenThroughput) Derive(results map[string]model.MetricResult, _ int64, _ int) (model.MetricResult, error) {
	durationNs := results[TagBenchmarkDuration].Avg
	osl := results[TagOutputSequenceLength]
	totalTokens := osl.Avg * float64(osl.Count)
	throughput := 0.0
	if durationNs > 0 {
		throughput = totalTokens / (durationNs / 1e9)
	}
	return model.MetricResult{
		Tag: TagOutputTokenThroughput, Header: "Output Token Throughput", Unit: model.UnitTokensPerSec,
		Count: osl.Count, Avg: throughput,
	}, nil
}

// Default builds and resolves the registry of every built-in metric class.
// Services that need a subset (e.g. a non-streaming endpoint skipping
// STREAMING_ONLY metrics) filter Descriptor().Flags after Resolve rather
// than building a second registry.
//
// thresholds configures GoodRequestCount's per-metric SLO checks (spec §4.4,
// §8); a caller with no SLOs configured gets the degenerate "no error"
// goodput definition.
func Default(thresholds ...SLOThreshold) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.RegisterAggregate(requestLatency{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterAggregate(timeToFirstToken{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterAggregate(timeToFirstOutput{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterAggregate(interChunkLatency{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterAggregate(outputSequenceLength{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterAggregate(interTokenLatency{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterCounter(newGoodRequestCount(reg, thresholds)); err != nil {
		return nil, err
	}
	if err := reg.RegisterDerived(benchmarkDuration{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterDerived(requestThroughput{}); err != nil {
		return nil, err
	}
	if err := reg.RegisterDerived(outputTokenThroughput{}); err != nil {
		return nil, err
	}
	if err := reg.Resolve(); err != nil {
		return nil, err
	}
	return reg, nil
}
