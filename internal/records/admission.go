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

// Package records implements the records manager (spec §4.6): admission
// filtering of incoming MetricRecords against a duration-bounded run,
// error accounting, fan-out to ResultsProcessor instances, and
// finalization into a ProcessRecordsResult.
package records

import "github.com/ai-dynamo/aiperf/internal/messages"

// AdmissionConfig configures duration-bounded admission filtering. All
// durations are nanoseconds in the same clock domain as the records
// manager's StartPerfNs capture; DurationBounded false (a request-count- or
// schedule-bounded run) admits every record unconditionally.
type AdmissionConfig struct {
	DurationBounded bool
	DurationNs      int64
	GracePeriodNs   int64

	// StartTimeNs is the records manager's own perf-clock reading at
	// PROFILING start, the reference point every record's timestamp is
	// compared against. Workers' perf_ns values are only ever compared
	// within their own process (spec §4: "cross-process timestamps are
	// never compared directly"); this implementation treats
	// StartPerfNs as already expressed in the records manager's own
	// admission-ordering domain, matching the "local start timestamps
	// used solely for admission ordering" the worker publishes.
	StartTimeNs int64
}

// Admit reports whether record passes duration-bounded admission: every
// per-result timestamp t0 must satisfy t0 + request_latency <= start +
// (duration + grace_period) (spec §4.6). A MetricRecords message bundles
// exactly one RequestRecord, so there is exactly one (t0, latency) pair to
// check — the all-or-nothing "across an individual request's sub-results"
// rule is trivially satisfied. Missing timestamps (StartPerfNs and
// EndPerfNs both zero, the "required metrics missing" case) admit rather
// than filter.
func Admit(cfg AdmissionConfig, record *messages.MetricRecords) bool {
	if !cfg.DurationBounded {
		return true
	}
	if record.StartPerfNs == 0 && record.EndPerfNs == 0 {
		return true
	}

	latency := record.EndPerfNs - record.StartPerfNs
	limit := cfg.StartTimeNs + cfg.DurationNs + cfg.GracePeriodNs
	return record.StartPerfNs+latency <= limit
}
