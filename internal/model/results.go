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

package model

// ProcessRecordsResult is the records manager's final payload, published to
// the controller once PROFILING credits are complete and the inference
// results queue has drained (spec §4.6).
type ProcessRecordsResult struct {
	Metrics      []MetricResult `json:"metrics"`
	ErrorCounts  map[string]int `json:"error_counts,omitempty"`
	WasCancelled bool           `json:"was_cancelled"`
}

// ExitErrorInfo describes one lifecycle failure the controller aggregates
// and prints at exit (spec §7).
type ExitErrorInfo struct {
	ServiceID string `json:"service_id"`
	Category  string `json:"category"`
	Message   string `json:"message"`
}
