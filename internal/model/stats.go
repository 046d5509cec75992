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

// CreditPhaseStats is a progress snapshot for one phase's credit emission,
// produced by a timing strategy and consumed by the UI (spec §3).
type CreditPhaseStats struct {
	Phase        Phase `json:"phase"`
	TotalExpected int   `json:"total_expected,omitempty"`
	Sent          int   `json:"sent"`
	Completed     int   `json:"completed"`
	Errors        int   `json:"errors"`
	PerSecond     float64 `json:"per_second"`
	ETASeconds    float64 `json:"eta_seconds,omitempty"`
	StartPerfNs   int64   `json:"start_perf_ns"`
	EndPerfNs     int64   `json:"end_perf_ns,omitempty"`
}

// RequestsStats is a progress snapshot of in-flight and completed requests,
// produced by workers.
type RequestsStats struct {
	Sent      int     `json:"sent"`
	Completed int     `json:"completed"`
	Errors    int     `json:"errors"`
	PerSecond float64 `json:"per_second"`
}

// RecordsStats is a progress snapshot produced by the records manager.
type RecordsStats struct {
	Admitted int `json:"admitted"`
	Excluded int `json:"excluded"`
	Errors   int `json:"errors"`
}

// WorkerStats is a per-worker progress snapshot.
type WorkerStats struct {
	WorkerID  string  `json:"worker_id"`
	Pulled    int     `json:"pulled"`
	Completed int     `json:"completed"`
	Errors    int     `json:"errors"`
	PerSecond float64 `json:"per_second"`
}
