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

import "github.com/ai-dynamo/aiperf/internal/aerr"

// RecordDict accumulates one record's metric values as they're computed in
// topological order (spec §4.4). Values are stored in each metric's
// declared unit; callers needing a different unit convert via model.Convert
// at the edge (export, display).
type RecordDict struct {
	values  map[string]float64
	skipped map[string]bool
}

// NewRecordDict returns an empty dict for one record's evaluation pass.
func NewRecordDict() *RecordDict {
	return &RecordDict{values: make(map[string]float64), skipped: make(map[string]bool)}
}

// Set records tag's computed value.
func (d *RecordDict) Set(tag string, value float64) {
	d.values[tag] = value
}

// MarkSkipped records that tag produced aerr.ErrNoMetricValue, so dependents
// can short-circuit without re-attempting the lookup.
func (d *RecordDict) MarkSkipped(tag string) {
	d.skipped[tag] = true
}

// Get returns tag's value, or aerr.ErrNoMetricValue if it was never set or
// was explicitly skipped — the dependency-missing case spec §4.4 calls
// "skip silently; a dependent metric reports NoMetricValue to its own
// dependents".
func (d *RecordDict) Get(tag string) (float64, error) {
	if d.skipped[tag] {
		return 0, aerr.ErrNoMetricValue
	}
	v, ok := d.values[tag]
	if !ok {
		return 0, aerr.ErrNoMetricValue
	}
	return v, nil
}

// Has reports whether tag has a value (not skipped, not absent).
func (d *RecordDict) Has(tag string) bool {
	_, ok := d.values[tag]
	return ok && !d.skipped[tag]
}

// Values returns a snapshot of every tag this record produced a value for,
// the shape a MetricRecords message's Values field carries across the bus.
func (d *RecordDict) Values() map[string]float64 {
	out := make(map[string]float64, len(d.values))
	for tag, v := range d.values {
		out[tag] = v
	}
	return out
}
