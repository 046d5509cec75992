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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAddValuesDerivesDurationFromSpan(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	acc := NewAccumulator(reg)
	// Three records whose StartPerfNs/EndPerfNs span 2 seconds overall, even
	// though no nominal AdmissionConfig.DurationNs is known (count-bounded
	// or concurrency-mode run).
	acc.AddValues(map[string]float64{TagRequestLatency: 100_000_000}, 0, 500_000_000)
	acc.AddValues(map[string]float64{TagRequestLatency: 100_000_000}, 500_000_000, 1_500_000_000)
	acc.AddValues(map[string]float64{TagRequestLatency: 100_000_000}, 1_000_000_000, 2_000_000_000)

	assert.Equal(t, int64(2_000_000_000), acc.ElapsedNs())

	results, err := acc.Snapshot(0)
	require.NoError(t, err)

	byTag := make(map[string]float64)
	for _, r := range results {
		byTag[r.Tag] = r.Avg
	}
	assert.InDelta(t, 2_000_000_000, byTag[TagBenchmarkDuration], 1)
	assert.InDelta(t, 1.5, byTag[TagRequestThroughput], 0.001) // 3 requests / 2s
}

func TestAccumulatorSnapshotFallsBackToNominalDurationWithoutTimestamps(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	acc := NewAccumulator(reg)
	acc.AddValues(map[string]float64{TagRequestLatency: 100_000_000}, 0, 0)

	results, err := acc.Snapshot(1_000_000_000)
	require.NoError(t, err)

	byTag := make(map[string]float64)
	for _, r := range results {
		byTag[r.Tag] = r.Avg
	}
	assert.InDelta(t, 1_000_000_000, byTag[TagBenchmarkDuration], 1)
}
