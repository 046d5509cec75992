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
	"math"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// histogramScale converts a float64 value into the fixed-point integer
// domain hdrhistogram-go requires, preserving three decimal digits for
// sub-unit values like a goodput ratio while still covering multi-hour
// latencies recorded in nanoseconds.
const histogramScale = 1e3

// histogramMax bounds the tracked value range; generous enough for a
// benchmark run lasting days when values are nanosecond durations.
const histogramMax = 1e18

// histogramSigFigs is hdrhistogram's significant-figure precision; 3 gives
// 0.1% relative error, ample for the percentile set spec §3 defines.
const histogramSigFigs = 3

// summarize reduces an array of per-record values into a MetricResult via a
// histogram for percentiles plus a running sum/sum-of-squares for mean and
// standard deviation (spec §4.4: "exact percentiles via in-memory sorted
// samples are acceptable for target sizes" — a histogram gives the same
// percentile semantics at bounded memory for larger runs).
func summarize(descriptor Descriptor, values []float64) model.MetricResult {
	result := model.MetricResult{
		Tag:    descriptor.Tag,
		Header: descriptor.Header,
		Unit:   descriptor.Unit,
		Count:  len(values),
	}
	if len(values) == 0 {
		return result
	}

	minValue, maxValue := values[0], values[0]
	var sum, sumSq float64
	hist := hdrhistogram.New(1, histogramMax, histogramSigFigs)
	for _, v := range values {
		if v < minValue {
			minValue = v
		}
		if v > maxValue {
			maxValue = v
		}
		sum += v
		sumSq += v * v
		scaled := int64(math.Round(v * histogramScale))
		if scaled < 1 {
			scaled = 1
		}
		_ = hist.RecordValue(scaled)
	}

	n := float64(len(values))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	result.Min = minValue
	result.Max = maxValue
	result.Avg = mean
	result.Std = math.Sqrt(variance)
	result.Percentiles = &model.Percentiles{
		P1:  fromScaled(hist.ValueAtQuantile(1)),
		P5:  fromScaled(hist.ValueAtQuantile(5)),
		P25: fromScaled(hist.ValueAtQuantile(25)),
		P50: fromScaled(hist.ValueAtQuantile(50)),
		P75: fromScaled(hist.ValueAtQuantile(75)),
		P90: fromScaled(hist.ValueAtQuantile(90)),
		P95: fromScaled(hist.ValueAtQuantile(95)),
		P99: fromScaled(hist.ValueAtQuantile(99)),
	}
	return result
}

func fromScaled(v int64) float64 {
	return float64(v) / histogramScale
}
