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

import "github.com/ai-dynamo/aiperf/internal/aerr"

// Dimension is one of the incompatible measurement axes a Unit belongs to.
// Conversions are only ever defined within a dimension (spec §3).
type Dimension string

const (
	DimTime           Dimension = "time"
	DimTokens         Dimension = "tokens"
	DimRequests       Dimension = "requests"
	DimRatio          Dimension = "ratio"
	DimBytes          Dimension = "bytes"
	DimTokensPerSec   Dimension = "tokens/sec"
	DimTokensPerSecPerUser Dimension = "tokens/sec/user"
	DimRequestsPerSec Dimension = "requests/sec"
)

// Unit is a typed enumeration over the dimensions in spec §3. Each time
// unit knows its conversion factor to nanoseconds; every other unit in a
// dimension converts via a factor to that dimension's base unit.
type Unit string

const (
	UnitNanoseconds  Unit = "ns"
	UnitMicroseconds Unit = "us"
	UnitMilliseconds Unit = "ms"
	UnitSeconds      Unit = "s"

	UnitTokens   Unit = "tokens"
	UnitRequests Unit = "requests"
	UnitRatio    Unit = "ratio"
	UnitPercent  Unit = "percent"
	UnitBytes    Unit = "bytes"

	UnitTokensPerSec         Unit = "tokens/sec"
	UnitTokensPerSecPerUser  Unit = "tokens/sec/user"
	UnitRequestsPerSec       Unit = "requests/sec"
)

// unitSpec describes one unit's dimension and its conversion factor to the
// dimension's base unit (nanoseconds for time, tokens for tokens, etc).
type unitSpec struct {
	dimension Dimension
	toBase    float64 // multiply a value in this unit by toBase to get the base unit
}

var unitSpecs = map[Unit]unitSpec{
	UnitNanoseconds:  {DimTime, 1},
	UnitMicroseconds: {DimTime, 1e3},
	UnitMilliseconds: {DimTime, 1e6},
	UnitSeconds:      {DimTime, 1e9},

	UnitTokens:   {DimTokens, 1},
	UnitRequests: {DimRequests, 1},
	UnitRatio:    {DimRatio, 1},
	UnitPercent:  {DimRatio, 0.01},
	UnitBytes:    {DimBytes, 1},

	UnitTokensPerSec:        {DimTokensPerSec, 1},
	UnitTokensPerSecPerUser: {DimTokensPerSecPerUser, 1},
	UnitRequestsPerSec:      {DimRequestsPerSec, 1},
}

// DimensionOf returns the dimension a unit belongs to.
func DimensionOf(u Unit) (Dimension, bool) {
	spec, ok := unitSpecs[u]
	if !ok {
		return "", false
	}
	return spec.dimension, true
}

// Convert converts value from unit `from` to unit `to`. Conversions between
// units of the same dimension are total; conversions across dimensions
// return aerr.ErrIncompatibleDimension (spec §3: "cross-dimension
// conversions fail").
func Convert(value float64, from, to Unit) (float64, error) {
	if from == to {
		return value, nil
	}
	fromSpec, ok := unitSpecs[from]
	if !ok {
		return 0, aerr.Newf(aerr.CategoryMetric, "convert", "unknown unit %q", from)
	}
	toSpec, ok := unitSpecs[to]
	if !ok {
		return 0, aerr.Newf(aerr.CategoryMetric, "convert", "unknown unit %q", to)
	}
	if fromSpec.dimension != toSpec.dimension {
		return 0, aerr.ErrIncompatibleDimension
	}
	base := value * fromSpec.toBase
	return base / toSpec.toBase, nil
}

// MustConvert is Convert but panics on error; intended for callers that have
// already validated the unit pair (e.g. constant literals in metric code).
func MustConvert(value float64, from, to Unit) float64 {
	out, err := Convert(value, from, to)
	if err != nil {
		panic(err)
	}
	return out
}
