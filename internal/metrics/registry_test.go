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

	"github.com/ai-dynamo/aiperf/internal/model"
)

type fakeRecordMetric struct {
	tag      string
	required []string
}

func (f fakeRecordMetric) Descriptor() Descriptor {
	return Descriptor{Tag: f.tag, Required: f.required, Kind: KindRecord}
}

func (f fakeRecordMetric) ParseRecord(dict *RecordDict, _ *model.ParsedResponseRecord) (float64, error) {
	total := 0.0
	for _, dep := range f.required {
		v, err := dict.Get(dep)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total + 1, nil
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "a"}))
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "b", required: []string{"a"}}))
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "c", required: []string{"b"}}))
	require.NoError(t, reg.Resolve())

	order := reg.Order()
	posA, posB, posC := indexOf(order, "a"), indexOf(order, "b"), indexOf(order, "c")
	assert.True(t, posA < posB)
	assert.True(t, posB < posC)
}

func TestResolveDetectsCycle(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "a", required: []string{"b"}}))
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "b", required: []string{"a"}}))
	err := reg.Resolve()
	assert.Error(t, err)
}

func TestResolveDetectsUnregisteredDependency(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRecord(fakeRecordMetric{tag: "a", required: []string{"missing"}}))
	err := reg.Resolve()
	assert.Error(t, err)
}

func TestDefaultRegistryResolves(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Order())
	assert.NotEmpty(t, reg.AggregateMetrics())
	assert.NotEmpty(t, reg.Counters())
	assert.NotEmpty(t, reg.DerivedMetrics())
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
