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

package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ai-dynamo/aiperf/internal/messages"
)

func TestAdmitUnbounded(t *testing.T) {
	cfg := AdmissionConfig{DurationBounded: false}
	record := &messages.MetricRecords{StartPerfNs: 0, EndPerfNs: 0}
	assert.True(t, Admit(cfg, record))
}

func TestAdmitMissingTimestampsAlwaysAdmitted(t *testing.T) {
	cfg := AdmissionConfig{
		DurationBounded: true,
		DurationNs:      int64(2 * time.Second),
		GracePeriodNs:   int64(1 * time.Second),
		StartTimeNs:     0,
	}
	record := &messages.MetricRecords{StartPerfNs: 0, EndPerfNs: 0}
	assert.True(t, Admit(cfg, record))
}

func TestAdmitDurationBoundedBoundary(t *testing.T) {
	start := int64(0)
	cfg := AdmissionConfig{
		DurationBounded: true,
		DurationNs:      int64(2 * time.Second),
		GracePeriodNs:   int64(1 * time.Second),
		StartTimeNs:     start,
	}

	// (T+1.5s, latency 1.0s): ends at T+2.5s, within T+3.0s limit -> admitted.
	admitted := &messages.MetricRecords{
		StartPerfNs: start + int64(1500*time.Millisecond),
		EndPerfNs:   start + int64(1500*time.Millisecond) + int64(1*time.Second),
	}
	assert.True(t, Admit(cfg, admitted))

	// (T+1.5s, latency 1.6s): ends at T+3.1s, past the T+3.0s limit -> excluded.
	excluded := &messages.MetricRecords{
		StartPerfNs: start + int64(1500*time.Millisecond),
		EndPerfNs:   start + int64(1500*time.Millisecond) + int64(1600*time.Millisecond),
	}
	assert.False(t, Admit(cfg, excluded))
}

func TestAdmitExactlyAtLimitIsAdmitted(t *testing.T) {
	cfg := AdmissionConfig{
		DurationBounded: true,
		DurationNs:      int64(2 * time.Second),
		GracePeriodNs:   int64(1 * time.Second),
		StartTimeNs:     0,
	}
	record := &messages.MetricRecords{
		StartPerfNs: int64(2 * time.Second),
		EndPerfNs:   int64(3 * time.Second),
	}
	assert.True(t, Admit(cfg, record))
}
