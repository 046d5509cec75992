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

package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation name constants for BusMetrics.
const (
	OpPublish = "publish"
	OpPush    = "push"
	OpPull    = "pull"
	OpAck     = "ack"
	OpRequest = "request"
)

// Metric status constants.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BusMetrics holds Prometheus metrics for bus operations. No service in
// this module constructs it or serves a /metrics endpoint.
type BusMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	QueueDepth        *prometheus.GaugeVec
	RedeliveriesTotal *prometheus.CounterVec
}

// BusMetricsConfig configures BusMetrics.
type BusMetricsConfig struct {
	// Namespace is an optional const label distinguishing multiple
	// transports sharing one process (rare outside tests).
	Namespace string
	// OperationDurationBuckets overrides the default histogram buckets.
	OperationDurationBuckets []float64
}

// DefaultOperationDurationBuckets matches bus operations' expected latency:
// sub-millisecond for Memory, single-digit milliseconds for Redis.
var DefaultOperationDurationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// NewBusMetrics creates and registers Prometheus metrics for bus operations.
func NewBusMetrics(cfg BusMetricsConfig) *BusMetrics {
	var constLabels prometheus.Labels
	if cfg.Namespace != "" {
		constLabels = prometheus.Labels{"namespace": cfg.Namespace}
	}

	buckets := cfg.OperationDurationBuckets
	if buckets == nil {
		buckets = DefaultOperationDurationBuckets
	}

	return &BusMetrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "aiperf_bus_operations_total",
			Help:        "Total number of bus operations, by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "status"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "aiperf_bus_operation_duration_seconds",
			Help:        "Bus operation duration in seconds.",
			ConstLabels: constLabels,
			Buckets:     buckets,
		}, []string{"operation"}),

		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "aiperf_bus_queue_depth",
			Help:        "Approximate number of pending items in a named PUSH/PULL queue.",
			ConstLabels: constLabels,
		}, []string{"queue"}),

		RedeliveriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "aiperf_bus_redeliveries_total",
			Help:        "Total number of items returned to a queue after their visibility deadline elapsed unacked.",
			ConstLabels: constLabels,
		}, []string{"queue"}),
	}
}

// RecordOperation records the outcome and latency of a bus operation.
func (m *BusMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// SetQueueDepth reports the current pending length of a queue.
func (m *BusMetrics) SetQueueDepth(queue string, depth int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordRedelivery records a visibility-timeout requeue.
func (m *BusMetrics) RecordRedelivery(queue string) {
	m.RedeliveriesTotal.WithLabelValues(queue).Inc()
}

// BusMetricsRecorder allows an Instrumented transport to accept either a
// real BusMetrics or a no-op stand-in when metrics are disabled.
type BusMetricsRecorder interface {
	RecordOperation(operation string, durationSeconds float64, success bool)
	SetQueueDepth(queue string, depth int)
	RecordRedelivery(queue string)
}

// NoOpBusMetrics discards every call. Used when a service runs with
// metrics disabled, so call sites never need nil checks.
type NoOpBusMetrics struct{}

func (NoOpBusMetrics) RecordOperation(_ string, _ float64, _ bool) {}
func (NoOpBusMetrics) SetQueueDepth(_ string, _ int)                {}
func (NoOpBusMetrics) RecordRedelivery(_ string)                    {}

var (
	_ BusMetricsRecorder = (*BusMetrics)(nil)
	_ BusMetricsRecorder = NoOpBusMetrics{}
)
