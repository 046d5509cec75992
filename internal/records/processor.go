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
	"fmt"

	"github.com/ai-dynamo/aiperf/internal/export"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// Processor is one ResultsProcessor the records manager fans admitted
// records out to (spec §4.6): an aggregate-metric processor is always
// present, a record-export processor is optional.
type Processor interface {
	// Process folds one admitted record in.
	Process(record *messages.MetricRecords) error

	// Summarize finalizes the processor's accumulated state. Called once,
	// at records-manager shutdown.
	Summarize() error
}

// AggregateProcessor folds every admitted record's already-evaluated
// values into a metrics.Accumulator, the processor whose Summarize output
// becomes ProcessRecordsResult.Metrics.
type AggregateProcessor struct {
	Accumulator *metrics.Accumulator
}

// NewAggregateProcessor wraps an Accumulator built against the run's
// resolved metrics.Registry.
func NewAggregateProcessor(acc *metrics.Accumulator) *AggregateProcessor {
	return &AggregateProcessor{Accumulator: acc}
}

func (p *AggregateProcessor) Process(record *messages.MetricRecords) error {
	p.Accumulator.AddValues(record.Values, record.StartPerfNs, record.EndPerfNs)
	return nil
}

// Summarize is a no-op: Accumulator.Snapshot is called directly by the
// service at finalization (and on demand for RealtimeMetrics), since it
// needs the run's total duration at call time rather than at construction.
func (p *AggregateProcessor) Summarize() error { return nil }

// ExportProcessor persists each admitted record as one profile_export.jsonl
// line via an export.Writer, converting each tag's raw value into its
// metric's configured display unit (spec §6).
type ExportProcessor struct {
	writer   export.Writer
	registry *metrics.Registry
}

// NewExportProcessor wraps writer, the optional record-export collaborator
// of spec §4.6. registry supplies each tag's unit/display-unit pair.
func NewExportProcessor(writer export.Writer, registry *metrics.Registry) *ExportProcessor {
	return &ExportProcessor{writer: writer, registry: registry}
}

func (p *ExportProcessor) Process(record *messages.MetricRecords) error {
	info := model.MetricRecordInfo{
		Metadata: model.RecordMetadata{
			ConversationID: record.ConversationID,
			TurnIndex:      record.TurnIndex,
			StartPerfNs:    record.StartPerfNs,
			EndPerfNs:      record.EndPerfNs,
			ModelName:      record.ModelName,
		},
		Metrics: make(map[string]model.MetricValue, len(record.Values)),
	}
	if record.Error != nil {
		info.Metadata.Error = record.Error.Error()
	}
	for tag, value := range record.Values {
		d, ok := p.registry.Descriptor(tag)
		if !ok {
			continue
		}
		displayUnit := d.DisplayUnit
		if displayUnit == "" {
			displayUnit = d.Unit
		}
		displayValue, err := model.Convert(value, d.Unit, displayUnit)
		if err != nil {
			return fmt.Errorf("records: export record: convert %q: %w", tag, err)
		}
		info.Metrics[tag] = model.MetricValue{Value: displayValue, Unit: displayUnit}
	}
	if err := p.writer.WriteRecord(info); err != nil {
		return fmt.Errorf("records: export record: %w", err)
	}
	return nil
}

// Summarize flushes any buffered lines to disk.
func (p *ExportProcessor) Summarize() error {
	return p.writer.Flush()
}
