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
	"errors"

	"github.com/ai-dynamo/aiperf/internal/aerr"
	"github.com/ai-dynamo/aiperf/internal/model"
)

// RecordEvaluation is the worker-side result of evaluating one record
// against the registry: the per-tag values, which tags contributed to a
// counter's predicate, and which tags hit a hard error (as opposed to a
// silently-skipped missing dependency).
type RecordEvaluation struct {
	Dict        *RecordDict
	CounterHits map[string]bool
	Errors      map[string]error
}

// EvaluateRecord runs every RecordMetric, AggregateMetric, and
// AggregateCounterMetric in the registry's topological order against one
// record (spec §4.4). This is the subset a worker computes inline;
// DerivedMetrics and AggregateMetric finalization happen later, at the
// records manager.
func EvaluateRecord(reg *Registry, record *model.ParsedResponseRecord) *RecordEvaluation {
	eval := &RecordEvaluation{
		Dict:        NewRecordDict(),
		CounterHits: make(map[string]bool),
		Errors:      make(map[string]error),
	}

	for _, tag := range reg.order {
		e := reg.entries[tag]
		if !dependenciesPresent(eval.Dict, e.descriptor.Required) {
			eval.Dict.MarkSkipped(tag)
			continue
		}

		switch {
		case e.record != nil:
			evaluateScalar(eval, tag, func() (float64, error) { return e.record.ParseRecord(eval.Dict, record) })
		case e.aggregate != nil:
			evaluateScalar(eval, tag, func() (float64, error) { return e.aggregate.ParseRecord(eval.Dict, record) })
		case e.counter != nil:
			hit, err := e.counter.Count(eval.Dict, record)
			if err != nil {
				if !errors.Is(err, aerr.ErrNoMetricValue) {
					eval.Errors[tag] = err
				}
				eval.Dict.MarkSkipped(tag)
				continue
			}
			eval.CounterHits[tag] = hit
			if hit {
				eval.Dict.Set(tag, 1)
			} else {
				eval.Dict.Set(tag, 0)
			}
		default:
			// DerivedMetric entries aren't evaluated per-record; leave
			// unset so dependents (which checkFlagCompatibility forbids
			// for RecordMetrics, but AggregateMetrics may legitimately
			// skip) see it as absent.
			eval.Dict.MarkSkipped(tag)
		}
	}

	return eval
}

func evaluateScalar(eval *RecordEvaluation, tag string, compute func() (float64, error)) {
	value, err := compute()
	if err != nil {
		if !errors.Is(err, aerr.ErrNoMetricValue) {
			eval.Errors[tag] = err
		}
		eval.Dict.MarkSkipped(tag)
		return
	}
	eval.Dict.Set(tag, value)
}

func dependenciesPresent(dict *RecordDict, required []string) bool {
	for _, dep := range required {
		if !dict.Has(dep) {
			return false
		}
	}
	return true
}
