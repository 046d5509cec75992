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
	"fmt"
	"sort"
)

// entry is whichever of the four metric interfaces a registered class
// satisfies; exactly one must be non-nil.
type entry struct {
	descriptor Descriptor
	record     RecordMetric
	aggregate  AggregateMetric
	counter    AggregateCounterMetric
	derived    DerivedMetric
}

// Registry resolves the metric DAG under required_metrics into a
// topological evaluation order (spec §4.4 invariant (d)).
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterRecord adds a RecordMetric.
func (r *Registry) RegisterRecord(m RecordMetric) error {
	return r.add(m.Descriptor(), entry{descriptor: m.Descriptor(), record: m})
}

// RegisterAggregate adds an AggregateMetric.
func (r *Registry) RegisterAggregate(m AggregateMetric) error {
	return r.add(m.Descriptor(), entry{descriptor: m.Descriptor(), aggregate: m})
}

// RegisterCounter adds an AggregateCounterMetric.
func (r *Registry) RegisterCounter(m AggregateCounterMetric) error {
	return r.add(m.Descriptor(), entry{descriptor: m.Descriptor(), counter: m})
}

// RegisterDerived adds a DerivedMetric.
func (r *Registry) RegisterDerived(m DerivedMetric) error {
	return r.add(m.Descriptor(), entry{descriptor: m.Descriptor(), derived: m})
}

func (r *Registry) add(d Descriptor, e entry) error {
	if d.Tag == "" {
		return fmt.Errorf("metrics: registering class with empty tag")
	}
	if _, exists := r.entries[d.Tag]; exists {
		return fmt.Errorf("metrics: tag %q registered twice", d.Tag)
	}
	r.entries[d.Tag] = e
	r.order = nil
	return nil
}

// Resolve topologically sorts every registered class over its
// required_metrics, verifying the graph is a DAG and that every enabled
// metric's dependencies are themselves registered (spec §4.4, §7 invariant
// (d) and (e)). Call once after all RegisterX calls; Order/Entry are only
// valid after a successful Resolve.
func (r *Registry) Resolve() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(r.entries))
	order := make([]string, 0, len(r.entries))

	var visit func(tag string, path []string) error
	visit = func(tag string, path []string) error {
		switch state[tag] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("metrics: dependency cycle detected: %v -> %s", path, tag)
		}
		e, ok := r.entries[tag]
		if !ok {
			return fmt.Errorf("metrics: %q requires unregistered metric %q", path[len(path)-1], tag)
		}
		state[tag] = gray
		for _, dep := range e.descriptor.Required {
			if err := visit(dep, append(path, tag)); err != nil {
				return err
			}
		}
		state[tag] = black
		order = append(order, tag)
		return nil
	}

	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	// Deterministic iteration: registration call order, not map order, is
	// what each binary actually relies on, but a stable sort keeps Resolve
	// itself reproducible across runs for the same registration set.
	sort.Strings(tags)

	for _, tag := range tags {
		if err := visit(tag, nil); err != nil {
			return err
		}
	}

	if err := r.checkFlagCompatibility(); err != nil {
		return err
	}

	r.order = order
	return nil
}

// checkFlagCompatibility verifies spec §4.4's "verifies flags
// compatibility" contract: a RecordMetric must not depend on an
// aggregate-only metric (AggregateMetric/AggregateCounterMetric/
// DerivedMetric results aren't available until finalization).
func (r *Registry) checkFlagCompatibility() error {
	for tag, e := range r.entries {
		if e.record == nil {
			continue
		}
		for _, dep := range e.descriptor.Required {
			depEntry := r.entries[dep]
			if depEntry.record == nil {
				return fmt.Errorf("metrics: record metric %q depends on non-record metric %q", tag, dep)
			}
		}
	}
	return nil
}

// Order returns the topological evaluation order computed by Resolve.
func (r *Registry) Order() []string {
	return r.order
}

// RecordMetrics returns the evaluation order filtered to RecordMetric
// entries, the subset a worker evaluates inline (spec §4.4).
func (r *Registry) RecordMetrics() []RecordMetric {
	out := make([]RecordMetric, 0, len(r.order))
	for _, tag := range r.order {
		if m := r.entries[tag].record; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// AggregateMetrics returns every registered AggregateMetric in evaluation
// order.
func (r *Registry) AggregateMetrics() []AggregateMetric {
	out := make([]AggregateMetric, 0, len(r.order))
	for _, tag := range r.order {
		if m := r.entries[tag].aggregate; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Counters returns every registered AggregateCounterMetric in evaluation
// order.
func (r *Registry) Counters() []AggregateCounterMetric {
	out := make([]AggregateCounterMetric, 0, len(r.order))
	for _, tag := range r.order {
		if m := r.entries[tag].counter; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// DerivedMetrics returns every registered DerivedMetric in evaluation
// order.
func (r *Registry) DerivedMetrics() []DerivedMetric {
	out := make([]DerivedMetric, 0, len(r.order))
	for _, tag := range r.order {
		if m := r.entries[tag].derived; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Descriptor returns the registered descriptor for tag, if any.
func (r *Registry) Descriptor(tag string) (Descriptor, bool) {
	e, ok := r.entries[tag]
	return e.descriptor, ok
}
