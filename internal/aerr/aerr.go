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

// Package aerr defines the error taxonomy AIPerf services use to classify
// failures for ServiceFailed reporting and controller-side exit-code
// decisions (spec §7).
package aerr

import (
	"errors"
	"fmt"
)

// Category classifies an error for propagation and recovery purposes.
type Category string

// Error categories, one per spec §7 taxonomy row.
const (
	CategoryCommunication    Category = "communication"
	CategoryConfiguration    Category = "configuration"
	CategoryDatasetGenerator Category = "dataset_generator"
	CategoryServiceLifecycle Category = "service_lifecycle"
	CategoryTokenizer        Category = "tokenizer"
	CategoryMetric           Category = "metric"
	CategoryTransport        Category = "transport"
)

// Recoverable reports whether errors in this category are local to a single
// record/metric (true) or must surface to the controller and terminate the
// owning service (false).
func (c Category) Recoverable() bool {
	switch c {
	case CategoryMetric, CategoryTransport:
		return true
	default:
		return false
	}
}

// Error is a categorized, wrapped error.
type Error struct {
	Category Category
	Op       string // the operation that failed, e.g. "push", "configure"
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a category and operation name.
func New(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// Newf builds a categorized error from a format string, mirroring
// fmt.Errorf's %w wrapping support.
func Newf(category Category, op, format string, args ...any) error {
	return &Error{Category: category, Op: op, Err: fmt.Errorf(format, args...)}
}

// CategoryOf extracts the Category of err, walking the unwrap chain. It
// returns ("", false) if err (or none of its wrapped causes) is an *Error.
func CategoryOf(err error) (Category, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category, true
	}
	return "", false
}

// Sentinel errors for conditions the metric engine and bus must distinguish
// by identity rather than by category alone.
var (
	// ErrNoMetricValue signals a metric legitimately produced no value for
	// this record (e.g. a reasoning-only record has no TimeToFirstOutput
	// yet); dependents must also report ErrNoMetricValue, not fail.
	ErrNoMetricValue = errors.New("aerr: no metric value")

	// ErrMetricType signals a metric received a value of the wrong Go type
	// for its declared unit.
	ErrMetricType = errors.New("aerr: metric type error")

	// ErrIncompatibleDimension signals a unit conversion was attempted
	// across two units of different dimensions (time vs. tokens, etc).
	ErrIncompatibleDimension = errors.New("aerr: incompatible unit dimension")
)
