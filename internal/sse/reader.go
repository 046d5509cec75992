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

// Package sse implements an event-stream frame reader following the
// WHATWG server-sent events line-parsing rules (spec §4.5), with
// nanosecond-precision first-byte/last-byte capture per frame so the
// worker can derive inter-chunk and inter-token latency.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Field is one "name: value" line of an event frame. A comment line (one
// starting with ':') has an empty Name; a line with no colon has an empty
// Value.
type Field struct {
	Name  string
	Value string
}

// Frame is one complete SSE event: the fields between two blank lines, plus
// the perf_ns timestamps of its first and last received byte.
type Frame struct {
	FirstBytePerfNs int64
	LastBytePerfNs  int64
	Fields          []Field
}

// Data joins every "data" field's value with "\n", the WHATWG-specified
// reassembly rule for multi-line data fields.
func (f *Frame) Data() string {
	var b strings.Builder
	first := true
	for _, field := range f.Fields {
		if field.Name != "data" {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(field.Value)
		first = false
	}
	return b.String()
}

// timestampedReader records the perf_ns of the most recent Read call that
// returned at least one byte, approximating per-byte arrival timing at the
// granularity Go's buffered I/O actually exposes.
type timestampedReader struct {
	r      io.Reader
	now    func() int64
	lastNs int64
}

func (t *timestampedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.lastNs = t.now()
	}
	return n, err
}

// Reader reads successive Frames from an SSE body.
type Reader struct {
	ts *timestampedReader
	br *bufio.Reader
}

// NewReader wraps body. now should return the current monotonic
// nanosecond timestamp (e.g. time.Now().UnixNano()); tests inject a fake
// clock for determinism.
func NewReader(body io.Reader, now func() int64) *Reader {
	ts := &timestampedReader{r: body, now: now}
	return &Reader{ts: ts, br: bufio.NewReader(ts)}
}

// ReadFrame reads until the next blank-line frame terminator (or EOF) and
// parses the accumulated lines into Fields. It returns io.EOF alongside the
// final frame when the stream ends without a trailing blank line, and pure
// io.EOF once no further content remains.
func (r *Reader) ReadFrame() (*Frame, error) {
	var firstByteNs int64
	var lines []string

	for {
		line, err := r.br.ReadString('\n')
		if len(line) > 0 && firstByteNs == 0 {
			firstByteNs = r.ts.lastNs
		}
		trimmed := strings.TrimRight(line, "\r\n")

		if err != nil {
			if trimmed != "" {
				lines = append(lines, trimmed)
			}
			if len(lines) == 0 {
				return nil, err
			}
			return &Frame{
				FirstBytePerfNs: firstByteNs,
				LastBytePerfNs:  r.ts.lastNs,
				Fields:          parseLines(lines),
			}, err
		}

		if trimmed == "" {
			if len(lines) == 0 {
				// Leading blank lines (no content yet) don't terminate a
				// frame; keep waiting for the next one.
				firstByteNs = 0
				continue
			}
			return &Frame{
				FirstBytePerfNs: firstByteNs,
				LastBytePerfNs:  r.ts.lastNs,
				Fields:          parseLines(lines),
			}, nil
		}
		lines = append(lines, trimmed)
	}
}

// parseLines converts raw SSE lines into Fields per the WHATWG rules: a
// line starting with ':' is a comment (empty Name); a line with no colon
// is a field with a null (empty) Value; otherwise the field name is the
// text before the first colon and the value is the text after it, with at
// most one leading space trimmed.
func parseLines(lines []string) []Field {
	fields := make([]Field, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, ":") {
			fields = append(fields, Field{Name: "", Value: strings.TrimPrefix(line, ":")})
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			fields = append(fields, Field{Name: line, Value: ""})
			continue
		}
		name := line[:idx]
		value := line[idx+1:]
		value = strings.TrimPrefix(value, " ")
		fields = append(fields, Field{Name: name, Value: value})
	}
	return fields
}
