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

// Package export writes the records manager's per-record detail file,
// profile_export.jsonl (spec §4.6, §6): one JSON line per admitted record,
// buffered to a small batch and flushed to disk rather than fsync-ed per
// line.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ai-dynamo/aiperf/internal/model"
)

// Writer is the record-export collaborator spec §4.6 calls an optional
// ResultsProcessor: it persists each admitted record's metadata and
// per-metric display-unit values as one JSONL line.
type Writer interface {
	// WriteRecord appends one line. Implementations may buffer; Flush (or
	// Close) forces any buffered lines to disk.
	WriteRecord(info model.MetricRecordInfo) error

	// Flush forces any buffered lines to disk without closing the
	// underlying file.
	Flush() error

	// Close flushes and releases the underlying file.
	Close() error
}

// FileWriter is a Writer backed by a local JSONL file, the concrete
// collaborator for profile_export.jsonl.
type FileWriter struct {
	mu        sync.Mutex
	file      *os.File
	buf       *bufio.Writer
	batchSize int
	unflushed int
}

// NewFileWriter opens (creating/truncating) path and returns a Writer that
// flushes to disk every batchSize records; batchSize <= 0 flushes every
// line.
func NewFileWriter(path string, batchSize int) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &FileWriter{
		file:      f,
		buf:       bufio.NewWriter(f),
		batchSize: batchSize,
	}, nil
}

// WriteRecord marshals info as one JSON line and appends it to the buffer,
// flushing once batchSize lines have accumulated.
func (w *FileWriter) WriteRecord(info model.MetricRecordInfo) error {
	line, err := json.Marshal(&info)
	if err != nil {
		return fmt.Errorf("export: marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	w.unflushed++
	if w.unflushed >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush forces any buffered lines to disk.
func (w *FileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *FileWriter) flushLocked() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	w.unflushed = 0
	return nil
}

// Close flushes remaining lines and closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("export: flush on close: %w", err)
	}
	return w.file.Close()
}
