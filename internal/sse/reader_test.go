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

package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(ticks ...int64) func() int64 {
	i := -1
	return func() int64 {
		i++
		if i >= len(ticks) {
			return ticks[len(ticks)-1]
		}
		return ticks[i]
	}
}

func TestReadFrameParsesDataField(t *testing.T) {
	body := "data: {\"text\":\"hi\"}\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(100, 200, 300))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	require.Len(t, frame.Fields, 1)
	assert.Equal(t, "data", frame.Fields[0].Name)
	assert.Equal(t, `{"text":"hi"}`, frame.Fields[0].Value)
	assert.Equal(t, `{"text":"hi"}`, frame.Data())
}

func TestReadFrameMultiLineData(t *testing.T) {
	body := "data: line one\ndata: line two\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2, 3, 4))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", frame.Data())
}

func TestReadFrameCommentLine(t *testing.T) {
	body := ": heartbeat\ndata: ok\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2, 3))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	require.Len(t, frame.Fields, 2)
	assert.Equal(t, "", frame.Fields[0].Name)
	assert.Equal(t, " heartbeat", frame.Fields[0].Value)
	assert.Equal(t, "data", frame.Fields[1].Name)
}

func TestReadFrameNoColonBecomesNullValueField(t *testing.T) {
	body := "retry\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	require.Len(t, frame.Fields, 1)
	assert.Equal(t, "retry", frame.Fields[0].Name)
	assert.Equal(t, "", frame.Fields[0].Value)
}

func TestReadFrameCapturesFirstAndLastByteTimestamps(t *testing.T) {
	// The frame's two lines arrive in separate reads, so the clock is read
	// once per arrival: 500 for the data line, 600 for the blank terminator.
	body := "data: a\n\n"
	r := NewReader(io.MultiReader(strings.NewReader(body[:8]), strings.NewReader(body[8:])), fakeClock(500, 600))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(500), frame.FirstBytePerfNs)
	assert.Equal(t, int64(600), frame.LastBytePerfNs)
}

func TestReadFrameDoneSentinel(t *testing.T) {
	body := "data: [DONE]\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "[DONE]", frame.Data())
}

func TestReadFrameSequenceOfFrames(t *testing.T) {
	body := "data: one\n\ndata: two\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2, 3, 4, 5, 6))

	f1, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "one", f1.Data())

	f2, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "two", f2.Data())

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameFinalFrameWithoutTrailingBlankLine(t *testing.T) {
	body := "data: trailing"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2))

	frame, err := r.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
	require.NotNil(t, frame)
	assert.Equal(t, "trailing", frame.Data())
}

func TestReadFrameLeadingBlankLinesAreSkipped(t *testing.T) {
	body := "\n\ndata: ok\n\n"
	r := NewReader(strings.NewReader(body), fakeClock(1, 2, 3, 4, 5))

	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", frame.Data())
}
