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

package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterClock() func() int64 {
	var n int64
	return func() int64 {
		n++
		return n
	}
}

func TestClientDoCapturesTimestampsAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"hello":"world"}`, string(body))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 0
	c := New(opts, counterClock())

	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil, []byte(`{"hello":"world"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, resp.StartPerfNs, int64(0))
	assert.GreaterOrEqual(t, resp.EndPerfNs, resp.StartPerfNs)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestClientDoRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 3
	c := New(opts, counterClock())

	origBackoff := backoffInitialInterval
	defer func() { backoffInitialInterval = origBackoff }()
	backoffInitialInterval = time.Millisecond

	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 2, attempts)
}

func TestClientDoPermanentErrorOnBadURL(t *testing.T) {
	c := New(DefaultOptions(), counterClock())
	_, err := c.Do(context.Background(), http.MethodGet, "://bad-url", nil, nil)
	assert.Error(t, err)
}

func TestIsRetryableClassifiesContextCancellation(t *testing.T) {
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(context.DeadlineExceeded))
}
