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

// Package httpclient is the worker's HTTP transport: one pooled client per
// worker with perf_ns timestamp capture at the first and last byte, a
// circuit breaker guarding a flapping endpoint, and retry classification
// for the errors worth retrying (spec §4.3, §5 resource policy).
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Options configures the pooled transport (spec §5: "HTTP client per
// worker owns a TCP connection pool (configurable limit, per-host cap,
// keep-alive timeout, family, happy-eyeballs delay, cleanup of closed
// sockets)").
type Options struct {
	MaxConnsPerHost     int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	FallbackDelay       time.Duration // happy-eyeballs delay for DualStack dialing
	TLSHandshakeTimeout time.Duration

	RequestTimeout time.Duration
	MaxRetries     int

	CircuitBreakerName             string
	CircuitBreakerMaxRequests      uint32
	CircuitBreakerInterval         time.Duration
	CircuitBreakerTimeout          time.Duration
	CircuitBreakerFailureThreshold uint32
}

// DefaultOptions mirrors conservative single-worker defaults; cmd/worker
// uses them as they are, and no bus message carries overrides for them.
func DefaultOptions() Options {
	return Options{
		MaxConnsPerHost:                256,
		MaxIdleConnsPerHost:            256,
		IdleConnTimeout:                90 * time.Second,
		DialTimeout:                    10 * time.Second,
		KeepAlive:                      30 * time.Second,
		FallbackDelay:                  300 * time.Millisecond,
		TLSHandshakeTimeout:            10 * time.Second,
		RequestTimeout:                 0,
		MaxRetries:                     2,
		CircuitBreakerName:             "aiperf-worker",
		CircuitBreakerMaxRequests:      1,
		CircuitBreakerInterval:         60 * time.Second,
		CircuitBreakerTimeout:          30 * time.Second,
		CircuitBreakerFailureThreshold: 5,
	}
}

// backoffInitialInterval is the exponential backoff's starting interval;
// a package variable so tests can shrink it instead of waiting out real
// retry delays.
var backoffInitialInterval = 500 * time.Millisecond

// Response is one completed HTTP round trip plus its timing capture. Body
// is the caller's to read and close.
type Response struct {
	StartPerfNs     int64
	RecvStartPerfNs int64
	EndPerfNs       int64
	StatusCode      int
	Header          http.Header
	Body            io.ReadCloser
}

// Client is a single worker's pooled HTTP transport.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	opts    Options
	now     func() int64
}

// New builds a Client. now returns the current monotonic nanosecond
// timestamp (time.Now().UnixNano() in production; tests inject a fake).
func New(opts Options, now func() int64) *Client {
	dialer := &net.Dialer{
		Timeout:       opts.DialTimeout,
		KeepAlive:     opts.KeepAlive,
		FallbackDelay: opts.FallbackDelay,
		Control:       setTCPNoDelay,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxConnsPerHost:       opts.MaxConnsPerHost,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	breakerSettings := gobreaker.Settings{
		Name:        opts.CircuitBreakerName,
		MaxRequests: opts.CircuitBreakerMaxRequests,
		Interval:    opts.CircuitBreakerInterval,
		Timeout:     opts.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.CircuitBreakerFailureThreshold
		},
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.RequestTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](breakerSettings),
		opts:    opts,
		now:     now,
	}
}

// setTCPNoDelay disables Nagle's algorithm so small request/response
// frames aren't held back waiting to coalesce, favoring first-byte timing
// over throughput (spec §5).
func setTCPNoDelay(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// Do issues method/url with body, retrying per backoff classification and
// guarded by the circuit breaker. StartPerfNs is recorded immediately
// before the final attempt's underlying client.Do call, the latest point that still
// excludes request-building overhead from request latency; RecvStartPerfNs
// is captured by an httptrace hook on the first response byte.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var recvStartPerfNs int64
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			if recvStartPerfNs == 0 {
				recvStartPerfNs = c.now()
			}
		},
	}
	traceCtx := httptrace.WithClientTrace(ctx, trace)

	var startPerfNs int64
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(traceCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("httpclient: build request: %w", err))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("Content-Type") == "" && len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		recvStartPerfNs = 0
		startPerfNs = c.now()
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.http.Do(req)
		})
		if err != nil {
			if !isRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("httpclient: server error status %d", resp.StatusCode)
		}
		return resp, nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = backoffInitialInterval
	policy := backoff.WithMaxRetries(exp, uint64(c.opts.MaxRetries))
	resp, err := backoff.RetryWithData(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		if startPerfNs == 0 {
			startPerfNs = c.now()
		}
		return &Response{StartPerfNs: startPerfNs, EndPerfNs: c.now()}, err
	}

	return &Response{
		StartPerfNs:     startPerfNs,
		RecvStartPerfNs: recvStartPerfNs,
		EndPerfNs:       c.now(),
		StatusCode:      resp.StatusCode,
		Header:          resp.Header,
		Body:            resp.Body,
	}, nil
}

// isRetryable classifies transport-level errors; gobreaker's own
// ErrOpenState and ErrTooManyRequests are never retried inline (the
// breaker is already shedding load), and context cancellation is never
// retried.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case err == context.Canceled, err == context.DeadlineExceeded:
		return false
	case err == gobreaker.ErrOpenState, err == gobreaker.ErrTooManyRequests:
		return false
	default:
		var netErr net.Error
		if ok := asNetError(err, &netErr); ok {
			return netErr.Timeout()
		}
		return true
	}
}

func asNetError(err error, target *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*target = ne
		return true
	}
	return false
}
