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

// Package worker implements one AIPerf worker process's per-credit
// procedure: pull a credit, resolve its turn, issue the HTTP/SSE request,
// parse the response, evaluate record metrics, and report back (spec
// §4.3).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/convert"
	"github.com/ai-dynamo/aiperf/internal/dataset"
	"github.com/ai-dynamo/aiperf/internal/httpclient"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/sse"
)

// Config is the endpoint shape a worker was told to drive by
// ProfileConfigure.
type Config struct {
	EndpointType string
	EndpointURL  string
	Streaming    bool
	ExtraHeaders map[string]string
	ExtraPayload map[string]any

	CreditVisibility time.Duration
}

// Worker pulls credits for one process and drives them to completion.
type Worker struct {
	transport bus.Transport
	store     *dataset.Store
	http      *httpclient.Client
	converter convert.Converter
	registry  *metrics.Registry
	cfg       Config
	now       func() int64
	log       logr.Logger
}

// New builds a Worker for the endpoint type named by cfg.EndpointType.
func New(transport bus.Transport, store *dataset.Store, httpClient *httpclient.Client, registry *metrics.Registry, cfg Config, now func() int64, log logr.Logger) (*Worker, error) {
	converter, err := convert.ForEndpoint(cfg.EndpointType)
	if err != nil {
		return nil, err
	}
	return &Worker{
		transport: transport,
		store:     store,
		http:      httpClient,
		converter: converter,
		registry:  registry,
		cfg:       cfg,
		now:       now,
		log:       log,
	}, nil
}

// Run pulls and processes credits until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		delivery, err := w.transport.Pull(ctx, messages.QueueCredits, w.cfg.CreditVisibility)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, bus.ErrTimeout) {
				continue
			}
			return fmt.Errorf("worker: pull credit: %w", err)
		}

		drop, ok := delivery.Message.(*messages.CreditDrop)
		if !ok {
			w.log.Info("worker: ignoring non-CreditDrop message on credits queue", "type", delivery.Message.Envelope().MessageType)
			_ = w.transport.Ack(ctx, messages.QueueCredits, delivery.Handle)
			continue
		}

		w.processCredit(ctx, drop.Credit)
		if err := w.transport.Ack(ctx, messages.QueueCredits, delivery.Handle); err != nil {
			w.log.Error(err, "worker: ack credit")
		}
	}
}

// processCredit implements steps 2-8 of the per-credit procedure.
func (w *Worker) processCredit(ctx context.Context, credit model.Credit) {
	conversationID, turn, err := w.store.Turn(ctx, credit.ConversationID, credit.TurnIndex)
	if err != nil {
		w.reportFailure(ctx, credit, conversationID, model.ErrorDetails{Type: "dataset_lookup_failed", Message: err.Error()})
		return
	}

	payload, err := w.converter.Convert(turn, convert.EndpointConfig{
		Streaming: w.cfg.Streaming,
		Extra:     w.cfg.ExtraPayload,
	})
	if err != nil {
		w.reportFailure(ctx, credit, conversationID, model.ErrorDetails{Type: "request_conversion_failed", Message: err.Error()})
		return
	}

	record, err := w.issueRequest(ctx, conversationID, credit, payload)
	if err != nil {
		w.reportFailure(ctx, credit, conversationID, model.ErrorDetails{Type: "transport_error", Message: err.Error()})
		return
	}

	parsed, err := convert.Extract(w.cfg.EndpointType, w.cfg.Streaming, record.Responses)
	latencyNs := record.EndPerfNs - record.StartPerfNs
	if err != nil {
		record.Error = &model.ErrorDetails{Type: "response_parse_failed", Message: err.Error()}
	}

	responseRecord := &model.ParsedResponseRecord{Request: record, Responses: parsed}
	w.publishResults(ctx, responseRecord)
	w.emitCreditReturn(ctx, credit, latencyNs, record.Error != nil, record.Cancelled)
}

// issueRequest performs step 4 (POST + SSE capture) and step 5 (the
// should_cancel race).
func (w *Worker) issueRequest(ctx context.Context, conversationID string, credit model.Credit, payload map[string]any) (*model.RequestRecord, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if credit.ShouldCancel && credit.CancelAfterNs > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(credit.CancelAfterNs))
		defer cancel()
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{}
	for k, v := range w.cfg.ExtraHeaders {
		headers[k] = v
	}

	resp, err := w.http.Do(reqCtx, http.MethodPost, w.cfg.EndpointURL, headers, body)
	record := &model.RequestRecord{
		ConversationID: conversationID,
		TurnIndex:      credit.TurnIndex,
	}
	if resp != nil {
		record.StartPerfNs = resp.StartPerfNs
		record.RecvStartPerfNs = resp.RecvStartPerfNs
		record.EndPerfNs = resp.EndPerfNs
	}
	if err != nil {
		if credit.ShouldCancel && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			record.Cancelled = true
			record.EndPerfNs = w.now()
			return record, nil
		}
		return record, err
	}
	defer resp.Body.Close()

	record.Status = resp.StatusCode
	responses, err := w.readResponses(reqCtx, resp)
	record.EndPerfNs = w.now()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && credit.ShouldCancel {
			record.Cancelled = true
			return record, nil
		}
		return record, err
	}
	record.Responses = responses
	return record, nil
}

func (w *Worker) readResponses(ctx context.Context, resp *httpclient.Response) ([]model.RawResponse, error) {
	if !w.cfg.Streaming {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return []model.RawResponse{{PerfNs: w.now(), Text: string(data)}}, nil
	}

	reader := sse.NewReader(resp.Body, w.now)
	var out []model.RawResponse
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		frame, err := reader.ReadFrame()
		if frame != nil {
			out = append(out, model.RawResponse{PerfNs: frame.LastBytePerfNs, Text: frame.Data()})
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
	}
}

func (w *Worker) reportFailure(ctx context.Context, credit model.Credit, conversationID string, details model.ErrorDetails) {
	now := w.now()
	record := &model.RequestRecord{
		ConversationID: conversationID,
		TurnIndex:      credit.TurnIndex,
		StartPerfNs:    now,
		EndPerfNs:      now,
		Error:          &details,
	}
	w.publishResults(ctx, &model.ParsedResponseRecord{Request: record})
	w.emitCreditReturn(ctx, credit, 0, true, false)
}

func (w *Worker) publishResults(ctx context.Context, record *model.ParsedResponseRecord) {
	values := map[string]float64{}
	if record.Request.Error == nil {
		eval := metrics.EvaluateRecord(w.registry, record)
		values = eval.Dict.Values()
	}

	msg := &messages.MetricRecords{
		Envelope:       messages.Envelope{MessageType: messages.TypeMetricRecords},
		ConversationID: record.Request.ConversationID,
		TurnIndex:      record.Request.TurnIndex,
		StartPerfNs:    record.Request.StartPerfNs,
		EndPerfNs:      record.Request.EndPerfNs,
		Error:          record.Request.Error,
		Values:         values,
	}
	if err := w.transport.Push(ctx, messages.QueueInferenceResults, msg); err != nil {
		w.log.Error(err, "worker: push metric records")
	}
}

func (w *Worker) emitCreditReturn(ctx context.Context, credit model.Credit, latencyNs int64, errored, cancelled bool) {
	msg := &messages.CreditReturn{
		Envelope:        messages.Envelope{MessageType: messages.TypeCreditReturn},
		ConversationNum: credit.ConversationNum,
		LatencyNs:       latencyNs,
		Errored:         errored,
		Cancelled:       cancelled,
	}
	if err := w.transport.Publish(ctx, messages.TopicCommands, msg); err != nil {
		w.log.Error(err, "worker: publish credit return")
	}
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
