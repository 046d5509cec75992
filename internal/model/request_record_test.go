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

package model

import "testing"

func TestRequestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  RequestRecord
		wantErr bool
	}{
		{
			name: "valid",
			record: RequestRecord{
				StartPerfNs: 100,
				EndPerfNs:   200,
				Responses:   []RawResponse{{PerfNs: 150}},
			},
		},
		{
			name: "error record skips invariant",
			record: RequestRecord{
				StartPerfNs: 200,
				EndPerfNs:   100,
				Error:       &ErrorDetails{Type: "timeout", Message: "deadline exceeded"},
			},
		},
		{
			name: "end before start",
			record: RequestRecord{
				StartPerfNs: 200,
				EndPerfNs:   100,
				Responses:   []RawResponse{{PerfNs: 150}},
			},
			wantErr: true,
		},
		{
			name: "no responses",
			record: RequestRecord{
				StartPerfNs: 100,
				EndPerfNs:   200,
			},
			wantErr: true,
		},
		{
			name: "response outside bounds",
			record: RequestRecord{
				StartPerfNs: 100,
				EndPerfNs:   200,
				Responses:   []RawResponse{{PerfNs: 50}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsedResponseRecordValidateOrdering(t *testing.T) {
	r := &ParsedResponseRecord{
		Responses: []ParsedResponse{
			{PerfNs: 10},
			{PerfNs: 20},
			{PerfNs: 15},
		},
	}
	if err := r.Validate(); err == nil {
		t.Error("Validate() = nil, want error for out-of-order responses")
	}
}

func TestOutputSequenceLength(t *testing.T) {
	out, reasoning := 5, 3
	r := &ParsedResponseRecord{OutputTokenCount: &out, ReasoningTokenCount: &reasoning}
	if got := r.OutputSequenceLength(); got != 8 {
		t.Errorf("OutputSequenceLength() = %d, want 8", got)
	}

	r2 := &ParsedResponseRecord{}
	if got := r2.OutputSequenceLength(); got != 0 {
		t.Errorf("OutputSequenceLength() with nil counts = %d, want 0", got)
	}
}
