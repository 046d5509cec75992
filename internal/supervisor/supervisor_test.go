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

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
)

func TestAwaitRegistrationsSucceedsWhenAllServicesRegister(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
			Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: "worker-1"},
			ServiceType: "worker",
		})
		_ = m.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
			Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: "records-1"},
			ServiceType: "records_manager",
		})
	}()

	err := s.AwaitRegistrations(ctx, []string{"worker-1", "records-1"}, time.Second)
	assert.NoError(t, err)
}

func TestAwaitRegistrationsTimesOutOnMissingService(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	err := s.AwaitRegistrations(context.Background(), []string{"worker-1"}, 30*time.Millisecond)
	assert.Error(t, err)
}

func TestConfigureWaitsForAcksFromEveryService(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsub, err := m.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		profile, ok := msg.(*messages.ProfileConfigure)
		if !ok {
			return
		}
		for _, id := range []string{"worker-1", "worker-2"} {
			_ = m.Publish(ctx, messages.TopicCommands, &messages.CommandResponse{
				Envelope: messages.Envelope{
					MessageType: messages.TypeCommandResponse,
					ServiceID:   id,
					RequestID:   profile.RequestID,
				},
				Status: messages.CommandAcknowledged,
			})
		}
	})
	require.NoError(t, err)
	defer unsub()

	profile := &messages.ProfileConfigure{
		Envelope:    messages.Envelope{MessageType: messages.TypeProfileConfigure},
		EndpointURL: "http://localhost:8000",
	}
	err = s.Configure(ctx, profile, []string{"worker-1", "worker-2"}, time.Second)
	assert.NoError(t, err)
	assert.NotEmpty(t, profile.RequestID)
}

func TestConfigureReportsRejection(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsub, err := m.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		profile, ok := msg.(*messages.ProfileConfigure)
		if !ok {
			return
		}
		_ = m.Publish(ctx, messages.TopicCommands, &messages.CommandResponse{
			Envelope: messages.Envelope{
				MessageType: messages.TypeCommandResponse,
				ServiceID:   "worker-1",
				RequestID:   profile.RequestID,
			},
			Status: messages.CommandFailure,
			Detail: "bad endpoint",
		})
	})
	require.NoError(t, err)
	defer unsub()

	profile := &messages.ProfileConfigure{Envelope: messages.Envelope{MessageType: messages.TypeProfileConfigure}}
	err = s.Configure(ctx, profile, []string{"worker-1"}, time.Second)
	assert.Error(t, err)
}

func TestAwaitResultReturnsPublishedResult(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = m.Publish(ctx, messages.TopicCommands, &messages.ProcessRecordsResult{
			Envelope: messages.Envelope{MessageType: messages.TypeProcessRecordsResult},
			Result:   model.ProcessRecordsResult{Metrics: nil, WasCancelled: false},
		})
	}()

	result, err := s.AwaitResult(ctx)
	require.NoError(t, err)
	assert.False(t, result.WasCancelled)
}

func TestSpawnAndShutdownStopsProcess(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	var registered bool
	unsub, err := m.Subscribe(context.Background(), messages.TopicCommands, func(msg messages.Message) {
		if _, ok := msg.(*messages.Shutdown); ok {
			registered = true
		}
	})
	require.NoError(t, err)
	defer unsub()

	err = s.Spawn(ProcessSpec{
		ServiceID:   "sleepy",
		ServiceType: "worker",
		Command:     "sh",
		Args:        []string{"-c", "sleep 30"},
	}, svcconfig.Descriptor{})
	require.NoError(t, err)

	s.Shutdown(context.Background(), 50*time.Millisecond)

	s.mu.Lock()
	p := s.processes["sleepy"]
	s.mu.Unlock()
	assert.True(t, p.exited())
	assert.True(t, registered)
}

func TestKillAllStopsProcessImmediately(t *testing.T) {
	m := bus.NewMemory()
	defer m.Close()
	s := New(m, "", logr.Discard())

	require.NoError(t, s.Spawn(ProcessSpec{
		ServiceID: "sleepy",
		Command:   "sh",
		Args:      []string{"-c", "sleep 30"},
	}, svcconfig.Descriptor{}))

	s.KillAll()

	s.mu.Lock()
	p := s.processes["sleepy"]
	s.mu.Unlock()
	assert.True(t, p.exited())
}
