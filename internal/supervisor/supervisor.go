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
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
)

// Supervisor spawns a run's required services as subprocesses and drives
// them through the registration/configure/start/complete/shutdown sequence
// spec §4.7 lays out. One Supervisor handles one run.
type Supervisor struct {
	transport bus.Transport
	configDir string
	log       logr.Logger

	mu        sync.Mutex
	processes map[string]*process
}

// New builds a Supervisor. configDir, if non-empty, is where per-service
// svcconfig.Descriptor files are written before each subprocess starts;
// leaving it empty falls back to env-var-only configuration, which every
// cmd/ entrypoint also supports.
func New(transport bus.Transport, configDir string, log logr.Logger) *Supervisor {
	return &Supervisor{
		transport: transport,
		configDir: configDir,
		log:       log,
		processes: make(map[string]*process),
	}
}

// Spawn writes descriptor (when a config dir is configured) and starts the
// subprocess described by spec, tagging it with AIPERF_SERVICE_ID and, if a
// config dir is in use, AIPERF_CONFIG_DIR so the child finds its file.
func (s *Supervisor) Spawn(spec ProcessSpec, descriptor svcconfig.Descriptor) error {
	if s.configDir != "" {
		descriptor.ServiceID = spec.ServiceID
		descriptor.ServiceType = spec.ServiceType
		if err := svcconfig.Write(s.configDir, descriptor); err != nil {
			return fmt.Errorf("supervisor: write descriptor for %s: %w", spec.ServiceID, err)
		}
	}

	env := map[string]string{"AIPERF_SERVICE_ID": spec.ServiceID}
	if s.configDir != "" {
		env["AIPERF_CONFIG_DIR"] = s.configDir
	}
	for k, v := range spec.Env {
		env[k] = v
	}
	spec.Env = env

	p, err := startProcess(spec, logPrefixWriter(s.log, spec.ServiceID, os.Stdout), logPrefixWriter(s.log, spec.ServiceID, os.Stderr))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.processes[spec.ServiceID] = p
	s.mu.Unlock()
	s.log.Info("supervisor: spawned service", "service_id", spec.ServiceID, "service_type", spec.ServiceType, "command", spec.Command)
	return nil
}

// logPrefixWriter wraps an io.Writer so each line a subprocess writes is
// tagged with its service id, the way a multiplexed process supervisor's
// console output conventionally reads.
func logPrefixWriter(log logr.Logger, serviceID string, fallback io.Writer) io.Writer {
	return &prefixWriter{serviceID: serviceID, out: fallback}
}

type prefixWriter struct {
	serviceID string
	out       io.Writer
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	_, err := fmt.Fprintf(w.out, "[%s] %s", w.serviceID, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// AwaitRegistrations blocks until every id in serviceIDs has published a
// RegisterService (spec §4.7 step 3), or timeout elapses.
func (s *Supervisor) AwaitRegistrations(ctx context.Context, serviceIDs []string, timeout time.Duration) error {
	pending := make(map[string]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		pending[id] = struct{}{}
	}

	var mu sync.Mutex
	done := make(chan struct{})
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		reg, ok := msg.(*messages.RegisterService)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, want := pending[reg.ServiceID]; !want {
			return
		}
		delete(pending, reg.ServiceID)
		if len(pending) == 0 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("supervisor: subscribe for registrations: %w", err)
	}
	defer unsub()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-timeoutCtx.Done():
		mu.Lock()
		defer mu.Unlock()
		missing := make([]string, 0, len(pending))
		for id := range pending {
			missing = append(missing, id)
		}
		return fmt.Errorf("supervisor: services failed to register before timeout: %v", missing)
	}
}

// Configure broadcasts profile on messages.TopicCommands and waits for a
// CommandResponse from every id in serviceIDs (spec §4.7 step 4).
func (s *Supervisor) Configure(ctx context.Context, profile *messages.ProfileConfigure, serviceIDs []string, timeout time.Duration) error {
	profile.RequestID = uuid.NewString()

	pending := make(map[string]struct{}, len(serviceIDs))
	for _, id := range serviceIDs {
		pending[id] = struct{}{}
	}

	var mu sync.Mutex
	done := make(chan struct{})
	var failures []string
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		resp, ok := msg.(*messages.CommandResponse)
		if !ok || resp.RequestID != profile.RequestID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, want := pending[resp.ServiceID]; !want {
			return
		}
		delete(pending, resp.ServiceID)
		if resp.Status == messages.CommandFailure {
			failures = append(failures, fmt.Sprintf("%s: %s", resp.ServiceID, resp.Detail))
		}
		if len(pending) == 0 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("supervisor: subscribe for configure acks: %w", err)
	}
	defer unsub()

	if err := s.transport.Publish(ctx, messages.TopicCommands, profile); err != nil {
		return fmt.Errorf("supervisor: publish ProfileConfigure: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		mu.Lock()
		defer mu.Unlock()
		if len(failures) > 0 {
			return fmt.Errorf("supervisor: services rejected configuration: %v", failures)
		}
		return nil
	case <-timeoutCtx.Done():
		mu.Lock()
		defer mu.Unlock()
		missing := make([]string, 0, len(pending))
		for id := range pending {
			missing = append(missing, id)
		}
		return fmt.Errorf("supervisor: services did not ack configuration before timeout: %v", missing)
	}
}

// Start broadcasts ProfileStart (spec §4.7 step 5).
func (s *Supervisor) Start(ctx context.Context, serviceID string) error {
	return s.transport.Publish(ctx, messages.TopicCommands, &messages.ProfileStart{
		Envelope: messages.Envelope{MessageType: messages.TypeProfileStart, ServiceID: serviceID},
	})
}

// Cancel broadcasts ProfileCancel (spec §4.7 cancellation, SIGINT once).
func (s *Supervisor) Cancel(ctx context.Context, serviceID string) error {
	return s.transport.Publish(ctx, messages.TopicCommands, &messages.ProfileCancel{
		Envelope: messages.Envelope{MessageType: messages.TypeProfileCancel, ServiceID: serviceID},
	})
}

// AwaitResult blocks until the records manager publishes ProcessRecordsResult
// (spec §4.7 step 7) or ctx is cancelled.
func (s *Supervisor) AwaitResult(ctx context.Context) (*model.ProcessRecordsResult, error) {
	resultCh := make(chan *model.ProcessRecordsResult, 1)
	unsub, err := s.transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		if prr, ok := msg.(*messages.ProcessRecordsResult); ok {
			select {
			case resultCh <- &prr.Result:
			default:
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: subscribe for process records result: %w", err)
	}
	defer unsub()

	select {
	case result := <-resultCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown broadcasts Shutdown (spec §4.7 step 8) and stops every spawned
// subprocess, sending SIGTERM and escalating to SIGKILL after grace.
// Errors from individual subprocess exits are logged, not returned — a
// service that exits non-zero after being asked to stop shouldn't fail the
// whole teardown.
func (s *Supervisor) Shutdown(ctx context.Context, grace time.Duration) {
	_ = s.transport.Publish(ctx, messages.TopicCommands, &messages.Shutdown{
		Envelope: messages.Envelope{MessageType: messages.TypeShutdown},
	})

	s.mu.Lock()
	procs := make(map[string]*process, len(s.processes))
	for id, p := range s.processes {
		procs[id] = p
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for id, p := range procs {
		wg.Add(1)
		go func(id string, p *process) {
			defer wg.Done()
			if err := p.stop(grace); err != nil {
				s.log.Info("supervisor: service exited", "service_id", id, "error", err.Error())
			}
		}(id, p)
	}
	wg.Wait()

	if s.configDir != "" {
		for id := range procs {
			_ = svcconfig.Remove(s.configDir, id)
		}
	}
}

// KillAll terminates every spawned subprocess immediately, without
// broadcasting Shutdown or waiting for a graceful exit — the SIGINT-twice
// "stop now" path.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	procs := make([]*process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *process) {
			defer wg.Done()
			p.kill()
		}(p)
	}
	wg.Wait()
}
