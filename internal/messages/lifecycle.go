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

package messages

// RegisterService is sent once by a service on start, announcing it is
// ready to receive ProfileConfigure (spec §4.7 step 3).
type RegisterService struct {
	Envelope
	ServiceType string `json:"service_type"`
}

func init() {
	register(TypeRegisterService, func() Message { return &RegisterService{Envelope: Envelope{MessageType: TypeRegisterService}} })
}

// SLOThreshold configures one metric's goodput boundary (spec §4.4, §8): a
// record only counts toward GoodRequestCount if every configured metric's
// value, in its display unit, satisfies Limit.
type SLOThreshold struct {
	MetricTag string  `json:"metric_tag"`
	Limit     float64 `json:"limit"`
}

// ProfileConfigure carries the run's endpoint settings (type, URL,
// streaming, extra headers and payload), a telemetry flag and the goodput
// SLO thresholds to every service (spec §4.7 step 4); dataset and
// timing-strategy settings reach services through their descriptors
// instead. Workers ack with a CommandResponse.
type ProfileConfigure struct {
	Envelope
	EndpointType     string            `json:"endpoint_type"`
	EndpointURL      string            `json:"endpoint_url"`
	Streaming        bool              `json:"streaming"`
	ExtraHeaders     map[string]string `json:"extra_headers,omitempty"`
	ExtraPayload     map[string]any    `json:"extra_payload,omitempty"`
	TelemetryEnabled bool              `json:"telemetry_enabled"`
	SLOThresholds    []SLOThreshold    `json:"slo_thresholds,omitempty"`
}

func init() {
	register(TypeProfileConfigure, func() Message { return &ProfileConfigure{Envelope: Envelope{MessageType: TypeProfileConfigure}} })
}

// ProfileStart tells all services to begin the WARMUP phase (spec §4.7
// step 5).
type ProfileStart struct {
	Envelope
}

func init() {
	register(TypeProfileStart, func() Message { return &ProfileStart{Envelope: Envelope{MessageType: TypeProfileStart}} })
}

// ProfileCancel requests a graceful, immediate stop of credit emission and
// in-flight work (spec §4.7 cancellation).
type ProfileCancel struct {
	Envelope
}

func init() {
	register(TypeProfileCancel, func() Message { return &ProfileCancel{Envelope: Envelope{MessageType: TypeProfileCancel}} })
}

// Shutdown requests that a service stop and exit.
type Shutdown struct {
	Envelope
}

func init() {
	register(TypeShutdown, func() Message { return &Shutdown{Envelope: Envelope{MessageType: TypeShutdown}} })
}

// ShutdownWorkers asks the service manager to stop N worker subprocesses.
type ShutdownWorkers struct {
	Envelope
	Count int `json:"count"`
}

func init() {
	register(TypeShutdownWorkers, func() Message { return &ShutdownWorkers{Envelope: Envelope{MessageType: TypeShutdownWorkers}} })
}

// SpawnWorkers asks the service manager to start N additional worker
// subprocesses (spec §4.7 step 6, load-based scaling).
type SpawnWorkers struct {
	Envelope
	Count int `json:"count"`
}

func init() {
	register(TypeSpawnWorkers, func() Message { return &SpawnWorkers{Envelope: Envelope{MessageType: TypeSpawnWorkers}} })
}

// Heartbeat carries a liveness Sequence that starts from zero in each
// process, so a restart shows as the sequence going back to zero. The type
// is registered with the message factory, but no service in this module
// publishes or consumes it.
type Heartbeat struct {
	Envelope
	Sequence uint64 `json:"sequence"`
}

func init() {
	register(TypeHeartbeat, func() Message { return &Heartbeat{Envelope: Envelope{MessageType: TypeHeartbeat}} })
}

// ServiceState is the coarse lifecycle state reported in a Status message.
type ServiceState string

const (
	StateStarting  ServiceState = "STARTING"
	StateReady     ServiceState = "READY"
	StateRunning   ServiceState = "RUNNING"
	StateStopping  ServiceState = "STOPPING"
	StateStopped   ServiceState = "STOPPED"
	StateError     ServiceState = "ERROR"
)

// Status reports a service's current lifecycle state.
type Status struct {
	Envelope
	State   ServiceState `json:"state"`
	Message string       `json:"message,omitempty"`
}

func init() {
	register(TypeStatus, func() Message { return &Status{Envelope: Envelope{MessageType: TypeStatus}} })
}

// ServiceFailed escalates a lifecycle failure to the controller (spec §7).
type ServiceFailed struct {
	Envelope
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

func init() {
	register(TypeServiceFailed, func() Message { return &ServiceFailed{Envelope: Envelope{MessageType: TypeServiceFailed}} })
}

// CommandResponse acknowledges a command message, echoing its request id.
type CommandResponse struct {
	Envelope
	Status CommandStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
}

func init() {
	register(TypeCommandResponse, func() Message { return &CommandResponse{Envelope: Envelope{MessageType: TypeCommandResponse}} })
}
