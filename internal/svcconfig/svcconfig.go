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

// Package svcconfig reads and writes the per-service JSON descriptor files
// the system controller drops to disk before spawning each subprocess
// (spec §4.7 step 2: "serialized configs on disk, JSON files keyed by
// service id; each service reads its file on boot").
package svcconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Descriptor is one service's boot-time configuration, serialized verbatim
// to disk by the controller and read back by the service process. Fields
// mirror what cmd/worker and cmd/recordsmanager otherwise source from
// environment variables, letting either path populate the same Config.
type Descriptor struct {
	ServiceID   string `json:"service_id"`
	ServiceType string `json:"service_type"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db"`

	// Extra carries service-type-specific settings (the records manager's
	// admission window, the worker's credit visibility, etc.) as a raw
	// JSON object so this package stays agnostic of any one service's
	// shape; callers unmarshal Extra into their own struct.
	Extra json.RawMessage `json:"extra,omitempty"`
}

// Path returns the descriptor file path the controller and the service
// agree on for serviceID under dir.
func Path(dir, serviceID string) string {
	return filepath.Join(dir, serviceID+".json")
}

// Write serializes d to Path(dir, d.ServiceID), writing through a temp
// file in the same directory and renaming into place so a service polling
// for its descriptor never observes a partially written file.
func Write(dir string, d Descriptor) error {
	data, err := json.MarshalIndent(&d, "", "  ")
	if err != nil {
		return fmt.Errorf("svcconfig: marshal descriptor for %s: %w", d.ServiceID, err)
	}

	tmp, err := os.CreateTemp(dir, d.ServiceID+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("svcconfig: create temp descriptor file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("svcconfig: write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("svcconfig: close descriptor temp file: %w", err)
	}

	if err := os.Rename(tmpPath, Path(dir, d.ServiceID)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("svcconfig: rename descriptor into place: %w", err)
	}
	return nil
}

// Read loads and parses the descriptor for serviceID from dir.
func Read(dir, serviceID string) (Descriptor, error) {
	data, err := os.ReadFile(Path(dir, serviceID))
	if err != nil {
		return Descriptor{}, fmt.Errorf("svcconfig: read descriptor for %s: %w", serviceID, err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("svcconfig: parse descriptor for %s: %w", serviceID, err)
	}
	return d, nil
}

// Remove deletes the descriptor file for serviceID, ignoring a
// not-found error (the controller's own cleanup may race a service that
// already removed its file).
func Remove(dir, serviceID string) error {
	if err := os.Remove(Path(dir, serviceID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("svcconfig: remove descriptor for %s: %w", serviceID, err)
	}
	return nil
}
