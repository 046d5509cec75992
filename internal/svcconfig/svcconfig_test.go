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

package svcconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerExtra struct {
	CreditVisibilitySeconds int `json:"credit_visibility_seconds"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	extra, err := json.Marshal(workerExtra{CreditVisibilitySeconds: 30})
	require.NoError(t, err)

	d := Descriptor{
		ServiceID:   "worker-1",
		ServiceType: "worker",
		RedisAddr:   "localhost:6379",
		RedisDB:     2,
		Extra:       extra,
	}
	require.NoError(t, Write(dir, d))

	got, err := Read(dir, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, d.ServiceID, got.ServiceID)
	assert.Equal(t, d.ServiceType, got.ServiceType)
	assert.Equal(t, d.RedisAddr, got.RedisAddr)
	assert.Equal(t, d.RedisDB, got.RedisDB)

	var gotExtra workerExtra
	require.NoError(t, json.Unmarshal(got.Extra, &gotExtra))
	assert.Equal(t, 30, gotExtra.CreditVisibilitySeconds)
}

func TestWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, Descriptor{ServiceID: "svc-a", ServiceType: "records_manager"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "svc-a.json", entries[0].Name())
}

func TestReadMissingDescriptorErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(dir, "does-not-exist")
	assert.Error(t, err)
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, Descriptor{ServiceID: "svc-b"}))
	require.FileExists(t, filepath.Join(dir, "svc-b.json"))

	require.NoError(t, Remove(dir, "svc-b"))
	assert.NoFileExists(t, filepath.Join(dir, "svc-b.json"))

	require.NoError(t, Remove(dir, "svc-b"))
}
