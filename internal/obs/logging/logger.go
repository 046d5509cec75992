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

// Package logging provides shared logger initialization for AIPerf services.
package logging

import (
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a logr.Logger backed by Zap.
//
// It checks the LOG_LEVEL environment variable: "debug" or "trace" selects a
// development config with debug-level output; any other value (including
// empty) selects production JSON config. When sidecarPath is non-empty, log
// lines are additionally teed to that file (the "aiperf.log" sidecar of
// spec §6) alongside stdout.
//
// Returns the logger and a sync function the caller should defer.
func NewLogger(sidecarPath string) (logr.Logger, func(), error) {
	zapLog, err := newZapLogger(os.Getenv("LOG_LEVEL"), sidecarPath)
	if err != nil {
		return logr.Logger{}, nil, err
	}
	sync := func() { _ = zapLog.Sync() }
	return zapr.NewLogger(zapLog), sync, nil
}

// NewZapLogger creates a *zap.Logger configured via the LOG_LEVEL env var,
// for callers that also need an *slog.Logger via SlogFromZap.
func NewZapLogger(sidecarPath string) (*zap.Logger, error) {
	return newZapLogger(os.Getenv("LOG_LEVEL"), sidecarPath)
}

// SlogFromZap creates an *slog.Logger that writes directly to the Zap core.
func SlogFromZap(z *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(z.Core(), zapslog.WithCaller(true)))
}

func newZapLogger(level, sidecarPath string) (*zap.Logger, error) {
	isDev := level == "debug" || level == "trace"

	var cfg zap.Config
	if isDev {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	if sidecarPath == "" {
		return cfg.Build()
	}

	// Tee structured output to the sidecar file in addition to the
	// configured output paths (stdout for subprocess JSON passthrough).
	enc := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	sidecar, err := os.OpenFile(sidecarPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	core := zapcore.NewTee(
		base.Core(),
		zapcore.NewCore(enc, zapcore.AddSync(sidecar), cfg.Level),
	)
	return zap.New(core, zap.AddCaller()), nil
}
