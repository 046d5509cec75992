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

// Command controller is the system controller (spec §4.7): it spawns the
// worker, records-manager, dataset-manager, and timing-manager
// subprocesses, drives them through the registration/configure/start
// handshake, waits for the final result, and tears everything down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/model"
	"github.com/ai-dynamo/aiperf/internal/obs/logging"
	"github.com/ai-dynamo/aiperf/internal/supervisor"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
)

func main() {
	log, syncLog, err := logging.NewLogger(os.Getenv("AIPERF_LOG_SIDECAR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: init logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLog()

	cfg := loadConfig()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	transport := bus.NewRedis(redisClient, bus.RedisOptions{})
	defer func() { _ = transport.Close() }()

	sup := supervisor.New(transport, cfg.ConfigDir, log)

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go watchSignals(ctx, cancelRun, sigCh, sup, cfg, log)

	result, err := run(ctx, transport, sup, cfg, log)
	sup.Shutdown(context.Background(), cfg.ShutdownGrace)

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printSummary(result)
}

// watchSignals implements spec §4.7's cancellation semantics: the first
// SIGINT/SIGTERM broadcasts ProfileCancel and gives the run a grace period
// to stop cleanly; a second signal during that window (or any second
// signal at all) kills every subprocess immediately.
func watchSignals(ctx context.Context, cancelRun context.CancelFunc, sigCh <-chan os.Signal, sup *supervisor.Supervisor, cfg Config, log logr.Logger) {
	sig, ok := <-sigCh
	if !ok {
		return
	}
	log.Info("controller: received signal, requesting graceful stop", "signal", sig.String())
	_ = sup.Cancel(ctx, "")

	timer := time.NewTimer(cfg.CancelGrace)
	defer timer.Stop()
	select {
	case sig2 := <-sigCh:
		log.Info("controller: received second signal, killing immediately", "signal", sig2.String())
		sup.KillAll()
		cancelRun()
		return
	case <-timer.C:
	}
	cancelRun()
	if sig2, ok := <-sigCh; ok {
		log.Info("controller: received second signal, killing immediately", "signal", sig2.String())
		sup.KillAll()
	}
}

func printSummary(result *model.ProcessRecordsResult) {
	if result == nil {
		return
	}
	fmt.Printf("benchmark complete: %d metrics, %d error types, cancelled=%v\n",
		len(result.Metrics), len(result.ErrorCounts), result.WasCancelled)
}

// Config is the controller's own process configuration: what to spawn and
// how to configure it. Unlike the services it spawns, the controller has
// no svcconfig descriptor of its own — it is the one process every other
// service's descriptor traces back to.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConfigDir string
	BinDir    string

	WorkerCount  int
	EndpointURL  string
	EndpointType string
	Streaming    bool

	// SLOThresholds configures goodput (spec §4.4, §8): a record only
	// counts toward GoodRequestCount if every configured metric's value
	// satisfies its threshold.
	SLOThresholds []messages.SLOThreshold

	DatasetPath string

	ExportPath      string
	ExportBatchSize int

	DurationBounded bool
	Duration        time.Duration
	GracePeriod     time.Duration

	TimingMode      string
	RateHz          float64
	Concurrency     int
	WarmupCount     int
	ProfileCount    int
	ProfileDuration time.Duration
	Speedup         float64

	RegistrationTimeout time.Duration
	ConfigureTimeout    time.Duration
	ShutdownGrace       time.Duration
	CancelGrace         time.Duration
}

func loadConfig() Config {
	return Config{
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             0,
		ConfigDir:           os.Getenv("AIPERF_CONFIG_DIR"),
		BinDir:              os.Getenv("AIPERF_BIN_DIR"),
		WorkerCount:         getIntEnv("AIPERF_WORKER_COUNT", 1),
		EndpointURL:         getEnvOrDefault("AIPERF_ENDPOINT_URL", "http://localhost:8000/v1/chat/completions"),
		EndpointType:        getEnvOrDefault("AIPERF_ENDPOINT_TYPE", "chat"),
		Streaming:           getBoolEnv("AIPERF_STREAMING", false),
		DatasetPath:         os.Getenv("AIPERF_DATASET_PATH"),
		ExportPath:          os.Getenv("AIPERF_EXPORT_PATH"),
		ExportBatchSize:     getIntEnv("AIPERF_EXPORT_BATCH_SIZE", 50),
		DurationBounded:     getBoolEnv("AIPERF_DURATION_BOUNDED", false),
		Duration:            getDurationEnv("AIPERF_DURATION", 0),
		GracePeriod:         getDurationEnv("AIPERF_GRACE_PERIOD", time.Second),
		TimingMode:          getEnvOrDefault("AIPERF_TIMING_MODE", "request_rate"),
		RateHz:              getFloatEnv("AIPERF_RATE_HZ", 10),
		Concurrency:         getIntEnv("AIPERF_CONCURRENCY", 10),
		WarmupCount:         getIntEnv("AIPERF_WARMUP_COUNT", 0),
		ProfileCount:        getIntEnv("AIPERF_PROFILE_COUNT", 0),
		ProfileDuration:     getDurationEnv("AIPERF_PROFILE_DURATION", 30*time.Second),
		Speedup:             getFloatEnv("AIPERF_SPEEDUP", 1.0),
		SLOThresholds:       parseSLOThresholds(os.Getenv("AIPERF_SLO_THRESHOLDS")),
		RegistrationTimeout: getDurationEnv("AIPERF_REGISTRATION_TIMEOUT", 30*time.Second),
		ConfigureTimeout:    getDurationEnv("AIPERF_CONFIGURE_TIMEOUT", 10*time.Second),
		ShutdownGrace:       getDurationEnv("AIPERF_SHUTDOWN_GRACE", 5*time.Second),
		CancelGrace:         getDurationEnv("AIPERF_CANCEL_GRACE", 5*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// parseSLOThresholds parses "tag:limit,tag:limit" (e.g.
// "time_to_first_token:100,request_latency:500") into the threshold set
// ProfileConfigure carries to workers (spec §4.4, §8). Malformed entries
// are skipped rather than failing startup over one bad threshold.
func parseSLOThresholds(raw string) []messages.SLOThreshold {
	if raw == "" {
		return nil
	}
	var thresholds []messages.SLOThreshold
	for _, pair := range strings.Split(raw, ",") {
		tag, limitStr, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		limit, err := strconv.ParseFloat(strings.TrimSpace(limitStr), 64)
		if err != nil {
			continue
		}
		thresholds = append(thresholds, messages.SLOThreshold{MetricTag: strings.TrimSpace(tag), Limit: limit})
	}
	return thresholds
}

func binPath(cfg Config, name string) string {
	if cfg.BinDir == "" {
		return name
	}
	return strings.TrimRight(cfg.BinDir, "/") + "/" + name
}

// run executes spec §4.7's steps 2-7: spawn, await registration, configure,
// start, and await the final result.
func run(ctx context.Context, transport bus.Transport, sup *supervisor.Supervisor, cfg Config, log logr.Logger) (*model.ProcessRecordsResult, error) {
	var serviceIDs []string

	recordsID := "records-manager-" + uuid.NewString()[:8]
	serviceIDs = append(serviceIDs, recordsID)
	if err := sup.Spawn(supervisor.ProcessSpec{
		ServiceID:   recordsID,
		ServiceType: "records_manager",
		Command:     binPath(cfg, "recordsmanager"),
	}, svcconfig.Descriptor{
		RedisAddr: cfg.RedisAddr, RedisPassword: cfg.RedisPassword, RedisDB: cfg.RedisDB,
		Extra: mustJSON(map[string]any{
			"duration_bounded":     cfg.DurationBounded,
			"duration_seconds":     int(cfg.Duration.Seconds()),
			"grace_period_seconds": int(cfg.GracePeriod.Seconds()),
			"export_path":          cfg.ExportPath,
			"export_batch_size":    cfg.ExportBatchSize,
		}),
	}); err != nil {
		return nil, fmt.Errorf("controller: spawn records manager: %w", err)
	}

	if cfg.ExportPath != "" {
		log.Info("controller: record export enabled", "path", cfg.ExportPath)
	}

	if cfg.DatasetPath != "" {
		datasetID := "dataset-manager-" + uuid.NewString()[:8]
		serviceIDs = append(serviceIDs, datasetID)
		if err := sup.Spawn(supervisor.ProcessSpec{
			ServiceID:   datasetID,
			ServiceType: "dataset_manager",
			Command:     binPath(cfg, "datasetmanager"),
		}, svcconfig.Descriptor{
			RedisAddr: cfg.RedisAddr, RedisPassword: cfg.RedisPassword, RedisDB: cfg.RedisDB,
			Extra: mustJSON(map[string]any{"dataset_path": cfg.DatasetPath}),
		}); err != nil {
			return nil, fmt.Errorf("controller: spawn dataset manager: %w", err)
		}
	}

	timingID := "timing-manager-" + uuid.NewString()[:8]
	serviceIDs = append(serviceIDs, timingID)
	if err := sup.Spawn(supervisor.ProcessSpec{
		ServiceID:   timingID,
		ServiceType: "timing_manager",
		Command:     binPath(cfg, "timingmanager"),
	}, svcconfig.Descriptor{
		RedisAddr: cfg.RedisAddr, RedisPassword: cfg.RedisPassword, RedisDB: cfg.RedisDB,
		Extra: mustJSON(map[string]any{
			"mode":                     cfg.TimingMode,
			"rate_hz":                  cfg.RateHz,
			"concurrency":              cfg.Concurrency,
			"warmup_count":             cfg.WarmupCount,
			"profile_count":            cfg.ProfileCount,
			"profile_duration_seconds": int(cfg.ProfileDuration.Seconds()),
			"dataset_path":             cfg.DatasetPath,
			"speedup":                  cfg.Speedup,
		}),
	}); err != nil {
		return nil, fmt.Errorf("controller: spawn timing manager: %w", err)
	}

	var workerIDs []string
	for i := 0; i < cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		workerIDs = append(workerIDs, workerID)
		serviceIDs = append(serviceIDs, workerID)
		if err := sup.Spawn(supervisor.ProcessSpec{
			ServiceID:   workerID,
			ServiceType: "worker",
			Command:     binPath(cfg, "worker"),
		}, svcconfig.Descriptor{
			RedisAddr: cfg.RedisAddr, RedisPassword: cfg.RedisPassword, RedisDB: cfg.RedisDB,
		}); err != nil {
			return nil, fmt.Errorf("controller: spawn worker %d: %w", i, err)
		}
	}

	log.Info("controller: waiting for service registration", "services", serviceIDs)
	if err := sup.AwaitRegistrations(ctx, serviceIDs, cfg.RegistrationTimeout); err != nil {
		return nil, fmt.Errorf("controller: await registrations: %w", err)
	}

	profile := &messages.ProfileConfigure{
		Envelope:      messages.Envelope{MessageType: messages.TypeProfileConfigure},
		EndpointType:  cfg.EndpointType,
		EndpointURL:   cfg.EndpointURL,
		Streaming:     cfg.Streaming,
		SLOThresholds: cfg.SLOThresholds,
	}
	log.Info("controller: broadcasting configuration", "endpoint_url", cfg.EndpointURL, "workers", len(workerIDs))
	if err := sup.Configure(ctx, profile, workerIDs, cfg.ConfigureTimeout); err != nil {
		return nil, fmt.Errorf("controller: configure workers: %w", err)
	}

	log.Info("controller: starting profile run")
	if err := sup.Start(ctx, ""); err != nil {
		return nil, fmt.Errorf("controller: publish ProfileStart: %w", err)
	}

	result, err := sup.AwaitResult(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// A SIGINT/SIGTERM already broadcast ProfileCancel and gave the
			// run its grace period (watchSignals); the records manager may
			// not have finished publishing ProcessRecordsResult in time.
			// That's an expected shutdown, not a controller failure.
			log.Info("controller: run cancelled before result arrived")
			return &model.ProcessRecordsResult{WasCancelled: true}, nil
		}
		return nil, fmt.Errorf("controller: await process records result: %w", err)
	}
	log.Info("controller: run complete", "metrics", len(result.Metrics), "errors", len(result.ErrorCounts))
	return result, nil
}

func mustJSON(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("controller: marshal descriptor extra: %v", err))
	}
	return data
}
