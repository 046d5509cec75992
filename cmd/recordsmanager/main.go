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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/export"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/obs/logging"
	"github.com/ai-dynamo/aiperf/internal/records"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Config holds a records-manager process's configuration. Unlike the
// worker, which learns its endpoint shape from a ProfileConfigure
// broadcast, the admission window is fixed at process start by whichever
// timing strategy the controller selected (spec §4.7 step 2 precedes
// RegisterService for this service), so it is read at boot: from the
// AIPERF_* environment variables, overridden by the service descriptor's
// Extra fields when AIPERF_CONFIG_DIR is set.
type Config struct {
	ServiceID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DurationBounded bool
	Duration        time.Duration
	GracePeriod     time.Duration

	PullVisibility time.Duration
	DrainQuiet     time.Duration

	ExportPath      string
	ExportBatchSize int
}

// recordsExtra is the records-manager-specific portion of a
// svcconfig.Descriptor's Extra field, the on-disk equivalent of this
// file's AIPERF_* env vars (spec §4.7 step 2).
type recordsExtra struct {
	DurationBounded    bool   `json:"duration_bounded"`
	DurationSeconds    int    `json:"duration_seconds,omitempty"`
	GracePeriodSeconds int    `json:"grace_period_seconds,omitempty"`
	ExportPath         string `json:"export_path,omitempty"`
	ExportBatchSize    int    `json:"export_batch_size,omitempty"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		ServiceID:       getEnvOrDefault("AIPERF_SERVICE_ID", uuid.NewString()),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         0,
		DurationBounded: getBoolEnv("AIPERF_DURATION_BOUNDED", false),
		Duration:        getDurationEnv("AIPERF_DURATION", 0),
		GracePeriod:     getDurationEnv("AIPERF_GRACE_PERIOD", time.Second),
		PullVisibility:  getDurationEnv("AIPERF_PULL_VISIBILITY", 30*time.Second),
		DrainQuiet:      getDurationEnv("AIPERF_DRAIN_QUIET", 200*time.Millisecond),
		ExportPath:      os.Getenv("AIPERF_EXPORT_PATH"),
		ExportBatchSize: getIntEnv("AIPERF_EXPORT_BATCH_SIZE", 50),
	}

	dir := os.Getenv("AIPERF_CONFIG_DIR")
	if dir == "" {
		return cfg, nil
	}

	d, err := svcconfig.Read(dir, cfg.ServiceID)
	if err != nil {
		return Config{}, fmt.Errorf("read service descriptor: %w", err)
	}
	cfg.RedisAddr = d.RedisAddr
	cfg.RedisPassword = d.RedisPassword
	cfg.RedisDB = d.RedisDB

	if len(d.Extra) > 0 {
		var extra recordsExtra
		if err := json.Unmarshal(d.Extra, &extra); err != nil {
			return Config{}, fmt.Errorf("parse service descriptor extra: %w", err)
		}
		cfg.DurationBounded = extra.DurationBounded
		if extra.DurationSeconds > 0 {
			cfg.Duration = time.Duration(extra.DurationSeconds) * time.Second
		}
		if extra.GracePeriodSeconds > 0 {
			cfg.GracePeriod = time.Duration(extra.GracePeriodSeconds) * time.Second
		}
		if extra.ExportPath != "" {
			cfg.ExportPath = extra.ExportPath
		}
		if extra.ExportBatchSize > 0 {
			cfg.ExportBatchSize = extra.ExportBatchSize
		}
	}
	return cfg, nil
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

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("recordsmanager: load config: %w", err)
	}

	log, syncLog, err := logging.NewLogger(os.Getenv("AIPERF_LOG_SIDECAR"))
	if err != nil {
		return fmt.Errorf("recordsmanager: init logger: %w", err)
	}
	defer syncLog()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	transport := bus.NewRedis(redisClient, bus.RedisOptions{})
	defer func() { _ = transport.Close() }()

	log.Info("recordsmanager: connected to bus", "redis_addr", cfg.RedisAddr, "service_id", cfg.ServiceID)

	if err := announce(ctx, transport, cfg); err != nil {
		return fmt.Errorf("recordsmanager: announce: %w", err)
	}

	registry, err := metrics.Default()
	if err != nil {
		return fmt.Errorf("recordsmanager: build metrics registry: %w", err)
	}
	accumulator := metrics.NewAccumulator(registry)
	processors := []records.Processor{records.NewAggregateProcessor(accumulator)}

	if cfg.ExportPath != "" {
		writer, err := export.NewFileWriter(cfg.ExportPath, cfg.ExportBatchSize)
		if err != nil {
			return fmt.Errorf("recordsmanager: open export file: %w", err)
		}
		defer func() { _ = writer.Close() }()
		processors = append(processors, records.NewExportProcessor(writer, registry))
	}

	svc := records.NewService(transport, accumulator, processors, records.Config{
		Admission: records.AdmissionConfig{
			DurationBounded: cfg.DurationBounded,
			DurationNs:      cfg.Duration.Nanoseconds(),
			GracePeriodNs:   cfg.GracePeriod.Nanoseconds(),
			StartTimeNs:     time.Now().UnixNano(),
		},
		PullVisibility: cfg.PullVisibility,
		DrainQuiet:     cfg.DrainQuiet,
	}, log)

	log.Info("recordsmanager: running", "duration_bounded", cfg.DurationBounded, "duration", cfg.Duration)
	result, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("recordsmanager: run: %w", err)
	}
	log.Info("recordsmanager: finalized", "record_count", len(result.Metrics), "error_types", len(result.ErrorCounts))
	return nil
}

// announce publishes RegisterService so the controller knows this service
// is up, mirroring cmd/worker's handshake but without waiting for a
// ProfileConfigure reply — the records manager's configuration is fixed at
// process start, not learned over the bus (spec §4.7 step 3).
func announce(ctx context.Context, transport bus.Transport, cfg Config) error {
	return transport.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
		Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: cfg.ServiceID},
		ServiceType: "records_manager",
	})
}
