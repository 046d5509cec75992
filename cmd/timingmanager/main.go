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
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/obs/logging"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
	"github.com/ai-dynamo/aiperf/internal/timing"
	"github.com/ai-dynamo/aiperf/internal/timingmanager"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Config holds the timing manager's pacing configuration. Like the
// records and dataset managers, this is fixed at process start rather
// than learned from ProfileConfigure (spec §4.7 step 2) since it governs
// the controller-chosen benchmark mode, not the worker-facing endpoint
// shape.
type Config struct {
	ServiceID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Mode            timingmanager.Mode
	RateHz          float64
	Poisson         bool
	Concurrency     int
	WarmupCount     int
	WarmupDuration  time.Duration
	ProfileCount    int
	ProfileDuration time.Duration
	Seed            int64

	// DatasetPath and Speedup configure Mode=fixed_schedule (spec §4.2),
	// which loads the dataset file directly rather than looking up turns
	// one at a time via the dataset manager.
	DatasetPath string
	Speedup     float64
}

type timingExtra struct {
	Mode                   string  `json:"mode,omitempty"`
	RateHz                 float64 `json:"rate_hz,omitempty"`
	Poisson                bool    `json:"poisson,omitempty"`
	Concurrency            int     `json:"concurrency,omitempty"`
	WarmupCount            int     `json:"warmup_count,omitempty"`
	WarmupDurationSeconds  int     `json:"warmup_duration_seconds,omitempty"`
	ProfileCount           int     `json:"profile_count,omitempty"`
	ProfileDurationSeconds int     `json:"profile_duration_seconds,omitempty"`
	Seed                   int64   `json:"seed,omitempty"`
	DatasetPath            string  `json:"dataset_path,omitempty"`
	Speedup                float64 `json:"speedup,omitempty"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		ServiceID:       getEnvOrDefault("AIPERF_SERVICE_ID", uuid.NewString()),
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         0,
		Mode:            timingmanager.Mode(getEnvOrDefault("AIPERF_TIMING_MODE", string(timingmanager.ModeRequestRate))),
		RateHz:          getFloatEnv("AIPERF_RATE_HZ", 10),
		Poisson:         getBoolEnv("AIPERF_POISSON", false),
		Concurrency:     getIntEnv("AIPERF_CONCURRENCY", 10),
		WarmupCount:     getIntEnv("AIPERF_WARMUP_COUNT", 0),
		WarmupDuration:  getDurationEnv("AIPERF_WARMUP_DURATION", 0),
		ProfileCount:    getIntEnv("AIPERF_PROFILE_COUNT", 0),
		ProfileDuration: getDurationEnv("AIPERF_PROFILE_DURATION", 30*time.Second),
		Seed:            time.Now().UnixNano(),
		DatasetPath:     os.Getenv("AIPERF_DATASET_PATH"),
		Speedup:         getFloatEnv("AIPERF_SPEEDUP", 1.0),
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
		var extra timingExtra
		if err := json.Unmarshal(d.Extra, &extra); err != nil {
			return Config{}, fmt.Errorf("parse service descriptor extra: %w", err)
		}
		if extra.Mode != "" {
			cfg.Mode = timingmanager.Mode(extra.Mode)
		}
		if extra.RateHz > 0 {
			cfg.RateHz = extra.RateHz
		}
		cfg.Poisson = extra.Poisson
		if extra.Concurrency > 0 {
			cfg.Concurrency = extra.Concurrency
		}
		if extra.WarmupCount > 0 {
			cfg.WarmupCount = extra.WarmupCount
		}
		if extra.WarmupDurationSeconds > 0 {
			cfg.WarmupDuration = time.Duration(extra.WarmupDurationSeconds) * time.Second
		}
		if extra.ProfileCount > 0 {
			cfg.ProfileCount = extra.ProfileCount
		}
		if extra.ProfileDurationSeconds > 0 {
			cfg.ProfileDuration = time.Duration(extra.ProfileDurationSeconds) * time.Second
		}
		if extra.Seed != 0 {
			cfg.Seed = extra.Seed
		}
		if extra.DatasetPath != "" {
			cfg.DatasetPath = extra.DatasetPath
		}
		if extra.Speedup > 0 {
			cfg.Speedup = extra.Speedup
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

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("timingmanager: load config: %w", err)
	}

	log, syncLog, err := logging.NewLogger(os.Getenv("AIPERF_LOG_SIDECAR"))
	if err != nil {
		return fmt.Errorf("timingmanager: init logger: %w", err)
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

	log.Info("timingmanager: connected to bus", "redis_addr", cfg.RedisAddr, "service_id", cfg.ServiceID)

	if err := transport.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
		Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: cfg.ServiceID},
		ServiceType: "timing_manager",
	}); err != nil {
		return fmt.Errorf("timingmanager: publish RegisterService: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	unsub, err := transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		switch msg.(type) {
		case *messages.ProfileCancel, *messages.Shutdown:
			log.Info("timingmanager: received stop command", "type", msg.Envelope().MessageType)
			runCancel()
		}
	})
	if err != nil {
		return fmt.Errorf("timingmanager: subscribe to commands: %w", err)
	}
	defer unsub()

	distribution := timing.DistributionConstant
	if cfg.Poisson {
		distribution = timing.DistributionPoisson
	}

	svc := timingmanager.NewService(transport, timingmanager.Config{
		Mode:         cfg.Mode,
		RateHz:       cfg.RateHz,
		Distribution: distribution,
		Concurrency:  cfg.Concurrency,
		Warmup:       timingmanager.PhaseSpec{Count: cfg.WarmupCount, Duration: cfg.WarmupDuration},
		Profiling:    timingmanager.PhaseSpec{Count: cfg.ProfileCount, Duration: cfg.ProfileDuration},
		Seed:         cfg.Seed,
		DatasetPath:  cfg.DatasetPath,
		Speedup:      cfg.Speedup,
	}, log, nowPerfNs)

	log.Info("timingmanager: running", "mode", cfg.Mode, "rate_hz", cfg.RateHz, "concurrency", cfg.Concurrency)
	if err := svc.Run(runCtx); err != nil {
		if runCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("timingmanager: run: %w", err)
	}
	return nil
}

func nowPerfNs() int64 {
	return time.Now().UnixNano()
}
