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
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ai-dynamo/aiperf/internal/bus"
	"github.com/ai-dynamo/aiperf/internal/dataset"
	"github.com/ai-dynamo/aiperf/internal/httpclient"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/metrics"
	"github.com/ai-dynamo/aiperf/internal/obs/logging"
	"github.com/ai-dynamo/aiperf/internal/svcconfig"
	"github.com/ai-dynamo/aiperf/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Config holds a worker process's configuration from environment
// variables. The endpoint/dataset shape it drives arrives later, over the
// bus, as a ProfileConfigure broadcast (spec §4.7 step 4).
type Config struct {
	ServiceID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CreditVisibility time.Duration
	DatasetTimeout   time.Duration
	ConfigureTimeout time.Duration
}

// workerExtra is the worker-specific portion of a svcconfig.Descriptor's
// Extra field, the on-disk equivalent of this file's AIPERF_* env vars
// (spec §4.7 step 2: "each service reads its file on boot").
type workerExtra struct {
	CreditVisibilitySeconds int `json:"credit_visibility_seconds,omitempty"`
	DatasetTimeoutSeconds   int `json:"dataset_timeout_seconds,omitempty"`
	ConfigureTimeoutSeconds int `json:"configure_timeout_seconds,omitempty"`
}

// loadConfig builds a Config from environment variables, then — if
// AIPERF_CONFIG_DIR is set — overlays the on-disk descriptor the
// controller wrote for this service id, letting either boot path run the
// same binary.
func loadConfig() (Config, error) {
	cfg := Config{
		ServiceID:        getEnvOrDefault("AIPERF_SERVICE_ID", uuid.NewString()),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          0,
		CreditVisibility: getDurationEnv("AIPERF_CREDIT_VISIBILITY", 30*time.Second),
		DatasetTimeout:   getDurationEnv("AIPERF_DATASET_TIMEOUT", 5*time.Second),
		ConfigureTimeout: getDurationEnv("AIPERF_CONFIGURE_TIMEOUT", 0),
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
		var extra workerExtra
		if err := json.Unmarshal(d.Extra, &extra); err != nil {
			return Config{}, fmt.Errorf("parse service descriptor extra: %w", err)
		}
		if extra.CreditVisibilitySeconds > 0 {
			cfg.CreditVisibility = time.Duration(extra.CreditVisibilitySeconds) * time.Second
		}
		if extra.DatasetTimeoutSeconds > 0 {
			cfg.DatasetTimeout = time.Duration(extra.DatasetTimeoutSeconds) * time.Second
		}
		if extra.ConfigureTimeoutSeconds > 0 {
			cfg.ConfigureTimeout = time.Duration(extra.ConfigureTimeoutSeconds) * time.Second
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

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("worker: load config: %w", err)
	}

	log, syncLog, err := logging.NewLogger(os.Getenv("AIPERF_LOG_SIDECAR"))
	if err != nil {
		return fmt.Errorf("worker: init logger: %w", err)
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

	log.Info("worker: connected to bus", "redis_addr", cfg.RedisAddr, "service_id", cfg.ServiceID)

	profile, err := awaitProfileConfigure(ctx, transport, cfg)
	if err != nil {
		return fmt.Errorf("worker: await ProfileConfigure: %w", err)
	}

	store := dataset.NewStore(transport, messages.QueueDataset, cfg.DatasetTimeout)
	httpClient := httpclient.New(httpclient.DefaultOptions(), nowPerfNs)
	thresholds := make([]metrics.SLOThreshold, len(profile.SLOThresholds))
	for i, t := range profile.SLOThresholds {
		thresholds[i] = metrics.SLOThreshold{Tag: t.MetricTag, Limit: t.Limit}
	}
	registry, err := metrics.Default(thresholds...)
	if err != nil {
		return fmt.Errorf("worker: build metrics registry: %w", err)
	}

	w, err := worker.New(transport, store, httpClient, registry, worker.Config{
		EndpointType:     profile.EndpointType,
		EndpointURL:      profile.EndpointURL,
		Streaming:        profile.Streaming,
		ExtraHeaders:     profile.ExtraHeaders,
		ExtraPayload:     profile.ExtraPayload,
		CreditVisibility: cfg.CreditVisibility,
	}, nowPerfNs, log)
	if err != nil {
		return fmt.Errorf("worker: build worker: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	unsub, err := transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		switch msg.(type) {
		case *messages.ProfileCancel, *messages.Shutdown:
			log.Info("worker: received stop command", "type", msg.Envelope().MessageType)
			runCancel()
		}
	})
	if err != nil {
		return fmt.Errorf("worker: subscribe to commands: %w", err)
	}
	defer unsub()

	log.Info("worker: profile configured, running", "endpoint_type", profile.EndpointType, "endpoint_url", profile.EndpointURL)
	return w.Run(runCtx)
}

// awaitProfileConfigure announces this worker via RegisterService and
// blocks until the controller broadcasts ProfileConfigure (spec §4.7 steps
// 3-4), acknowledging it with a CommandResponse once received.
func awaitProfileConfigure(ctx context.Context, transport bus.Transport, cfg Config) (*messages.ProfileConfigure, error) {
	configureCtx := ctx
	var cancel context.CancelFunc
	if cfg.ConfigureTimeout > 0 {
		configureCtx, cancel = context.WithTimeout(ctx, cfg.ConfigureTimeout)
		defer cancel()
	}

	received := make(chan *messages.ProfileConfigure, 1)
	unsub, err := transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		if profile, ok := msg.(*messages.ProfileConfigure); ok {
			select {
			case received <- profile:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}
	defer unsub()

	if err := transport.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
		Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: cfg.ServiceID},
		ServiceType: "worker",
	}); err != nil {
		return nil, fmt.Errorf("publish RegisterService: %w", err)
	}

	select {
	case profile := <-received:
		_ = transport.Publish(ctx, messages.TopicCommands, &messages.CommandResponse{
			Envelope: messages.Envelope{
				MessageType: messages.TypeCommandResponse,
				ServiceID:   cfg.ServiceID,
				RequestID:   profile.RequestID,
			},
			Status: messages.CommandAcknowledged,
		})
		return profile, nil
	case <-configureCtx.Done():
		return nil, configureCtx.Err()
	}
}

func nowPerfNs() int64 {
	return time.Now().UnixNano()
}
