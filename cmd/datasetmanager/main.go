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
	"github.com/ai-dynamo/aiperf/internal/datasetmanager"
	"github.com/ai-dynamo/aiperf/internal/messages"
	"github.com/ai-dynamo/aiperf/internal/obs/logging"
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

// Config holds a dataset-manager process's configuration. Like the records
// manager, the dataset path is fixed at process start rather than learned
// from ProfileConfigure (spec §4.7 step 2).
type Config struct {
	ServiceID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatasetPath string
	Seed        int64
}

type datasetExtra struct {
	DatasetPath string `json:"dataset_path,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
}

func loadConfig() (Config, error) {
	cfg := Config{
		ServiceID:     getEnvOrDefault("AIPERF_SERVICE_ID", uuid.NewString()),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       0,
		DatasetPath:   os.Getenv("AIPERF_DATASET_PATH"),
		Seed:          time.Now().UnixNano(),
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
		var extra datasetExtra
		if err := json.Unmarshal(d.Extra, &extra); err != nil {
			return Config{}, fmt.Errorf("parse service descriptor extra: %w", err)
		}
		if extra.DatasetPath != "" {
			cfg.DatasetPath = extra.DatasetPath
		}
		if extra.Seed != 0 {
			cfg.Seed = extra.Seed
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

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("datasetmanager: load config: %w", err)
	}
	if cfg.DatasetPath == "" {
		return fmt.Errorf("datasetmanager: AIPERF_DATASET_PATH (or descriptor dataset_path) is required")
	}

	log, syncLog, err := logging.NewLogger(os.Getenv("AIPERF_LOG_SIDECAR"))
	if err != nil {
		return fmt.Errorf("datasetmanager: init logger: %w", err)
	}
	defer syncLog()

	conversations, err := datasetmanager.LoadConversations(cfg.DatasetPath)
	if err != nil {
		return fmt.Errorf("datasetmanager: load dataset: %w", err)
	}
	log.Info("datasetmanager: loaded dataset", "path", cfg.DatasetPath, "conversations", len(conversations))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	transport := bus.NewRedis(redisClient, bus.RedisOptions{})
	defer func() { _ = transport.Close() }()

	log.Info("datasetmanager: connected to bus", "redis_addr", cfg.RedisAddr, "service_id", cfg.ServiceID)

	if err := transport.Publish(ctx, messages.TopicCommands, &messages.RegisterService{
		Envelope:    messages.Envelope{MessageType: messages.TypeRegisterService, ServiceID: cfg.ServiceID},
		ServiceType: "dataset_manager",
	}); err != nil {
		return fmt.Errorf("datasetmanager: publish RegisterService: %w", err)
	}

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	unsub, err := transport.Subscribe(ctx, messages.TopicCommands, func(msg messages.Message) {
		switch msg.(type) {
		case *messages.Shutdown:
			log.Info("datasetmanager: received shutdown command")
			stop()
		}
	})
	if err != nil {
		return fmt.Errorf("datasetmanager: subscribe to commands: %w", err)
	}
	defer unsub()

	svc := datasetmanager.NewService(transport, conversations, cfg.Seed, log)
	log.Info("datasetmanager: running")
	return svc.Run(stopCtx)
}
