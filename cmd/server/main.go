// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/relaycore/admission-engine/internal/adminapi"
	"github.com/relaycore/admission-engine/internal/admission"
	"github.com/relaycore/admission-engine/internal/connection"
	"github.com/relaycore/admission-engine/internal/ratelimit"
	"github.com/relaycore/admission-engine/internal/strategy"
	"github.com/relaycore/admission-engine/internal/transport/ws"
	"github.com/relaycore/admission-engine/internal/users"
	"github.com/relaycore/admission-engine/internal/webhook"
	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/etc/relay/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	cfg.WarnExtraSchedules(logger.With("component", "config"))

	settings := &atomic.Pointer[config.Settings]{}
	settings.Store(cfg)
	settingsFunc := settings.Load

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := config.NewWatcher(configPath, settings, logger.With("component", "config"))
	go watcher.Watch(ctx)

	db, err := users.NewDB(ctx, os.Getenv("POSTGRES_DSN"))
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := users.NewCache(users.CacheConfig{
		Type: users.CacheBackendType(envOr("USERS_CACHE_BACKEND", "memory")),
		Addr: os.Getenv("REDIS_ADDR"),
	})
	if err != nil {
		logger.Error("failed to construct negative cache", "error", err)
		os.Exit(1)
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		Type: ratelimit.BackendType(envOr("RATE_LIMIT_BACKEND", "memory")),
		Redis: ratelimit.RedisConfig{
			Addr: os.Getenv("REDIS_ADDR"),
		},
	})
	if err != nil {
		logger.Error("failed to construct rate limiter", "error", err)
		os.Exit(1)
	}

	apiToken := os.Getenv("VIDA_API_KEY")
	webhookClient := webhook.New(apiToken)
	pubkeyHook := webhook.NewPubkeyCollaborator(webhookClient, settingsFunc)
	eventHook := webhook.NewEventCollaborator(webhookClient, settingsFunc, logger.With("component", "webhook"))

	userRepo := users.NewRepository(db, cache, pubkeyHook, func() (*core.BigInt, bool) {
		sched, ok := settingsFunc().FirstTopUpSchedule()
		if !ok {
			return nil, false
		}
		return sched.Amount, true
	})

	strategies := strategy.NewRegistry()
	ringBuffer := strategy.NewRingBuffer(4096)
	strategies.RegisterRange(0, 65535, func(ev *core.Event, conn core.Connection) core.Strategy {
		return ringBuffer
	})

	admissionLogger := logger.With("component", "admission")
	pipeline := admission.New(settingsFunc, limiter, userRepo, eventHook, strategies, admissionLogger)
	connManager := connection.NewManager(pipeline, logger.With("component", "connection"))

	wsPort := envIntOr("RELAY_WS_PORT", 8080)
	wsEntrypoint := ws.New(wsPort, connManager, logger.With("component", "ws"))

	adminPort := envIntOr("RELAY_ADMIN_PORT", 8081)
	adminEntrypoint := adminapi.New(adminPort, os.Getenv("RELAY_API_KEY"), userRepo, logger.With("component", "adminapi"))

	go func() {
		if err := wsEntrypoint.Start(ctx); err != nil {
			logger.Error("ws entrypoint stopped", "error", err)
		}
	}()
	go func() {
		if err := adminEntrypoint.Start(ctx); err != nil {
			logger.Error("admin entrypoint stopped", "error", err)
		}
	}()

	logger.Info("relay started", "config", configPath, "ws_port", wsPort, "admin_port", adminPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down relay")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	connManager.CloseAll()
	wsEntrypoint.Stop(shutdownCtx)
	adminEntrypoint.Stop(shutdownCtx)

	logger.Info("relay stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
