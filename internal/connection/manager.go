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

// Package connection tracks the relay's live WebSocket connections and
// runs each connection's admissions one at a time, adapted from the
// mediation engine's per-session goroutine manager but collapsed to this
// relay's single fixed protocol: there is no route table or endpoint
// lookup, only a registered connection and the admission pipeline it
// feeds events through.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/relaycore/admission-engine/internal/admission"
	"github.com/relaycore/admission-engine/pkg/core"
)

var errNotRegistered = errors.New("connection: not registered")

type active struct {
	conn   core.Connection
	cancel context.CancelFunc
	mu     sync.Mutex
}

// Manager tracks active connections and serializes the admissions
// submitted on each one: Submit blocks until the previous submission on
// the same connection has produced its acknowledgement, so a single slow
// admission never lets a connection's events race each other through the
// pipeline out of order.
type Manager struct {
	connections sync.Map
	pipeline    *admission.Pipeline
	logger      *slog.Logger
}

// NewManager constructs a Manager bound to pipeline.
func NewManager(pipeline *admission.Pipeline, logger *slog.Logger) *Manager {
	return &Manager{pipeline: pipeline, logger: logger}
}

// Register begins tracking conn and returns a context that is canceled
// when Unregister is called, for the caller's read loop to select on.
func (m *Manager) Register(ctx context.Context, conn core.Connection) context.Context {
	connCtx, cancel := context.WithCancel(ctx)
	m.connections.Store(conn.ID(), &active{conn: conn, cancel: cancel})
	m.logger.Info("connection registered", "connection_id", conn.ID(), "remote_addr", conn.RemoteAddr())
	return connCtx
}

// Unregister stops tracking the connection and cancels its context.
func (m *Manager) Unregister(conn core.Connection) {
	val, ok := m.connections.LoadAndDelete(conn.ID())
	if !ok {
		return
	}
	val.(*active).cancel()
	m.logger.Info("connection unregistered", "connection_id", conn.ID())
}

// Submit runs one event through the admission pipeline on behalf of conn,
// holding the connection's own lock so a second submission on the same
// connection waits for the first to finish.
func (m *Manager) Submit(ctx context.Context, conn core.Connection, ev *core.Event, meta admission.Metadata) error {
	val, ok := m.connections.Load(conn.ID())
	if !ok {
		return errNotRegistered
	}
	a := val.(*active)
	a.mu.Lock()
	defer a.mu.Unlock()
	return m.pipeline.Handle(ctx, ev, conn, meta)
}

// ActiveCount returns the number of tracked connections.
func (m *Manager) ActiveCount() int {
	count := 0
	m.connections.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// CloseAll cancels every tracked connection's context, for graceful
// shutdown.
func (m *Manager) CloseAll() {
	m.connections.Range(func(key, val any) bool {
		val.(*active).cancel()
		m.connections.Delete(key)
		return true
	})
}
