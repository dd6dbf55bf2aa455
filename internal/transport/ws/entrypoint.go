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

// Package ws is the relay's single WebSocket entrypoint: it reads
// ["EVENT", event] frames from each connection and submits them to the
// admission pipeline, one connection per goroutine, adapted from the
// mediation engine's WS entrypoint but stripped of its multi-route
// session plumbing since this relay serves one fixed protocol.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaycore/admission-engine/internal/admission"
	"github.com/relaycore/admission-engine/internal/connection"
	"github.com/relaycore/admission-engine/pkg/core"
)

// Entrypoint serves the admission WebSocket endpoint.
type Entrypoint struct {
	port     int
	upgrader websocket.Upgrader
	manager  *connection.Manager
	server   *http.Server
	logger   *slog.Logger
}

// New constructs an Entrypoint bound to manager.
func New(port int, manager *connection.Manager, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{
		port: port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		manager: manager,
		logger:  logger,
	}
}

// Start runs the WebSocket server until ctx is canceled.
func (e *Entrypoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleConnection)

	e.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", e.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("websocket entrypoint starting", "port", e.port)
	if err := e.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (e *Entrypoint) Stop(ctx context.Context) error {
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

func (e *Entrypoint) handleConnection(w http.ResponseWriter, r *http.Request) {
	wsConn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("ws upgrade failed", "error", err)
		return
	}

	conn := &wsConnection{
		id:         core.GenerateConnectionID(r),
		remoteAddr: core.RemoteHost(r.RemoteAddr),
		socket:     wsConn,
	}

	connCtx := e.manager.Register(r.Context(), conn)
	defer func() {
		wsConn.Close()
		e.manager.Unregister(conn)
		e.logger.Info("ws client disconnected", "connection_id", conn.id)
	}()

	e.logger.Info("ws client connected", "connection_id", conn.id, "remote_addr", conn.remoteAddr)

	for {
		_, payload, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("ws read error", "connection_id", conn.id, "error", err)
			}
			return
		}

		ev, err := parseEventFrame(payload)
		if err != nil {
			e.logger.Warn("malformed frame", "connection_id", conn.id, "error", err)
			continue
		}

		meta := admission.Metadata{RemoteIP: conn.remoteAddr}
		if err := e.manager.Submit(connCtx, conn, ev, meta); err != nil {
			e.logger.Error("admission pipeline error", "connection_id", conn.id, "event_id", ev.ID, "error", err)
			return
		}
	}
}

func parseEventFrame(payload []byte) (*core.Event, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("ws: invalid frame: %w", err)
	}
	if len(frame) != 2 {
		return nil, fmt.Errorf("ws: expected a 2-element frame, got %d", len(frame))
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil || label != "EVENT" {
		return nil, fmt.Errorf("ws: expected an EVENT frame")
	}
	var ev core.Event
	if err := json.Unmarshal(frame[1], &ev); err != nil {
		return nil, fmt.Errorf("ws: invalid event payload: %w", err)
	}
	return &ev, nil
}

// wsConnection adapts a gorilla websocket connection to core.Connection.
type wsConnection struct {
	id         string
	remoteAddr string
	socket     *websocket.Conn
	writeMu    sync.Mutex
}

func (c *wsConnection) ID() string         { return c.id }
func (c *wsConnection) RemoteAddr() string { return c.remoteAddr }

// Emit writes frame as a JSON array. Calls are serialized because
// gorilla/websocket does not support concurrent writers.
func (c *wsConnection) Emit(frame []any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("ws: marshal frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteMessage(websocket.TextMessage, data)
}
