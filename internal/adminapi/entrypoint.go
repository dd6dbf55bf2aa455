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

// Package adminapi serves the administrative balance-lookup endpoint, in
// the same small net/http.ServeMux shape as the mediation engine's
// httpget entrypoint, but reading straight from the user repository
// instead of a session/poll model.
package adminapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/relaycore/admission-engine/pkg/core"
)

// Entrypoint serves GET /user?token=&pubkey=.
type Entrypoint struct {
	port   int
	apiKey string
	users  core.UserRepository
	server *http.Server
	logger *slog.Logger
}

// New constructs an Entrypoint. apiKey is the expected RELAY_API_KEY; an
// empty apiKey makes every request 403, per the admin endpoint's contract.
func New(port int, apiKey string, users core.UserRepository, logger *slog.Logger) *Entrypoint {
	return &Entrypoint{port: port, apiKey: apiKey, users: users, logger: logger}
}

// Start runs the admin HTTP server until ctx is canceled.
func (e *Entrypoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", e.handleUser)

	e.server = &http.Server{Addr: fmt.Sprintf(":%d", e.port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.server.Shutdown(shutdownCtx)
	}()

	e.logger.Info("admin entrypoint starting", "port", e.port)
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

func (e *Entrypoint) handleUser(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if e.apiKey == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(e.apiKey)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	pubkey := r.URL.Query().Get("pubkey")
	if !isHex64(pubkey) {
		http.Error(w, "pubkey is missing or malformed", http.StatusBadRequest)
		return
	}

	user, err := e.users.FindByPubkey(r.Context(), pubkey)
	if err != nil {
		e.logger.Error("admin user lookup failed", "pubkey", pubkey, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "unknown pubkey", http.StatusNotFound)
		return
	}

	// The admin endpoint's balance is the one place this relay renders an
	// amount as a bare JSON number instead of the decimal-string convention
	// used on every webhook payload (see DESIGN.md): §6's wire
	// contract for this external endpoint says `{"balance": <number>}`.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"balance": json.Number(user.Balance.String())})
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') && !(c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
