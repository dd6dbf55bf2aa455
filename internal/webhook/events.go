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

package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
)

type checkResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// EventCollaborator implements core.EventWebhook against the configured
// event-check and event-callback endpoints.
type EventCollaborator struct {
	client   *Client
	settings func() *config.Settings
	logger   *slog.Logger
}

// NewEventCollaborator constructs a collaborator that re-reads settings on
// every call via settings, so hot-reloaded endpoint config takes effect
// immediately.
func NewEventCollaborator(client *Client, settings func() *config.Settings, logger *slog.Logger) *EventCollaborator {
	return &EventCollaborator{client: client, settings: settings, logger: logger}
}

// CheckEvent implements core.EventWebhook.
func (e *EventCollaborator) CheckEvent(ctx context.Context, ev *core.Event) (bool, string, error) {
	s := e.settings()
	if !s.Webhooks.EventChecks || s.Webhooks.Endpoints.EventCheck == "" {
		return true, "", nil
	}

	var resp checkResponse
	err := e.client.PostJSON(ctx, s.Webhooks.Endpoints.BaseURL, s.Webhooks.Endpoints.EventCheck, ev, &resp)
	if err != nil {
		return false, "", fmt.Errorf("webhook: event-check: %w", err)
	}
	return resp.Success, resp.Reason, nil
}

// NotifyEvent implements core.EventWebhook. Failures are logged and
// swallowed; the client has already received its acknowledgement.
func (e *EventCollaborator) NotifyEvent(ctx context.Context, ev *core.Event, result core.CommandResult) {
	s := e.settings()
	if !s.Webhooks.EventCallbacks || s.Webhooks.Endpoints.EventCallback == "" {
		return
	}

	err := e.client.PostJSON(ctx, s.Webhooks.Endpoints.BaseURL, s.Webhooks.Endpoints.EventCallback, ev, nil)
	if err != nil {
		e.logger.Warn("event-callback webhook failed", "event_id", result.EventID, "error", err)
	}
}
