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

	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
)

type pubkeyCheckRequest struct {
	Pubkey string       `json:"pubkey"`
	Amount *core.BigInt `json:"amount"`
}

type pubkeyCheckResponse struct {
	Pubkey     string       `json:"pubkey"`
	IsAdmitted bool         `json:"isAdmitted"`
	Balance    *core.BigInt `json:"balance"`
}

type topUpRequest struct {
	Pubkey string       `json:"pubkey"`
	Amount *core.BigInt `json:"amount"`
}

type topUpResponse struct {
	Success bool `json:"success"`
}

// PubkeyCollaborator implements users.PubkeyCheckWebhook against the
// configured pubkey-check and top-up endpoints.
type PubkeyCollaborator struct {
	client   *Client
	settings func() *config.Settings
}

// NewPubkeyCollaborator constructs a collaborator that re-reads settings
// on every call.
func NewPubkeyCollaborator(client *Client, settings func() *config.Settings) *PubkeyCollaborator {
	return &PubkeyCollaborator{client: client, settings: settings}
}

// CheckPubkey POSTs {pubkey, amount} to the pubkey-check endpoint.
func (p *PubkeyCollaborator) CheckPubkey(ctx context.Context, pubkey string, amount *core.BigInt) (*core.User, bool, error) {
	s := p.settings()
	if !s.Webhooks.PubkeyChecks || s.Webhooks.Endpoints.PubkeyCheck == "" {
		return nil, false, nil
	}
	if amount == nil {
		amount = core.ZeroBigInt()
	}

	var resp pubkeyCheckResponse
	req := pubkeyCheckRequest{Pubkey: pubkey, Amount: amount}
	if err := p.client.PostJSON(ctx, s.Webhooks.Endpoints.BaseURL, s.Webhooks.Endpoints.PubkeyCheck, req, &resp); err != nil {
		return nil, false, fmt.Errorf("webhook: pubkey-check: %w", err)
	}
	if !resp.IsAdmitted {
		return nil, false, nil
	}

	balance := resp.Balance
	if balance == nil {
		balance = core.ZeroBigInt()
	}
	return &core.User{PubKey: pubkey, IsAdmitted: true, Balance: balance}, true, nil
}

// TopUp POSTs {pubkey, amount} to the top-up endpoint.
func (p *PubkeyCollaborator) TopUp(ctx context.Context, pubkey string, amount *core.BigInt) (bool, error) {
	s := p.settings()
	if !s.Webhooks.TopUps || s.Webhooks.Endpoints.TopUps == "" {
		return false, nil
	}

	var resp topUpResponse
	req := topUpRequest{Pubkey: pubkey, Amount: amount}
	if err := p.client.PostJSON(ctx, s.Webhooks.Endpoints.BaseURL, s.Webhooks.Endpoints.TopUps, req, &resp); err != nil {
		return false, fmt.Errorf("webhook: top-up: %w", err)
	}
	return resp.Success, nil
}
