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

// Package admission implements the fixed-order event admission pipeline:
// structural/cryptographic validity, expiration, rate limiting, policy
// evaluation, user/balance gating, the event-check webhook, kind-dispatch
// strategy resolution, the publication fee, strategy execution, and the
// post-acceptance callback.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/relaycore/admission-engine/internal/logging"
	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
	"github.com/relaycore/admission-engine/pkg/cryptoutil"
	"github.com/relaycore/admission-engine/pkg/policy"
)

// Metadata carries the per-submission context the pipeline needs beyond
// the event itself.
type Metadata struct {
	RemoteIP string
}

// Pipeline wires together the collaborators a single admission consults.
type Pipeline struct {
	Settings     func() *config.Settings
	RateLimiter  core.RateLimiter
	Users        core.UserRepository
	Webhook      core.EventWebhook
	Strategies   core.StrategyFactory
	Logger       *slog.Logger
	AdmissionLog *logging.AdmissionLogger
}

// New constructs a Pipeline.
func New(settings func() *config.Settings, rl core.RateLimiter, users core.UserRepository, webhook core.EventWebhook, strategies core.StrategyFactory, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Settings:     settings,
		RateLimiter:  rl,
		Users:        users,
		Webhook:      webhook,
		Strategies:   strategies,
		Logger:       logger,
		AdmissionLog: logging.NewAdmissionLogger(logger),
	}
}

// Handle runs one event through the admission pipeline. It emits exactly
// one acknowledgement via conn, except when it returns a non-nil error: in
// those cases (event-check webhook transport failure, a rate-limiter,
// datastore or cache failure during admission, or a failed emit) no
// acknowledgement is emitted and the caller — the connection's read loop — decides
// whether to close or continue.
func (p *Pipeline) Handle(ctx context.Context, ev *core.Event, conn core.Connection, meta Metadata) error {
	settings := p.Settings()
	now := time.Now().Unix()

	// Stage 1: structural/cryptographic validity.
	if ok, reason := cryptoutil.VerifyIdentity(ev); !ok {
		return p.reject(ctx, ev, conn, "identity", reason)
	}

	// Stage 2: expiration.
	if expiry, has := ev.Tags.Expiration(); has {
		if expiry <= now {
			return p.reject(ctx, ev, conn, "expiration", "event is expired")
		}
		// A future expiry is not attached anywhere: strategies receive only
		// the event and its connection.
		_ = expiry
	}

	// Stage 4: rate limiting.
	limited, err := p.checkRateLimit(ctx, ev, meta, settings, now)
	if err != nil {
		return fmt.Errorf("admission: rate limiter: %w", err)
	}
	if limited {
		return p.reject(ctx, ev, conn, "rate-limit", "rate-limited: slow down")
	}

	// Stage 5: policy evaluation.
	if reason := policy.Evaluate(ev, settings, now); reason != "" {
		return p.reject(ctx, ev, conn, "policy", reason)
	}

	// Stage 6: user admission & balance gating.
	if reason, err := p.checkUserAdmission(ctx, ev, settings); err != nil {
		return fmt.Errorf("admission: user gating: %w", err)
	} else if reason != "" {
		return p.reject(ctx, ev, conn, "user", reason)
	}

	// Stage 7: event-check webhook.
	if p.Webhook != nil {
		ok, reason, err := p.Webhook.CheckEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("admission: event-check webhook: %w", err)
		}
		if !ok {
			return p.reject(ctx, ev, conn, "event-check", reason)
		}
	}

	// Stage 8: strategy resolution.
	strat := p.Strategies.Resolve(ev, conn)
	if strat == nil {
		return p.reject(ctx, ev, conn, "strategy-resolution", "error: event not supported")
	}

	// Stage 9: publication fee, debited before execution and never rolled
	// back if the strategy subsequently fails.
	if settings.Payments.Enabled {
		if pub, ok := settings.FirstPublicationSchedule(); ok && pub.Enabled {
			if err := p.Users.DecrementBalance(ctx, ev.PubKey, pub.Amount); err != nil {
				return fmt.Errorf("admission: publication fee: %w", err)
			}
		}
	}

	// Stage 10: strategy execution. The strategy is responsible for
	// emitting its own acknowledgement on success.
	if err := p.executeStrategy(ctx, strat, ev, conn); err != nil {
		p.Logger.Warn("strategy execution failed", "event_id", ev.ID, "pubkey", ev.PubKey, "error", err)
		return p.reject(ctx, ev, conn, "strategy-execution", "error: unable to process event")
	}

	p.AdmissionLog.Log(conn.ID(), ev.PubKey, ev.ID, "strategy-execution", true, "")
	p.notify(ctx, ev, core.Accept(ev.ID))
	return nil
}

func (p *Pipeline) executeStrategy(ctx context.Context, strat core.Strategy, ev *core.Event, conn core.Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return strat.Execute(ctx, ev, conn)
}

func (p *Pipeline) checkRateLimit(ctx context.Context, ev *core.Event, meta Metadata, settings *config.Settings, now int64) (bool, error) {
	limits := settings.Limits.Event
	if limits.Whitelists.MatchesPubkey(ev.PubKey) || limits.Whitelists.MatchesIP(meta.RemoteIP) {
		return false, nil
	}

	limited := false
	for _, rule := range limits.RateLimits {
		if !rule.AppliesTo(ev.Kind) {
			continue
		}
		key := rateLimitKey(ev.PubKey, rule)
		hit, err := p.RateLimiter.Hit(ctx, key, rule.PeriodMillis, rule.Rate)
		if err != nil {
			return false, err
		}
		if hit {
			limited = true
		}
	}
	return limited, nil
}

func rateLimitKey(pubkey string, rule config.RateLimitRule) string {
	if len(rule.Kinds) == 0 {
		return fmt.Sprintf("%s:events:%d", pubkey, rule.PeriodMillis)
	}
	parts := make([]string, 0, len(rule.Kinds))
	for _, m := range rule.Kinds {
		if m.Lo == m.Hi {
			parts = append(parts, strconv.Itoa(int(m.Lo)))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", m.Lo, m.Hi))
		}
	}
	return fmt.Sprintf("%s:events:%d:[%s]", pubkey, rule.PeriodMillis, strings.Join(parts, ","))
}

// checkUserAdmission returns a non-empty rejection reason, or an error if a
// collaborator call failed.
func (p *Pipeline) checkUserAdmission(ctx context.Context, ev *core.Event, settings *config.Settings) (string, error) {
	if !settings.Payments.Enabled {
		return "", nil
	}

	admission, ok := settings.FirstAdmissionSchedule()
	if !ok || !admission.Enabled || admission.Whitelists.MatchesPubkey(ev.PubKey) {
		return "", nil
	}

	user, err := p.Users.FindByPubkey(ctx, ev.PubKey)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsAdmitted {
		return "blocked: pubkey not admitted", nil
	}

	if pub, ok := settings.FirstPublicationSchedule(); ok && pub.Enabled && user.Balance.LessThan(pub.Amount) {
		topUp, hasTopUp := settings.FirstTopUpSchedule()
		if !hasTopUp || !topUp.Enabled {
			return "blocked: insufficient balance", nil
		}
		credited, err := p.Users.TopUpPubkey(ctx, ev.PubKey, topUp.Amount)
		if err != nil {
			return "", err
		}
		if !credited {
			return "blocked: insufficient balance", nil
		}
	}

	if minBalance := settings.Limits.Event.Pubkey.MinBalance; minBalance.IsPositive() {
		balance, err := p.Users.GetBalanceByPubkey(ctx, ev.PubKey)
		if err != nil {
			return "", err
		}
		if balance.LessThan(minBalance) {
			return "blocked: insufficient balance", nil
		}
	}

	return "", nil
}

func (p *Pipeline) reject(ctx context.Context, ev *core.Event, conn core.Connection, stage, reason string) error {
	result := core.Reject(ev.ID, reason)
	if err := conn.Emit(result.Frame()); err != nil {
		return fmt.Errorf("admission: emit result: %w", err)
	}
	p.AdmissionLog.Log(conn.ID(), ev.PubKey, ev.ID, stage, false, reason)
	return nil
}

// notify fires the post-acceptance callback after the client has already
// received its acknowledgement. It only runs once a strategy has accepted
// the event; rejections at any earlier stage never reach it. It runs
// synchronously but on the connection's own goroutine, bounded by the
// webhook client's own timeout, so a slow callback delays only that
// connection's next admission.
func (p *Pipeline) notify(ctx context.Context, ev *core.Event, result core.CommandResult) {
	if p.Webhook == nil {
		return
	}
	p.Webhook.NotifyEvent(ctx, ev, result)
}
