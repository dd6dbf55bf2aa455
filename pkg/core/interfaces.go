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

package core

import "context"

// Connection is the per-submitter transport the admission pipeline writes
// command results back to. The WebSocket entrypoint is the only
// implementation outside of tests, but the pipeline depends only on this
// interface so it can be driven without a socket.
type Connection interface {
	ID() string
	RemoteAddr() string
	Emit(frame []any) error
}

// UserRepository owns the mapping from pubkey identity to admission/balance
// state, backed by a relational store, a short-lived negative cache, and
// the pubkey-check/top-up webhooks.
type UserRepository interface {
	// FindByPubkey resolves pubkey to a user, or (nil, nil) if the pubkey
	// is known-unadmitted (cached negative, or a negative webhook lookup).
	FindByPubkey(ctx context.Context, pubkey string) (*User, error)
	// Upsert inserts or merges a user row, preserving pubkey, balance and
	// created_at on conflict.
	Upsert(ctx context.Context, u *User) error
	// GetBalanceByPubkey returns the current balance, zero if unknown.
	GetBalanceByPubkey(ctx context.Context, pubkey string) (*BigInt, error)
	// IncrementBalance credits amount atomically.
	IncrementBalance(ctx context.Context, pubkey string, amount *BigInt) error
	// DecrementBalance debits amount atomically. The balance path is
	// unrolled by design (see the publication-fee design note): this does
	// not fail on insufficient balance, callers gate on balance beforehand.
	DecrementBalance(ctx context.Context, pubkey string, amount *BigInt) error
	// TopUpPubkey invokes the top-up webhook and, on success, credits the
	// requested amount via IncrementBalance.
	TopUpPubkey(ctx context.Context, pubkey string, amount *BigInt) (bool, error)
}

// RateLimiter enforces the sliding-window submission limits keyed by
// pubkey, period and optionally kind.
type RateLimiter interface {
	// Hit records one submission against key inside a window of
	// periodMillis milliseconds and reports whether the resulting count
	// exceeds rate.
	Hit(ctx context.Context, key string, periodMillis int64, rate int) (limited bool, err error)
}

// EventWebhook is the pair of outbound HTTP collaborators consulted during
// admission: one that can veto the event, and one that is only notified of
// the final outcome.
type EventWebhook interface {
	// CheckEvent asks the event-check webhook whether ev may be admitted.
	CheckEvent(ctx context.Context, ev *Event) (ok bool, reason string, err error)
	// NotifyEvent fires the event-callback webhook. Failures are logged,
	// never surfaced to the submitter.
	NotifyEvent(ctx context.Context, ev *Event, result CommandResult)
}

// Strategy executes the kind-specific side effect of an admitted event and
// is responsible for emitting its own command result on success.
type Strategy interface {
	Execute(ctx context.Context, ev *Event, conn Connection) error
}

// StrategyFactory resolves the Strategy responsible for a given event, or
// nil if the kind has no registered behavior.
type StrategyFactory interface {
	Resolve(ev *Event, conn Connection) Strategy
}
