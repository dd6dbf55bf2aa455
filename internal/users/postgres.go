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

package users

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/relaycore/admission-engine/pkg/core"
)

// Repository implements core.UserRepository over Postgres, fronted by a
// negative-lookup cache and the pubkey-check/top-up webhooks.
type Repository struct {
	db         *DB
	cache      NegativeCache
	pubkeyHook PubkeyCheckWebhook
	topUpAmt   func() (*core.BigInt, bool)
}

// PubkeyCheckWebhook is the collaborator consulted on a cache-and-datastore
// miss, kept as a narrow interface so the repository can be tested without
// a real HTTP round trip.
type PubkeyCheckWebhook interface {
	CheckPubkey(ctx context.Context, pubkey string, amount *core.BigInt) (*core.User, bool, error)
	TopUp(ctx context.Context, pubkey string, amount *core.BigInt) (bool, error)
}

// NewRepository constructs a Repository. topUpAmount returns the amount to
// request in the pubkey-check payload (schedule[0].amount, per the
// fee-schedule indexing design note) and whether top-up is configured.
func NewRepository(db *DB, cache NegativeCache, pubkeyHook PubkeyCheckWebhook, topUpAmount func() (*core.BigInt, bool)) *Repository {
	return &Repository{db: db, cache: cache, pubkeyHook: pubkeyHook, topUpAmt: topUpAmount}
}

func pubkeyKey(pubkey string) string { return pubkey }

// FindByPubkey implements core.UserRepository.
func (r *Repository) FindByPubkey(ctx context.Context, pubkey string) (*core.User, error) {
	blocked, err := r.cache.IsBlocked(ctx, pubkeyKey(pubkey))
	if err != nil {
		return nil, fmt.Errorf("users: check negative cache: %w", err)
	}
	if blocked {
		return nil, nil
	}

	u, err := r.selectByPubkey(ctx, pubkey)
	if err != nil {
		return nil, fmt.Errorf("users: select by pubkey: %w", err)
	}
	if u != nil {
		return u, nil
	}

	if r.pubkeyHook == nil {
		if err := r.cache.MarkBlocked(ctx, pubkeyKey(pubkey)); err != nil {
			return nil, fmt.Errorf("users: mark blocked: %w", err)
		}
		return nil, nil
	}

	amount, _ := r.topUpAmt()
	found, admitted, err := r.pubkeyHook.CheckPubkey(ctx, pubkey, amount)
	if err != nil {
		return nil, fmt.Errorf("users: pubkey-check webhook: %w", err)
	}
	if !admitted || found == nil {
		if err := r.cache.MarkBlocked(ctx, pubkeyKey(pubkey)); err != nil {
			return nil, fmt.Errorf("users: mark blocked: %w", err)
		}
		return nil, nil
	}

	now := time.Now().UTC()
	found.CreatedAt = now
	found.UpdatedAt = now
	found.TosAcceptedAt = &now
	if err := r.Upsert(ctx, found); err != nil {
		return nil, fmt.Errorf("users: upsert after pubkey-check: %w", err)
	}
	return found, nil
}

// Upsert implements core.UserRepository. On conflict, every column except
// pubkey, balance and created_at is merged; balance and created_at are
// insert-only.
func (r *Repository) Upsert(ctx context.Context, u *core.User) error {
	pubkeyBytes, err := hex.DecodeString(u.PubKey)
	if err != nil {
		return fmt.Errorf("users: invalid pubkey %q: %w", u.PubKey, err)
	}

	const q = `
INSERT INTO users (pubkey, is_admitted, balance, created_at, updated_at, tos_accepted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (pubkey) DO UPDATE SET
  is_admitted = EXCLUDED.is_admitted,
  updated_at = EXCLUDED.updated_at,
  tos_accepted_at = EXCLUDED.tos_accepted_at`

	balance := numericFromBigInt(u.Balance)
	_, err = r.db.Pool.Exec(ctx, q, pubkeyBytes, u.IsAdmitted, balance, u.CreatedAt, u.UpdatedAt, u.TosAcceptedAt)
	if err != nil {
		return fmt.Errorf("users: upsert: %w", err)
	}
	return nil
}

// GetBalanceByPubkey implements core.UserRepository.
func (r *Repository) GetBalanceByPubkey(ctx context.Context, pubkey string) (*core.BigInt, error) {
	u, err := r.selectByPubkey(ctx, pubkey)
	if err != nil {
		return nil, fmt.Errorf("users: get balance: %w", err)
	}
	if u == nil {
		return core.ZeroBigInt(), nil
	}
	return u.Balance, nil
}

// IncrementBalance implements core.UserRepository.
func (r *Repository) IncrementBalance(ctx context.Context, pubkey string, amount *core.BigInt) error {
	return r.adjustBalance(ctx, pubkey, amount, "+")
}

// DecrementBalance implements core.UserRepository.
func (r *Repository) DecrementBalance(ctx context.Context, pubkey string, amount *core.BigInt) error {
	return r.adjustBalance(ctx, pubkey, amount, "-")
}

func (r *Repository) adjustBalance(ctx context.Context, pubkey string, amount *core.BigInt, op string) error {
	pubkeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return fmt.Errorf("users: invalid pubkey %q: %w", pubkey, err)
	}
	q := fmt.Sprintf(`UPDATE users SET balance = balance %s $2, updated_at = now() WHERE pubkey = $1`, op)
	if _, err := r.db.Pool.Exec(ctx, q, pubkeyBytes, numericFromBigInt(amount)); err != nil {
		return fmt.Errorf("users: adjust balance: %w", err)
	}
	return nil
}

// TopUpPubkey implements core.UserRepository.
func (r *Repository) TopUpPubkey(ctx context.Context, pubkey string, amount *core.BigInt) (bool, error) {
	if r.pubkeyHook == nil {
		return false, nil
	}
	ok, err := r.pubkeyHook.TopUp(ctx, pubkey, amount)
	if err != nil {
		return false, fmt.Errorf("users: top-up webhook: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := r.IncrementBalance(ctx, pubkey, amount); err != nil {
		return false, fmt.Errorf("users: credit after top-up: %w", err)
	}
	return true, nil
}

func (r *Repository) selectByPubkey(ctx context.Context, pubkey string) (*core.User, error) {
	pubkeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey %q: %w", pubkey, err)
	}

	const q = `
SELECT pubkey, is_admitted, balance, created_at, updated_at, tos_accepted_at
FROM users WHERE pubkey = $1`

	var (
		rawPubkey     []byte
		isAdmitted    bool
		balance       pgtype.Numeric
		createdAt     time.Time
		updatedAt     time.Time
		tosAcceptedAt *time.Time
	)
	row := r.db.Pool.QueryRow(ctx, q, pubkeyBytes)
	err = row.Scan(&rawPubkey, &isAdmitted, &balance, &createdAt, &updatedAt, &tosAcceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	amount, err := bigIntFromNumeric(balance)
	if err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}

	return &core.User{
		PubKey:        hex.EncodeToString(rawPubkey),
		IsAdmitted:    isAdmitted,
		Balance:       amount,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		TosAcceptedAt: tosAcceptedAt,
	}, nil
}

func numericFromBigInt(b *core.BigInt) pgtype.Numeric {
	if b == nil {
		b = core.ZeroBigInt()
	}
	return pgtype.Numeric{Int: new(big.Int).Set(&b.Int), Exp: 0, Valid: true}
}

func bigIntFromNumeric(n pgtype.Numeric) (*core.BigInt, error) {
	if !n.Valid {
		return core.ZeroBigInt(), nil
	}
	if n.Exp != 0 {
		return nil, fmt.Errorf("unexpected non-integer numeric scale exp=%d", n.Exp)
	}
	out := &core.BigInt{}
	out.Int.Set(n.Int)
	return out, nil
}
