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
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const negativeCacheTTL = 60 * time.Second

// NegativeCache remembers, for a bounded time, pubkeys that a webhook
// lookup or admission check has already rejected — it never caches
// positive results, which always come from the datastore.
type NegativeCache interface {
	IsBlocked(ctx context.Context, pubkey string) (bool, error)
	MarkBlocked(ctx context.Context, pubkey string) error
}

// MemoryNegativeCache is a sync.Map-backed cache with lazy expiry checked
// on read, mirroring the teacher-family's in-process keyed registries.
type MemoryNegativeCache struct {
	entries sync.Map // pubkey -> time.Time expiry
}

// NewMemoryNegativeCache constructs an empty cache.
func NewMemoryNegativeCache() *MemoryNegativeCache {
	return &MemoryNegativeCache{}
}

func (c *MemoryNegativeCache) IsBlocked(_ context.Context, pubkey string) (bool, error) {
	v, ok := c.entries.Load(pubkey)
	if !ok {
		return false, nil
	}
	expiry := v.(time.Time)
	if time.Now().After(expiry) {
		c.entries.Delete(pubkey)
		return false, nil
	}
	return true, nil
}

func (c *MemoryNegativeCache) MarkBlocked(_ context.Context, pubkey string) error {
	c.entries.Store(pubkey, time.Now().Add(negativeCacheTTL))
	return nil
}

// RedisNegativeCache stores negative lookups as a Redis key with a 60s TTL.
type RedisNegativeCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisNegativeCache dials Redis and verifies connectivity.
func NewRedisNegativeCache(addr, password string, db int) (*RedisNegativeCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("users: redis connection failed: %w", err)
	}

	return &RedisNegativeCache{client: client, keyPrefix: "relay:blocked:"}, nil
}

func (c *RedisNegativeCache) key(pubkey string) string {
	return c.keyPrefix + pubkey
}

func (c *RedisNegativeCache) IsBlocked(ctx context.Context, pubkey string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(pubkey)).Result()
	if err != nil {
		return false, fmt.Errorf("users: redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *RedisNegativeCache) MarkBlocked(ctx context.Context, pubkey string) error {
	if err := c.client.Set(ctx, c.key(pubkey), "true", negativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("users: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (c *RedisNegativeCache) Close() error {
	return c.client.Close()
}
