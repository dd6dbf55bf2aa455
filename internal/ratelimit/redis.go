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

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration for the rate limiter.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// RedisLimiter implements a sliding window per key using a Redis sorted
// set: each hit is ZADDed with its timestamp as score, expired members are
// pruned with ZREMRANGEBYSCORE, and the window's population is read back
// with ZCARD. A TTL keeps idle keys from accumulating forever.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLimiter dials Redis and verifies connectivity before returning.
func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis connection failed: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "relay:ratelimit:"
	}

	return &RedisLimiter{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisLimiter) key(key string) string {
	return r.keyPrefix + key
}

// Hit implements core.RateLimiter.
func (r *RedisLimiter) Hit(ctx context.Context, key string, periodMillis int64, rate int) (bool, error) {
	now := time.Now().UnixMilli()
	cutoff := now - periodMillis
	member := strconv.FormatInt(time.Now().UnixNano(), 10)
	redisKey := r.key(key)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, time.Duration(periodMillis)*time.Millisecond)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: redis pipeline: %w", err)
	}

	count, err := card.Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: read count: %w", err)
	}
	return count > int64(rate), nil
}

// Close releases the underlying Redis client.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
