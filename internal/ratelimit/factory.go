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
	"fmt"

	"github.com/relaycore/admission-engine/pkg/core"
)

// BackendType identifies the rate limiter backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
)

// Config selects and configures the rate limiter backend.
type Config struct {
	Type  BackendType `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

// New constructs a core.RateLimiter from cfg.
func New(cfg Config) (core.RateLimiter, error) {
	switch cfg.Type {
	case BackendMemory, "":
		return NewMemoryLimiter(), nil
	case BackendRedis:
		return NewRedisLimiter(cfg.Redis)
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend type %q", cfg.Type)
	}
}
