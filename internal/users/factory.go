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

import "fmt"

// CacheBackendType selects the negative-lookup cache backend.
type CacheBackendType string

const (
	CacheBackendMemory CacheBackendType = "memory"
	CacheBackendRedis  CacheBackendType = "redis"
)

// CacheConfig selects and configures the negative-lookup cache backend.
type CacheConfig struct {
	Type     CacheBackendType `yaml:"type"`
	Addr     string           `yaml:"addr"`
	Password string           `yaml:"password"`
	DB       int              `yaml:"db"`
}

// NewCache constructs a NegativeCache from cfg.
func NewCache(cfg CacheConfig) (NegativeCache, error) {
	switch cfg.Type {
	case CacheBackendMemory, "":
		return NewMemoryNegativeCache(), nil
	case CacheBackendRedis:
		return NewRedisNegativeCache(cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("users: unknown cache backend type %q", cfg.Type)
	}
}
