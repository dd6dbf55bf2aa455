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

package strategy

import (
	"sync"

	"github.com/relaycore/admission-engine/pkg/core"
)

// Constructor builds the Strategy responsible for one event/connection.
type Constructor func(ev *core.Event, conn core.Connection) core.Strategy

// Registry is a kind-dispatch StrategyFactory: it resolves (event,
// connection) to a Strategy via a kind -> constructor map, falling back to
// nil for unregistered kinds (which the pipeline turns into "error: event
// not supported"), mirroring the plugin registry's lookup-by-name pattern.
type Registry struct {
	mu           sync.RWMutex
	constructors map[uint16]Constructor
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[uint16]Constructor)}
}

// Register associates kind with a constructor.
func (r *Registry) Register(kind uint16, c Constructor) {
	r.mu.Lock()
	r.constructors[kind] = c
	r.mu.Unlock()
}

// RegisterRange associates every kind in [lo, hi] with the same
// constructor, mirroring the inclusive range matching used
// elsewhere in the configuration schema.
func (r *Registry) RegisterRange(lo, hi uint16, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := lo; ; k++ {
		r.constructors[k] = c
		if k == hi {
			break
		}
	}
}

// Resolve implements core.StrategyFactory.
func (r *Registry) Resolve(ev *core.Event, conn core.Connection) core.Strategy {
	r.mu.RLock()
	c, ok := r.constructors[ev.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return c(ev, conn)
}
