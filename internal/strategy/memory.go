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

// Package strategy resolves and executes the kind-specific side effect of
// an admitted event, standing in for the out-of-scope persistence layer.
package strategy

import (
	"context"
	"sync"

	"github.com/relaycore/admission-engine/pkg/core"
)

// RingBuffer is a bounded in-memory Strategy: it records accepted events
// of every kind in one shared buffer and emits the success acknowledgement. It exists to exercise
// the admission pipeline's stages 8-10 end to end without a real
// persistence backend.
type RingBuffer struct {
	mu       sync.Mutex
	capacity int
	events   []*core.Event
}

// NewRingBuffer constructs a RingBuffer holding at most capacity events.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{capacity: capacity}
}

// Execute implements core.Strategy.
func (b *RingBuffer) Execute(_ context.Context, ev *core.Event, conn core.Connection) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	b.mu.Unlock()

	return conn.Emit(core.Accept(ev.ID).Frame())
}

// Recent returns a copy of the most recently recorded events, oldest first.
func (b *RingBuffer) Recent() []*core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*core.Event, len(b.events))
	copy(out, b.events)
	return out
}
