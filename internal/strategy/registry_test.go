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
	"context"
	"testing"

	"github.com/relaycore/admission-engine/pkg/core"
)

type fakeConn struct {
	emitted [][]any
}

func (f *fakeConn) ID() string           { return "fake" }
func (f *fakeConn) RemoteAddr() string   { return "127.0.0.1" }
func (f *fakeConn) Emit(frame []any) error {
	f.emitted = append(f.emitted, frame)
	return nil
}

func TestRegistryResolveUnregisteredKindReturnsNil(t *testing.T) {
	r := NewRegistry()
	if s := r.Resolve(&core.Event{Kind: 99}, &fakeConn{}); s != nil {
		t.Fatal("expected nil strategy for unregistered kind")
	}
}

func TestRegistryResolveRegisteredKind(t *testing.T) {
	r := NewRegistry()
	buf := NewRingBuffer(10)
	r.Register(1, func(ev *core.Event, conn core.Connection) core.Strategy { return buf })

	conn := &fakeConn{}
	ev := &core.Event{ID: "abc", Kind: 1}
	s := r.Resolve(ev, conn)
	if s == nil {
		t.Fatal("expected a registered strategy")
	}
	if err := s.Execute(context.Background(), ev, conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conn.emitted) != 1 {
		t.Fatalf("expected one emitted frame, got %d", len(conn.emitted))
	}
	if len(buf.Recent()) != 1 {
		t.Fatal("expected the event to be recorded in the ring buffer")
	}
}

func TestRegistryRegisterRange(t *testing.T) {
	r := NewRegistry()
	buf := NewRingBuffer(10)
	r.RegisterRange(10000, 19999, func(ev *core.Event, conn core.Connection) core.Strategy { return buf })

	if r.Resolve(&core.Event{Kind: 15000}, &fakeConn{}) == nil {
		t.Fatal("expected range registration to cover kind 15000")
	}
	if r.Resolve(&core.Event{Kind: 20000}, &fakeConn{}) != nil {
		t.Fatal("expected kind 20000 to remain unregistered")
	}
}

func TestRingBufferCapacity(t *testing.T) {
	buf := NewRingBuffer(2)
	conn := &fakeConn{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := buf.Execute(ctx, &core.Event{ID: string(rune('a' + i))}, conn); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	recent := buf.Recent()
	if len(recent) != 2 {
		t.Fatalf("expected capacity-bounded buffer of 2, got %d", len(recent))
	}
	if recent[0].ID != "b" || recent[1].ID != "c" {
		t.Fatalf("expected oldest entry evicted, got %v", recent)
	}
}
